// Package stratlab is a Go client for the stratlab-server HTTP API.
package stratlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RunRequest describes a backtest. Risk fields left nil use the server's
// defaults.
type RunRequest struct {
	Strategy string         `json:"strategy"`
	Params   map[string]any `json:"params,omitempty"`
	Risk     *Risk          `json:"risk,omitempty"`
	Symbols  []string       `json:"symbols"`
	Market   string         `json:"market"`
	Interval string         `json:"interval"`
	Start    string         `json:"start"`
	End      string         `json:"end"`
}

// Risk overrides the server's risk defaults for one run.
type Risk struct {
	InitialCash        *float64 `json:"initial_cash,omitempty"`
	RiskFraction       *float64 `json:"risk_fraction,omitempty"`
	FeeBps             *float64 `json:"fee_bps,omitempty"`
	SlippageBps        *float64 `json:"slippage_bps,omitempty"`
	RiskFreeRateAnnual *float64 `json:"risk_free_rate_annual,omitempty"`
}

// Run is a stored backtest run. Summary holds the aggregate metrics; values
// the server could not express as finite numbers are nil.
type Run struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Status    string            `json:"status"`
	Strategy  string            `json:"strategy"`
	Market    string            `json:"market"`
	Interval  string            `json:"interval"`
	Symbols   []string          `json:"symbols"`
	Summary   map[string]any    `json:"summary"`
	Errors    map[string]string `json:"errors,omitempty"`

	Rejections map[string][]Rejection `json:"rejections,omitempty"`
}

// Rejection is a BUY signal the simulator could not fill.
type Rejection struct {
	Symbol    string         `json:"symbol"`
	Timestamp time.Time      `json:"timestamp"`
	Cause     string         `json:"cause"`
	Qty       float64        `json:"qty"`
	Cost      float64        `json:"cost"`
	Cash      float64        `json:"cash"`
	Signal    map[string]any `json:"signal"`
}

// Trade is one simulated fill.
type Trade struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Side      string    `json:"side"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Slippage  float64   `json:"slippage"`
	PnL       float64   `json:"pnl"`
}

// Explanation is the decision trace behind one trade.
type Explanation struct {
	RunID         string         `json:"run_id"`
	TradeID       int64          `json:"trade_id"`
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"`
	DecisionTrace map[string]any `json:"decision_trace"`
}

// EquityPoint is one mark-to-market sample.
type EquityPoint struct {
	Timestamp time.Time `json:"t"`
	Equity    float64   `json:"equity"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stratlab: %d %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the stratlab-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stratlab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Strategies lists the server's strategies.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// RunBacktest executes req and returns the stored run.
func (c *Client) RunBacktest(ctx context.Context, req RunRequest) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/api/backtests/run", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns stored runs, newest first. limit <= 0 uses the server
// default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	path := "/api/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var runs []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Trades returns a run's trades.
func (c *Client) Trades(ctx context.Context, runID string) ([]Trade, error) {
	var trades []Trade
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(runID)+"/trades", nil, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// Explain returns the decision trace for one trade.
func (c *Client) Explain(ctx context.Context, runID string, tradeID int64) (*Explanation, error) {
	var ex Explanation
	path := fmt.Sprintf("/api/backtests/%s/explain/%d", url.PathEscape(runID), tradeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

// Equity returns a run's equity curves keyed by symbol.
func (c *Client) Equity(ctx context.Context, runID string) (map[string][]EquityPoint, error) {
	var out struct {
		Equity map[string][]EquityPoint `json:"equity"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(runID)+"/equity", nil, &out); err != nil {
		return nil, err
	}
	return out.Equity, nil
}

// Rejections returns a run's unfilled BUY signals keyed by symbol.
func (c *Client) Rejections(ctx context.Context, runID string) (map[string][]Rejection, error) {
	var out struct {
		Rejections map[string][]Rejection `json:"rejections"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(runID)+"/rejections", nil, &out); err != nil {
		return nil, err
	}
	return out.Rejections, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
