package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
	"stratlab/internal/metrics"
	"stratlab/internal/strategy"
)

// ErrInvalidRequest is returned for malformed backtest requests.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Request describes a multi-symbol backtest.
type Request struct {
	Strategy string               `json:"strategy" yaml:"strategy"`
	Params   strategy.Params      `json:"params,omitempty" yaml:"params,omitempty"`
	Risk     domain.RiskOverrides `json:"risk,omitempty" yaml:"risk,omitempty"`
	Symbols  []string             `json:"symbols" yaml:"symbols"`
	Market   string               `json:"market" yaml:"market"`
	Interval string               `json:"interval" yaml:"interval"`
	Start    string               `json:"start" yaml:"start"` // YYYY-MM-DD
	End      string               `json:"end" yaml:"end"`     // YYYY-MM-DD, inclusive
}

// RunResult is the outcome of a Backtester run.
type RunResult struct {
	Request Request           `json:"request"`
	Risk    domain.RiskConfig `json:"risk"`
	Summary metrics.Summary   `json:"summary"`
	Results []*Result         `json:"results"`
	// Errors maps symbols that were skipped to the reason.
	Errors map[string]string `json:"errors,omitempty"`
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics across symbols.
type Backtester struct {
	provider   gather.Provider
	registry   *strategy.Registry
	engine     *Engine
	defaults   domain.RiskConfig
	maxWorkers int
	log        *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from provider and
// looks up strategies in registry. Risk overrides in a request apply on top
// of defaults.
func NewBacktester(provider gather.Provider, registry *strategy.Registry, eng *Engine, defaults domain.RiskConfig, maxWorkers int, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	if eng == nil {
		eng = NewEngine(log, nil)
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Backtester{
		provider:   provider,
		registry:   registry,
		engine:     eng,
		defaults:   defaults,
		maxWorkers: maxWorkers,
		log:        log.With("component", "backtester"),
	}
}

// Registry returns the strategy registry used for lookups.
func (bt *Backtester) Registry() *strategy.Registry { return bt.registry }

// Run validates req, fetches every symbol's bars and simulates them in
// parallel. Strategy, risk and params errors fail before any data is
// fetched. Symbols without data are listed in RunResult.Errors; if no
// symbol has data the run fails with gather.ErrNoData.
func (bt *Backtester) Run(ctx context.Context, req Request) (*RunResult, error) {
	strat, err := bt.registry.Lookup(req.Strategy)
	if err != nil {
		return nil, err
	}
	risk := req.Risk.Apply(bt.defaults)
	if err := risk.Validate(); err != nil {
		return nil, err
	}
	if _, err := strat.Prepare(nil, req.Params); err != nil {
		return nil, err
	}

	symbols := normalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidRequest)
	}
	if _, err := gather.ParseInterval(req.Interval); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	dr, err := gather.ParseDateRange(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Symbols = symbols

	bt.log.Info("backtest starting",
		"strategy", strat.Name(),
		"symbols", len(symbols),
		"market", req.Market,
		"interval", req.Interval,
		"range", dr.String(),
	)
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make([]*Result, len(symbols))
		skipped = make(map[string]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bt.maxWorkers)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			q := gather.Query{Symbol: sym, Market: req.Market, Interval: req.Interval, Range: dr}
			bars, err := bt.provider.FetchBars(gctx, q)
			if err == nil && len(bars) == 0 {
				err = gather.NoData(q)
			}
			if errors.Is(err, gather.ErrNoData) {
				bt.log.Warn("no data for symbol", "symbol", sym, "error", err)
				mu.Lock()
				skipped[sym] = err.Error()
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetching %s: %w", sym, err)
			}

			res, err := bt.engine.Simulate(sym, bars, strat, req.Params, risk, req.Market, req.Interval)
			if err != nil {
				return fmt.Errorf("simulating %s: %w", sym, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &RunResult{Request: req, Risk: risk, Results: make([]*Result, 0, len(symbols))}
	reports := make([]metrics.Report, 0, len(symbols))
	for _, res := range results {
		if res == nil {
			continue
		}
		out.Results = append(out.Results, res)
		reports = append(reports, res.Report)
	}
	if len(skipped) > 0 {
		out.Errors = skipped
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("%s %s: %w for any symbol", req.Interval, dr, gather.ErrNoData)
	}
	out.Summary = metrics.Aggregate(reports)

	bt.log.Info("backtest complete",
		"strategy", strat.Name(),
		"symbols", len(out.Results),
		"skipped", len(skipped),
		"trades", out.Summary.NumTrades,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
