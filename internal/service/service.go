// Package service runs backtests and persists their results. It is the one
// place the HTTP, gRPC and CLI front ends share.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
	"stratlab/internal/store"
)

// RunObserver is notified when a run finishes.
type RunObserver interface {
	ObserveRun(strategy string, elapsed time.Duration, err error)
}

// RejectedFills are a run's BUY signals that could not be filled, keyed by
// symbol.
type RejectedFills struct {
	RunID      string                        `json:"run_id"`
	Rejections map[string][]engine.Rejection `json:"rejections"`
}

// Explanation is the decision trace behind one trade.
type Explanation struct {
	RunID         string        `json:"run_id"`
	TradeID       int64         `json:"trade_id"`
	Symbol        string        `json:"symbol"`
	Timestamp     time.Time     `json:"timestamp"`
	Side          domain.Action `json:"side"`
	DecisionTrace domain.Reason `json:"decision_trace"`
}

// EquityCurves is a run's per-symbol equity.
type EquityCurves struct {
	RunID  string                          `json:"run_id"`
	Equity map[string][]domain.EquityPoint `json:"equity"`
}

// Backtests executes backtests and serves stored runs.
type Backtests struct {
	bt   *engine.Backtester
	runs store.RunStore
	obs  RunObserver
	log  *slog.Logger
}

// New creates a Backtests service. obs may be nil.
func New(bt *engine.Backtester, runs store.RunStore, obs RunObserver, log *slog.Logger) *Backtests {
	if log == nil {
		log = slog.Default()
	}
	return &Backtests{bt: bt, runs: runs, obs: obs, log: log.With("component", "backtests")}
}

// Strategies lists the registered strategy names.
func (s *Backtests) Strategies() []string {
	return s.bt.Registry().List()
}

// Execute runs req and stores the run with its trades and equity curves.
// Validation and data errors are returned unchanged and nothing is stored.
func (s *Backtests) Execute(ctx context.Context, req engine.Request) (*store.Run, *engine.RunResult, error) {
	start := time.Now()
	res, err := s.bt.Run(ctx, req)
	if s.obs != nil {
		s.obs.ObserveRun(req.Strategy, time.Since(start), err)
	}
	if err != nil {
		return nil, nil, err
	}

	reqJSON, err := json.Marshal(res.Request)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding request: %w", err)
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding summary: %w", err)
	}

	var trades []domain.Trade
	equity := make(map[string][]domain.EquityPoint, len(res.Results))
	rejected := make(map[string][]engine.Rejection)
	for _, r := range res.Results {
		trades = append(trades, r.Trades...)
		equity[r.Symbol] = r.Equity
		if len(r.Rejections) > 0 {
			rejected[r.Symbol] = r.Rejections
		}
	}
	var rejections json.RawMessage
	if len(rejected) > 0 {
		if rejections, err = json.Marshal(rejected); err != nil {
			return nil, nil, fmt.Errorf("encoding rejections: %w", err)
		}
	}

	run := &store.Run{
		Status:     store.StatusCompleted,
		Strategy:   res.Request.Strategy,
		Market:     res.Request.Market,
		Interval:   res.Request.Interval,
		Symbols:    res.Request.Symbols,
		Request:    reqJSON,
		Summary:    summary,
		Errors:     res.Errors,
		Rejections: rejections,
	}
	if err := s.runs.SaveRun(ctx, run, trades, equity); err != nil {
		return nil, nil, fmt.Errorf("saving run: %w", err)
	}
	s.log.Info("run stored", "run_id", run.ID, "strategy", run.Strategy, "trades", len(trades))
	return run, res, nil
}

// Get returns one stored run.
func (s *Backtests) Get(ctx context.Context, id string) (*store.Run, error) {
	return s.runs.GetRun(ctx, id)
}

// List returns stored runs, newest first.
func (s *Backtests) List(ctx context.Context, limit int) ([]store.Run, error) {
	return s.runs.ListRuns(ctx, limit)
}

// Trades returns a run's trades in execution order.
func (s *Backtests) Trades(ctx context.Context, runID string) ([]store.StoredTrade, error) {
	return s.runs.ListTrades(ctx, runID)
}

// Explain returns the decision trace recorded for one trade.
func (s *Backtests) Explain(ctx context.Context, runID string, tradeID int64) (*Explanation, error) {
	t, err := s.runs.GetTrade(ctx, runID, tradeID)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		RunID:         t.RunID,
		TradeID:       t.ID,
		Symbol:        t.Symbol,
		Timestamp:     t.Timestamp,
		Side:          t.Side,
		DecisionTrace: t.DecisionTrace,
	}, nil
}

// Equity returns a run's equity curves.
func (s *Backtests) Equity(ctx context.Context, runID string) (*EquityCurves, error) {
	eq, err := s.runs.Equity(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &EquityCurves{RunID: runID, Equity: eq}, nil
}

// Rejections returns the rejected BUY signals stored with a run.
func (s *Backtests) Rejections(ctx context.Context, runID string) (*RejectedFills, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := &RejectedFills{RunID: run.ID, Rejections: make(map[string][]engine.Rejection)}
	if len(run.Rejections) > 0 {
		if err := json.Unmarshal(run.Rejections, &out.Rejections); err != nil {
			return nil, fmt.Errorf("decoding rejections of run %s: %w", run.ID, err)
		}
	}
	return out, nil
}
