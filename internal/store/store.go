// Package store defines storage interfaces for persisting and retrieving
// bars and backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stratlab/internal/domain"
)

// ErrRunNotFound is returned when a run or one of its trades does not exist.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 200

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for a market and interval.
	WriteBars(ctx context.Context, market, interval string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end).
	ReadBars(ctx context.Context, symbol, market, interval string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for a market and interval.
	ListSymbols(ctx context.Context, market, interval string) ([]string, error)
}

// Run is the persisted header of one backtest run. Rejections maps symbols
// to the BUY signals that could not be filled.
type Run struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Status     string            `json:"status"`
	Strategy   string            `json:"strategy"`
	Market     string            `json:"market"`
	Interval   string            `json:"interval"`
	Symbols    []string          `json:"symbols"`
	Request    json.RawMessage   `json:"request"`
	Summary    json.RawMessage   `json:"summary"`
	Errors     map[string]string `json:"errors,omitempty"`
	Rejections json.RawMessage   `json:"rejections,omitempty"`
}

// StatusCompleted is the status of a stored run. Failed runs are not stored.
const StatusCompleted = "completed"

// StoredTrade is a trade row with its identifiers.
type StoredTrade struct {
	ID    int64  `json:"id"`
	RunID string `json:"run_id"`
	domain.Trade
}

// RunStore persists backtest runs with their trades and equity curves.
type RunStore interface {
	// SaveRun stores run together with its trades and per-symbol equity
	// curves in one transaction. An empty ID is assigned a new UUID.
	SaveRun(ctx context.Context, run *Run, trades []domain.Trade, equity map[string][]domain.EquityPoint) error

	// GetRun returns one run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// ListTrades returns a run's trades in execution order.
	ListTrades(ctx context.Context, runID string) ([]StoredTrade, error)

	// GetTrade returns one trade of a run.
	GetTrade(ctx context.Context, runID string, tradeID int64) (*StoredTrade, error)

	// Equity returns a run's equity curves keyed by symbol.
	Equity(ctx context.Context, runID string) (map[string][]domain.EquityPoint, error)

	Close() error
}
