package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stratlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	status     TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	market     TEXT NOT NULL,
	interval   TEXT NOT NULL,
	symbols    TEXT NOT NULL,
	request    TEXT NOT NULL,
	summary    TEXT NOT NULL,
	errors     TEXT NOT NULL DEFAULT '{}',
	rejections TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at DESC);

CREATE TABLE IF NOT EXISTS trades (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	symbol         TEXT NOT NULL,
	ts             INTEGER NOT NULL,
	side           TEXT NOT NULL,
	qty            REAL NOT NULL,
	price          REAL NOT NULL,
	fee            REAL NOT NULL,
	slippage       REAL NOT NULL,
	pnl            REAL NOT NULL,
	decision_trace TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_run ON trades (run_id, id);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	seq    INTEGER NOT NULL,
	ts     INTEGER NOT NULL,
	equity REAL NOT NULL,
	PRIMARY KEY (run_id, symbol, seq)
);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run, its trades and its equity curves in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, trades []domain.Trade, equity map[string][]domain.EquityPoint) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusCompleted
	}

	symbols, err := json.Marshal(nonNil(run.Symbols))
	if err != nil {
		return fmt.Errorf("encoding symbols: %w", err)
	}
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}
	if run.Errors == nil {
		errs = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, status, strategy, market, interval, symbols, request, summary, errors, rejections)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.Status, run.Strategy, run.Market, run.Interval,
		string(symbols), rawOrEmpty(run.Request), rawOrEmpty(run.Summary), string(errs),
		rawOrEmpty(run.Rejections),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run_id, symbol, ts, side, qty, price, fee, slippage, pnl, decision_trace)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()
	for _, t := range trades {
		trace, err := json.Marshal(t.DecisionTrace)
		if err != nil {
			return fmt.Errorf("encoding decision trace: %w", err)
		}
		if _, err := tradeStmt.ExecContext(ctx, run.ID, t.Symbol, t.Timestamp.UnixNano(), string(t.Side),
			t.Qty, t.Price, t.Fee, t.Slippage, t.PnL, string(trace)); err != nil {
			return fmt.Errorf("inserting trade: %w", err)
		}
	}

	eqStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO equity (run_id, symbol, seq, ts, equity) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer eqStmt.Close()
	for sym, points := range equity {
		for i, p := range points {
			if _, err := eqStmt.ExecContext(ctx, run.ID, sym, i, p.Timestamp.UnixNano(), p.Equity); err != nil {
				return fmt.Errorf("inserting equity point: %w", err)
			}
		}
	}

	return tx.Commit()
}

const runColumns = `id, created_at, status, strategy, market, interval, symbols, request, summary, errors, rejections`

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListTrades returns a run's trades in execution order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]StoredTrade, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, symbol, ts, side, qty, price, fee, slippage, pnl, decision_trace
		 FROM trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]StoredTrade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// GetTrade returns one trade of a run.
func (s *SQLiteStore) GetTrade(ctx context.Context, runID string, tradeID int64) (*StoredTrade, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, symbol, ts, side, qty, price, fee, slippage, pnl, decision_trace
		 FROM trades WHERE run_id = ? AND id = ?`, runID, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trade %d in run %s", ErrRunNotFound, tradeID, runID)
	}
	return t, err
}

// Equity returns a run's equity curves keyed by symbol.
func (s *SQLiteStore) Equity(ctx context.Context, runID string) (map[string][]domain.EquityPoint, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, ts, equity FROM equity WHERE run_id = ? ORDER BY symbol, seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.EquityPoint)
	for rows.Next() {
		var (
			sym string
			ts  int64
			eq  float64
		)
		if err := rows.Scan(&sym, &ts, &eq); err != nil {
			return nil, err
		}
		out[sym] = append(out[sym], domain.EquityPoint{Timestamp: time.Unix(0, ts).UTC(), Equity: eq})
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Scanning helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                                               Run
		created                                         int64
		symbols, request, summary, errsJSON, rejections string
	)
	if err := sc.Scan(&r.ID, &created, &r.Status, &r.Strategy, &r.Market, &r.Interval,
		&symbols, &request, &summary, &errsJSON, &rejections); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(symbols), &r.Symbols); err != nil {
		return nil, fmt.Errorf("decoding symbols of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors of run %s: %w", r.ID, err)
	}
	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	r.Request = json.RawMessage(request)
	r.Summary = json.RawMessage(summary)
	if rejections != "{}" {
		r.Rejections = json.RawMessage(rejections)
	}
	return &r, nil
}

func scanTrade(sc scanner) (*StoredTrade, error) {
	var (
		t         StoredTrade
		ts        int64
		side      string
		traceJSON string
	)
	if err := sc.Scan(&t.ID, &t.RunID, &t.Symbol, &ts, &side, &t.Qty, &t.Price, &t.Fee,
		&t.Slippage, &t.PnL, &traceJSON); err != nil {
		return nil, err
	}
	t.Timestamp = time.Unix(0, ts).UTC()
	t.Side = domain.Action(side)
	if err := json.Unmarshal([]byte(traceJSON), &t.DecisionTrace); err != nil {
		return nil, fmt.Errorf("decoding decision trace of trade %d: %w", t.ID, err)
	}
	return &t, nil
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
