package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/gather"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.barPath("aapl", "US", "1d", 2024)
	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}

	got = ps.barPath("BTCUSDT", "crypto", "60m", 2023)
	want = filepath.Join("/data", "crypto", "1h", "BTCUSDT", "2023.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(2023, 12, 29), Open: 190, High: 191, Low: 189, Close: 190.5, Volume: 1000},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 5000},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 4500},
	}
	if err := ps.WriteBars(ctx, "us", "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", "us", "1d", day(2023, 12, 1), day(2024, 2, 1))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	for i := range bars {
		if !got[i].Timestamp.Equal(bars[i].Timestamp) || got[i].Close != bars[i].Close || got[i].Volume != bars[i].Volume {
			t.Errorf("bar %d: got %+v, want %+v", i, got[i], bars[i])
		}
	}

	// End is exclusive.
	got, err = ps.ReadBars(ctx, "AAPL", "us", "1d", day(2024, 1, 1), day(2024, 1, 3))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || !got[0].Timestamp.Equal(day(2024, 1, 2)) {
		t.Errorf("expected only 2024-01-02, got %+v", got)
	}
}

func TestParquetStoreMerge(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Close: 400},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Close: 405},
	}
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Close: 410},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 5), Close: 412},
	}
	if err := ps.WriteBars(ctx, "us", "1d", first); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if err := ps.WriteBars(ctx, "us", "1d", second); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", "us", "1d", day(2024, 1, 1), day(2025, 1, 1))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	wantCloses := []float64{400, 410, 412}
	if len(got) != len(wantCloses) {
		t.Fatalf("expected %d bars, got %d", len(wantCloses), len(got))
	}
	for i, c := range wantCloses {
		if got[i].Close != c {
			t.Errorf("bar %d close = %v, want %v", i, got[i].Close, c)
		}
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	syms, err := ps.ListSymbols(ctx, "us", "1d")
	if err != nil {
		t.Fatalf("ListSymbols on empty dir: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("expected no symbols, got %v", syms)
	}

	bars := []domain.Bar{
		{Symbol: "TSLA", Timestamp: day(2024, 1, 2), Close: 1},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Close: 1},
	}
	if err := ps.WriteBars(ctx, "us", "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	syms, err = ps.ListSymbols(ctx, "us", "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "TSLA" {
		t.Errorf("ListSymbols = %v, want [AAPL TSLA]", syms)
	}
}

func TestParquetStoreFetchBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	dr, err := gather.ParseDateRange("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatal(err)
	}
	q := gather.Query{Symbol: "aapl", Market: "us", Interval: "1d", Range: dr}

	if _, err := ps.FetchBars(ctx, q); !errors.Is(err, gather.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Close: 2},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Close: 1},
		{Symbol: "AAPL", Timestamp: day(2024, 2, 1), Close: 3},
	}
	if err := ps.WriteBars(ctx, "us", "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	got, err := ps.FetchBars(ctx, q)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(got) != 2 || got[0].Close != 1 || got[1].Close != 2 || got[0].Symbol != "AAPL" {
		t.Errorf("FetchBars = %+v", got)
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveGetRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ts := day(2024, 1, 2)
	trades := []domain.Trade{
		{
			Symbol: "AAPL", Timestamp: ts, Side: domain.ActionBuy, Qty: 10, Price: 100.1, Fee: 1.001, Slippage: 0.1,
			DecisionTrace: domain.R("action", "BUY", "rule", "rsi_mean_reversion", "rsi", 25.0),
		},
		{
			Symbol: "AAPL", Timestamp: ts.AddDate(0, 0, 1), Side: domain.ActionSell, Qty: 10, Price: 109.9, Fee: 1.099, Slippage: 0.1, PnL: 95.9,
			DecisionTrace: domain.R("action", "SELL", "rsi", 75.0),
		},
	}
	equity := map[string][]domain.EquityPoint{
		"AAPL": {
			{Timestamp: ts, Equity: 10000},
			{Timestamp: ts.AddDate(0, 0, 1), Equity: 10095.9},
		},
	}
	run := &Run{
		Strategy:   "rsi_mean_reversion",
		Market:     "us",
		Interval:   "1d",
		Symbols:    []string{"AAPL", "NODATA"},
		Request:    json.RawMessage(`{"strategy":"rsi_mean_reversion"}`),
		Summary:    json.RawMessage(`{"avg_total_return":0.0096}`),
		Errors:     map[string]string{"NODATA": "no data"},
		Rejections: json.RawMessage(`{"AAPL":[{"symbol":"AAPL","cause":"insufficient cash"}]}`),
	}
	if err := s.SaveRun(ctx, run, trades, equity); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected SaveRun to assign an ID")
	}
	if run.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, StatusCompleted)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != run.Strategy || got.Market != "us" || got.Interval != "1d" {
		t.Errorf("GetRun header mismatch: %+v", got)
	}
	if len(got.Symbols) != 2 || got.Symbols[1] != "NODATA" {
		t.Errorf("symbols = %v", got.Symbols)
	}
	if got.Errors["NODATA"] != "no data" {
		t.Errorf("errors = %v", got.Errors)
	}
	if string(got.Summary) != string(run.Summary) {
		t.Errorf("summary = %s", got.Summary)
	}
	if string(got.Rejections) != string(run.Rejections) {
		t.Errorf("rejections = %s", got.Rejections)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, run.CreatedAt)
	}

	stored, err := s.ListTrades(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(stored))
	}
	if stored[0].Side != domain.ActionBuy || stored[1].Side != domain.ActionSell {
		t.Errorf("trade order wrong: %v, %v", stored[0].Side, stored[1].Side)
	}
	if stored[1].PnL != 95.9 || !stored[1].Timestamp.Equal(ts.AddDate(0, 0, 1)) {
		t.Errorf("trade 1 = %+v", stored[1])
	}

	one, err := s.GetTrade(ctx, run.ID, stored[0].ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if v, ok := one.DecisionTrace.Get("rsi"); !ok || v != 25.0 {
		t.Errorf("decision trace rsi = %v (ok=%v)", v, ok)
	}
	if one.DecisionTrace[0].Key != "action" || one.DecisionTrace.String("action") != "BUY" {
		t.Errorf("decision trace = %v", one.DecisionTrace)
	}

	eq, err := s.Equity(ctx, run.ID)
	if err != nil {
		t.Fatalf("Equity: %v", err)
	}
	if len(eq["AAPL"]) != 2 || eq["AAPL"][1].Equity != 10095.9 {
		t.Errorf("equity = %+v", eq)
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.ListTrades(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ListTrades: expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.Equity(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Equity: expected ErrRunNotFound, got %v", err)
	}

	run := &Run{Strategy: "sma_crossover", Market: "us", Interval: "1d"}
	if err := s.SaveRun(ctx, run, nil, nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, err := s.GetTrade(ctx, run.ID, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetTrade: expected ErrRunNotFound, got %v", err)
	}
	trades, err := s.ListTrades(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if trades == nil || len(trades) != 0 {
		t.Errorf("expected empty non-nil trades, got %v", trades)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		run := &Run{ID: name, CreatedAt: base.Add(time.Duration(i) * time.Minute), Strategy: "sma_crossover", Market: "us", Interval: "1d"}
		if err := s.SaveRun(ctx, run, nil, nil); err != nil {
			t.Fatalf("SaveRun %s: %v", name, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "third" || runs[2].ID != "first" {
		t.Errorf("ListRuns order wrong: %v", runs)
	}
	if runs[0].Rejections != nil {
		t.Errorf("run without rejections decoded as %s", runs[0].Rejections)
	}

	runs, err = s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected limit 2, got %d", len(runs))
	}
}
