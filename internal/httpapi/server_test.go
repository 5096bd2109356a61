package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
	"stratlab/internal/gather"
	"stratlab/internal/service"
	"stratlab/internal/store"
	"stratlab/internal/strategy/builtins"
)

type memProvider map[string][]domain.Bar

func (m memProvider) Name() string { return "mem" }

func (m memProvider) FetchBars(_ context.Context, q gather.Query) ([]domain.Bar, error) {
	bars, ok := m[q.Symbol]
	if !ok {
		return nil, gather.NoData(q)
	}
	return bars, nil
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	runs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	for i, c := range []float64{10, 9, 8, 7, 9, 12, 14, 10, 6, 4} {
		bars = append(bars, domain.Bar{Symbol: "AAPL", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c})
	}
	log := slog.New(slog.DiscardHandler)
	bt := engine.NewBacktester(memProvider{"AAPL": bars}, builtins.NewRegistry(), nil, domain.DefaultRiskConfig(), 2, log)
	svc := service.New(bt, runs, nil, log)

	srv := httptest.NewServer(NewBacktestServer(svc, "test", log).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postRun(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/backtests/run", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

const runBody = `{"strategy":"sma_crossover","params":{"fast":2,"slow":3},"symbols":["AAPL"],
"market":"us","interval":"1d","start":"2024-01-01","end":"2024-01-31"}`

func TestRunAndReadBack(t *testing.T) {
	srv := testServer(t)

	resp := postRun(t, srv, runBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	run := decode[store.Run](t, resp)
	if run.ID == "" || run.Status != store.StatusCompleted {
		t.Fatalf("run = %+v", run)
	}
	var summary map[string]any
	if err := json.Unmarshal(run.Summary, &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary["num_trades"].(float64) != 2 {
		t.Errorf("num_trades = %v", summary["num_trades"])
	}

	get, err := http.Get(srv.URL + "/api/backtests/" + run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := decode[store.Run](t, get); got.ID != run.ID {
		t.Errorf("GET run id = %q", got.ID)
	}

	list, err := http.Get(srv.URL + "/api/backtests?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	if runs := decode[[]store.Run](t, list); len(runs) != 1 {
		t.Errorf("list = %d runs", len(runs))
	}

	tr, err := http.Get(srv.URL + "/api/backtests/" + run.ID + "/trades")
	if err != nil {
		t.Fatal(err)
	}
	trades := decode[[]store.StoredTrade](t, tr)
	if len(trades) != 2 {
		t.Fatalf("trades = %d", len(trades))
	}

	ex, err := http.Get(fmt.Sprintf("%s/api/backtests/%s/explain/%d", srv.URL, run.ID, trades[1].ID))
	if err != nil {
		t.Fatal(err)
	}
	explain := decode[service.Explanation](t, ex)
	if explain.Side != domain.ActionSell || explain.DecisionTrace.String("trigger") != "fast_cross_below_slow" {
		t.Errorf("explain = %+v", explain)
	}

	eq, err := http.Get(srv.URL + "/api/backtests/" + run.ID + "/equity")
	if err != nil {
		t.Fatal(err)
	}
	curves := decode[service.EquityCurves](t, eq)
	if len(curves.Equity["AAPL"]) != 10 {
		t.Errorf("equity points = %d", len(curves.Equity["AAPL"]))
	}

	rj, err := http.Get(srv.URL + "/api/backtests/" + run.ID + "/rejections")
	if err != nil {
		t.Fatal(err)
	}
	if rejected := decode[service.RejectedFills](t, rj); rejected.RunID != run.ID || len(rejected.Rejections) != 0 {
		t.Errorf("rejections = %+v", rejected)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown strategy", strings.Replace(runBody, "sma_crossover", "nope", 1), http.StatusBadRequest},
		{"bad params", strings.Replace(runBody, `"fast":2`, `"fast":-1`, 1), http.StatusBadRequest},
		{"bad risk", strings.Replace(runBody, `"symbols"`, `"risk":{"risk_fraction":2},"symbols"`, 1), http.StatusBadRequest},
		{"no data", strings.Replace(runBody, `"AAPL"`, `"MSFT"`, 1), http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := postRun(t, srv, tt.body)
		body := decode[ErrorJSON](t, resp)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, resp.StatusCode, tt.want, body.Error)
		}
		if body.Error == "" {
			t.Errorf("%s: empty error message", tt.name)
		}
	}

	for _, path := range []string{"/api/backtests/missing", "/api/backtests/missing/trades", "/api/backtests/missing/explain/1"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/api/backtests/x/explain/abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-numeric trade id = %d, want 400", resp.StatusCode)
	}
}

func TestHealthStrategiesAndCORS(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if h := decode[HealthJSON](t, resp); h.Status != "ok" || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}

	resp, err = http.Get(srv.URL + "/api/strategies")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	s := decode[StrategiesJSON](t, resp)
	if len(s.Strategies) != 2 {
		t.Errorf("strategies = %v", s.Strategies)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/backtests/run", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidParams), http.StatusBadRequest},
		{engine.ErrInvalidRequest, http.StatusBadRequest},
		{fmt.Errorf("x: %w", store.ErrRunNotFound), http.StatusNotFound},
		{gather.ErrNoData, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
