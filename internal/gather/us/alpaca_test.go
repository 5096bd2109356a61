package us

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stratlab/internal/gather"
)

type fakeBars struct {
	calls  []marketdata.GetBarsRequest
	bySpan map[string][]marketdata.Bar
	fail   int
}

func (f *fakeBars) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls = append(f.calls, req)
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("503 service unavailable")
	}
	return f.bySpan[req.TimeFrame.String()], nil
}

func testProvider(f *fakeBars) *AlpacaProvider {
	retryDelay = 0
	return newAlpacaProvider(f, AlpacaOptions{MaxRetries: 3}, slog.New(slog.DiscardHandler))
}

func mustRange(t *testing.T, start, end string) gather.DateRange {
	t.Helper()
	dr, err := gather.ParseDateRange(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return dr
}

func TestAlpacaProviderName(t *testing.T) {
	p := NewAlpacaProvider(AlpacaOptions{APIKey: "key", APISecret: "secret"}, nil)
	if got := p.Name(); got != "alpaca" {
		t.Errorf("Name() = %q, want %q", got, "alpaca")
	}
}

func TestTimeFrame(t *testing.T) {
	tests := []struct {
		in   string
		want marketdata.TimeFrame
	}{
		{"1d", marketdata.OneDay},
		{"5m", marketdata.NewTimeFrame(5, marketdata.Min)},
		{"60m", marketdata.NewTimeFrame(1, marketdata.Hour)},
		{"1wk", marketdata.NewTimeFrame(1, marketdata.Week)},
	}
	for _, tt := range tests {
		iv, err := gather.ParseInterval(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got := TimeFrame(iv); got != tt.want {
			t.Errorf("TimeFrame(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAlpacaFetchBars(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 5, 0, 0, 0, time.UTC) }
	f := &fakeBars{bySpan: map[string][]marketdata.Bar{
		marketdata.OneDay.String(): {
			{Timestamp: day(3), Close: 11, Volume: 20},
			{Timestamp: day(2), Close: 10, Volume: 10},
			{Timestamp: day(5), Close: 12, Volume: 30},
		},
	}}
	p := testProvider(f)

	bars, err := p.FetchBars(context.Background(), gather.Query{
		Symbol: "aapl", Interval: "1d", Range: mustRange(t, "2024-01-01", "2024-01-05"),
	})
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 3 || bars[0].Close != 10 || bars[2].Close != 12 {
		t.Errorf("bars = %+v", bars)
	}
	if bars[0].Symbol != "AAPL" || bars[0].Volume != 10 {
		t.Errorf("bar 0 = %+v", bars[0])
	}
	req := f.calls[0]
	if req.Adjustment != marketdata.Raw {
		t.Errorf("adjustment = %v, want raw", req.Adjustment)
	}
	if want := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC); !req.End.Equal(want) {
		t.Errorf("end = %v, want %v", req.End, want)
	}
}

func TestAlpacaIntradayFallback(t *testing.T) {
	f := &fakeBars{bySpan: map[string][]marketdata.Bar{
		marketdata.OneDay.String(): {{Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC), Close: 10}},
	}}
	p := testProvider(f)

	bars, err := p.FetchBars(context.Background(), gather.Query{
		Symbol: "AAPL", Interval: "15m", Range: mustRange(t, "2024-01-01", "2024-01-05"),
	})
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if len(f.calls) != 2 || f.calls[1].TimeFrame != marketdata.OneDay {
		t.Errorf("expected a daily retry, calls = %+v", f.calls)
	}
}

func TestAlpacaNoDataAndRetry(t *testing.T) {
	f := &fakeBars{fail: 2}
	p := testProvider(f)

	_, err := p.FetchBars(context.Background(), gather.Query{
		Symbol: "NONE", Interval: "1d", Range: mustRange(t, "2024-01-01", "2024-01-05"),
	})
	if !errors.Is(err, gather.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(f.calls) != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", len(f.calls))
	}

	f = &fakeBars{fail: 10}
	p = testProvider(f)
	_, err = p.FetchBars(context.Background(), gather.Query{
		Symbol: "AAPL", Interval: "1d", Range: mustRange(t, "2024-01-01", "2024-01-05"),
	})
	if err == nil || errors.Is(err, gather.ErrNoData) {
		t.Errorf("expected a hard error, got %v", err)
	}
}
