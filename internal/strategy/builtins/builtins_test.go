package builtins

import (
	"errors"
	"testing"
	"time"

	"stratlab/internal/domain"
	"stratlab/internal/indicator"
	"stratlab/internal/strategy"
)

func barsFromCloses(closes ...float64) []domain.Bar {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

// replay drives Decide/Remember the way the simulator does and flips the
// position on every BUY/SELL.
func replay(s strategy.Strategy, series *strategy.Series, p strategy.Params) []domain.Signal {
	st := strategy.NewState()
	out := make([]domain.Signal, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		row := series.Row(i)
		sig := s.Decide(row, st, p)
		s.Remember(row, st)
		switch sig.Action {
		case domain.ActionBuy:
			st.PositionQty = 1
		case domain.ActionSell:
			st.PositionQty = 0
		}
		out = append(out, sig)
	}
	return out
}

func TestNewRegistryHasBuiltins(t *testing.T) {
	r := NewRegistry()
	names := r.List()
	if len(names) != 2 || names[0] != "rsi_mean_reversion" || names[1] != "sma_crossover" {
		t.Fatalf("List() = %v, want [rsi_mean_reversion sma_crossover]", names)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, domain.ErrUnknownStrategy) {
		t.Errorf("Lookup(nope) error = %v, want ErrUnknownStrategy", err)
	}
	if err := Register(r); err == nil {
		t.Error("registering the built-ins twice should fail")
	}
}

func TestRSIMeanReversionBands(t *testing.T) {
	bars := barsFromCloses(1, 1, 1)
	series := strategy.NewSeries(bars)
	rsi := indicator.Series{indicator.Some(25), indicator.Some(35), indicator.Some(75)}
	if err := series.AddColumn("rsi", rsi); err != nil {
		t.Fatal(err)
	}

	s := NewRSIMeanReversion(14, 30, 70)
	p := strategy.Params{"buy_below": 30, "sell_above": 70}
	sigs := replay(s, series, p)

	want := []domain.Action{domain.ActionBuy, domain.ActionHold, domain.ActionSell}
	for i, w := range want {
		if sigs[i].Action != w {
			t.Errorf("bar %d action = %s, want %s", i, sigs[i].Action, w)
		}
	}
	if got := sigs[0].Reason.String("trigger"); got != "rsi_oversold" {
		t.Errorf("BUY trigger = %q, want rsi_oversold", got)
	}
	if got := sigs[2].Reason.String("trigger"); got != "rsi_overbought" {
		t.Errorf("SELL trigger = %q, want rsi_overbought", got)
	}
}

func TestRSIMeanReversionWarmup(t *testing.T) {
	s := NewRSIMeanReversion(DefaultRSIWindow, DefaultBuyBelow, DefaultSellAbove)
	bars := barsFromCloses(10, 9, 8, 7, 6)
	p := strategy.Params{"window": 3}

	series, err := s.Prepare(bars, p)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	sigs := replay(s, series, p)
	for i := 0; i < 3; i++ {
		if sigs[i].Action != domain.ActionHold || sigs[i].Reason.String("rule") != "warmup" {
			t.Errorf("bar %d = %s/%q, want HOLD/warmup", i, sigs[i].Action, sigs[i].Reason.String("rule"))
		}
	}
	// steady decline drives RSI to 0: oversold
	if sigs[3].Action != domain.ActionBuy {
		t.Errorf("bar 3 action = %s, want BUY", sigs[3].Action)
	}
	if got := s.WarmupBars(p); got != 4 {
		t.Errorf("WarmupBars = %d, want 4", got)
	}
}

func TestRSIMeanReversionInvalidParams(t *testing.T) {
	s := NewRSIMeanReversion(DefaultRSIWindow, DefaultBuyBelow, DefaultSellAbove)
	bars := barsFromCloses(1, 2, 3)
	for _, p := range []strategy.Params{
		{"window": 0},
		{"window": "x"},
		{"buy_below": "low"},
	} {
		if _, err := s.Prepare(bars, p); !errors.Is(err, domain.ErrInvalidParams) {
			t.Errorf("Prepare(%v) error = %v, want ErrInvalidParams", p, err)
		}
	}
}

func TestSMACrossSignals(t *testing.T) {
	s := NewSMACross(DefaultFast, DefaultSlow)
	p := strategy.Params{"fast": 2, "slow": 3}
	// falls, rallies (fast crosses above slow), then falls again (crosses below)
	bars := barsFromCloses(10, 9, 8, 7, 9, 12, 14, 10, 6, 4)

	series, err := s.Prepare(bars, p)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	sigs := replay(s, series, p)

	for i := 0; i < 2; i++ {
		if sigs[i].Reason.String("rule") != "warmup" {
			t.Errorf("bar %d rule = %q, want warmup", i, sigs[i].Reason.String("rule"))
		}
	}

	var buys, sells []int
	for i, sig := range sigs {
		switch sig.Action {
		case domain.ActionBuy:
			buys = append(buys, i)
		case domain.ActionSell:
			sells = append(sells, i)
		}
	}
	if len(buys) != 1 || len(sells) != 1 {
		t.Fatalf("buys = %v, sells = %v; want one of each", buys, sells)
	}
	if buys[0] >= sells[0] {
		t.Errorf("BUY at %d should precede SELL at %d", buys[0], sells[0])
	}
	// bar 5: fast 10.5 > slow 9.33 after fast 8 <= slow 8 on bar 4
	if buys[0] != 5 {
		t.Errorf("BUY at bar %d, want 5", buys[0])
	}
	if sells[0] != 8 {
		t.Errorf("SELL at bar %d, want 8", sells[0])
	}
	buy := sigs[buys[0]].Reason
	if buy.String("trigger") != "fast_cross_above_slow" {
		t.Errorf("BUY trigger = %q", buy.String("trigger"))
	}
	if v, _ := buy.Get("crossed_up"); v != true {
		t.Errorf("crossed_up = %v, want true", v)
	}
	if sigs[sells[0]].Reason.String("trigger") != "fast_cross_below_slow" {
		t.Errorf("SELL trigger = %q", sigs[sells[0]].Reason.String("trigger"))
	}
}

func TestSMACrossNoSellWhenFlat(t *testing.T) {
	s := NewSMACross(DefaultFast, DefaultSlow)
	p := strategy.Params{"fast": 1, "slow": 2}
	series, err := s.Prepare(barsFromCloses(5, 6, 4, 3), p)
	if err != nil {
		t.Fatal(err)
	}
	for i, sig := range replay(s, series, p) {
		if sig.Action == domain.ActionSell {
			t.Errorf("bar %d: SELL while flat", i)
		}
	}
}

func TestSMACrossParams(t *testing.T) {
	s := NewSMACross(DefaultFast, DefaultSlow)
	if got := s.WarmupBars(nil); got != DefaultSlow+1 {
		t.Errorf("WarmupBars(nil) = %d, want %d", got, DefaultSlow+1)
	}
	if _, err := s.Prepare(barsFromCloses(1), strategy.Params{"fast": -1}); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("negative fast error = %v, want ErrInvalidParams", err)
	}
	if _, err := s.Prepare(barsFromCloses(1, 2), strategy.Params{"fast": 5, "slow": 3}); err != nil {
		t.Errorf("fast > slow should be accepted, got %v", err)
	}
}
