package builtins

import (
	"fmt"

	"stratlab/internal/domain"
	"stratlab/internal/indicator"
	"stratlab/internal/strategy"
)

var _ strategy.Strategy = (*RSIMeanReversion)(nil)

const colRSI = "rsi"

// RSIMeanReversion buys when RSI drops below buy_below while flat and sells
// when it rises above sell_above while holding.
type RSIMeanReversion struct {
	defaultWindow    int
	defaultBuyBelow  float64
	defaultSellAbove float64
}

// NewRSIMeanReversion creates the strategy with default window and bands.
func NewRSIMeanReversion(window int, buyBelow, sellAbove float64) *RSIMeanReversion {
	return &RSIMeanReversion{
		defaultWindow:    window,
		defaultBuyBelow:  buyBelow,
		defaultSellAbove: sellAbove,
	}
}

func (s *RSIMeanReversion) Name() string { return "rsi_mean_reversion" }

func (s *RSIMeanReversion) window(p strategy.Params) (int, error) {
	w, err := p.Int("window", s.defaultWindow)
	if err != nil {
		return 0, err
	}
	if w <= 0 {
		return 0, fmt.Errorf("%w: window must be positive, got %d", domain.ErrInvalidParams, w)
	}
	return w, nil
}

func (s *RSIMeanReversion) bands(p strategy.Params) (low, high float64, err error) {
	if low, err = p.Float("buy_below", s.defaultBuyBelow); err != nil {
		return 0, 0, err
	}
	if high, err = p.Float("sell_above", s.defaultSellAbove); err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

func (s *RSIMeanReversion) WarmupBars(p strategy.Params) int {
	w, err := s.window(p)
	if err != nil {
		return 0
	}
	return w + 1
}

func (s *RSIMeanReversion) Prepare(bars []domain.Bar, p strategy.Params) (*strategy.Series, error) {
	w, err := s.window(p)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.bands(p); err != nil {
		return nil, err
	}
	series := strategy.NewSeries(bars)
	if err := series.AddColumn(colRSI, indicator.RSI(domain.Closes(bars), w)); err != nil {
		return nil, err
	}
	return series, nil
}

func (s *RSIMeanReversion) Decide(row strategy.Row, st *strategy.State, p strategy.Params) domain.Signal {
	rsi := row.Value(colRSI)
	if !rsi.Valid {
		return domain.Hold(domain.R("rule", "warmup", colRSI, nil))
	}
	// bands were validated in Prepare
	low, high, _ := s.bands(p)

	reason := domain.R(
		"rule", s.Name(),
		colRSI, rsi.Float,
		"buy_below", low,
		"sell_above", high,
		"position_qty", st.PositionQty,
	)

	switch {
	case st.Flat() && rsi.Float < low:
		return domain.Signal{Action: domain.ActionBuy, Reason: reason.With("trigger", "rsi_oversold")}
	case !st.Flat() && rsi.Float > high:
		return domain.Signal{Action: domain.ActionSell, Reason: reason.With("trigger", "rsi_overbought")}
	}
	return domain.Hold(reason)
}

// Remember is a no-op: the rule only looks at the current bar.
func (s *RSIMeanReversion) Remember(strategy.Row, *strategy.State) {}
