// Package builtins provides built-in strategy implementations that ship with
// the stratlab platform.
package builtins

import (
	"fmt"

	"stratlab/internal/domain"
	"stratlab/internal/indicator"
	"stratlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

const (
	colSMAFast = "sma_fast"
	colSMASlow = "sma_slow"
)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the fast SMA crosses above the slow SMA while flat, and a
// sell signal when it crosses below while holding.
type SMACross struct {
	defaultFast int
	defaultSlow int
}

// NewSMACross creates a new SMACross strategy whose fast and slow windows
// default to the given periods when a request does not set them.
func NewSMACross(fast, slow int) *SMACross {
	return &SMACross{
		defaultFast: fast,
		defaultSlow: slow,
	}
}

// Name returns "sma_crossover".
func (s *SMACross) Name() string {
	return "sma_crossover"
}

func (s *SMACross) windows(p strategy.Params) (fast, slow int, err error) {
	if fast, err = p.Int("fast", s.defaultFast); err != nil {
		return 0, 0, err
	}
	if slow, err = p.Int("slow", s.defaultSlow); err != nil {
		return 0, 0, err
	}
	if fast <= 0 || slow <= 0 {
		return 0, 0, fmt.Errorf("%w: fast and slow must be positive, got %d and %d",
			domain.ErrInvalidParams, fast, slow)
	}
	return fast, slow, nil
}

// WarmupBars is the slow window plus one bar so a crossover has a previous
// value to compare against.
func (s *SMACross) WarmupBars(p strategy.Params) int {
	fast, slow, err := s.windows(p)
	if err != nil {
		return 0
	}
	return max(fast, slow) + 1
}

// Prepare adds the sma_fast and sma_slow columns.
func (s *SMACross) Prepare(bars []domain.Bar, p strategy.Params) (*strategy.Series, error) {
	fast, slow, err := s.windows(p)
	if err != nil {
		return nil, err
	}
	closes := domain.Closes(bars)
	series := strategy.NewSeries(bars)
	if err := series.AddColumn(colSMAFast, indicator.SMA(closes, fast)); err != nil {
		return nil, err
	}
	if err := series.AddColumn(colSMASlow, indicator.SMA(closes, slow)); err != nil {
		return nil, err
	}
	return series, nil
}

// Decide compares this bar's averages with the previous bar's.
func (s *SMACross) Decide(row strategy.Row, st *strategy.State, _ strategy.Params) domain.Signal {
	fast := row.Value(colSMAFast)
	slow := row.Value(colSMASlow)
	if !fast.Valid || !slow.Valid {
		return domain.Hold(domain.R("rule", "warmup", colSMAFast, fast.Any(), colSMASlow, slow.Any()))
	}

	prevFast := st.Previous(colSMAFast)
	prevSlow := st.Previous(colSMASlow)
	havePrev := prevFast.Valid && prevSlow.Valid
	crossedUp := havePrev && prevFast.Float <= prevSlow.Float && fast.Float > slow.Float
	crossedDown := havePrev && prevFast.Float >= prevSlow.Float && fast.Float < slow.Float

	reason := domain.R(
		"rule", s.Name(),
		colSMAFast, fast.Float,
		colSMASlow, slow.Float,
		"crossed_up", crossedUp,
		"crossed_down", crossedDown,
		"position_qty", st.PositionQty,
	)

	switch {
	case st.Flat() && crossedUp:
		return domain.Signal{Action: domain.ActionBuy, Reason: reason.With("trigger", "fast_cross_above_slow")}
	case !st.Flat() && crossedDown:
		return domain.Signal{Action: domain.ActionSell, Reason: reason.With("trigger", "fast_cross_below_slow")}
	}
	return domain.Hold(reason)
}

// Remember carries this bar's averages to the next Decide.
func (s *SMACross) Remember(row strategy.Row, st *strategy.State) {
	st.Remember(colSMAFast, row.Value(colSMAFast))
	st.Remember(colSMASlow, row.Value(colSMASlow))
}
