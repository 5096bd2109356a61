// Package domain defines the core value types shared across the stratlab
// backtest platform: bars, signals, trades, equity snapshots and the risk
// configuration of a single simulation run.
package domain

import (
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one sampled OHLCV observation for a symbol. Series of bars are
// expected in strictly ascending Timestamp order.
type Bar struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Usable reports whether b can be replayed: every price and the volume are
// finite and the close is positive.
func (b Bar) Usable() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Close > 0
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

// Action is the decision a strategy emits for a single bar.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is one strategy decision together with the evidence behind it.
type Signal struct {
	Action Action `json:"action"`
	Reason Reason `json:"reason"`
}

// Hold returns a HOLD signal carrying reason.
func Hold(reason Reason) Signal { return Signal{Action: ActionHold, Reason: reason} }

// ---------------------------------------------------------------------------
// Ledger output
// ---------------------------------------------------------------------------

// Trade is an executed fill. BUY trades carry a zero PnL; SELL trades close
// the whole position and carry the realized PnL of the round trip.
type Trade struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	Side          Action    `json:"side"`
	Qty           float64   `json:"qty"`
	Price         float64   `json:"price"`    // execution price after slippage
	Fee           float64   `json:"fee"`      // proportional fee on notional
	Slippage      float64   `json:"slippage"` // per-unit price adjustment
	PnL           float64   `json:"pnl"`
	DecisionTrace Reason    `json:"decision_trace"`
}

// EquityPoint is the marked-to-market account value after a bar.
type EquityPoint struct {
	Timestamp time.Time `json:"t"`
	Equity    float64   `json:"equity"`
}
