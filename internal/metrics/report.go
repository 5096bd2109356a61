package metrics

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"stratlab/internal/domain"
)

// Report is the per-symbol result of one simulation.
type Report struct {
	Symbol      string
	InitialCash float64
	FinalEquity float64
	TotalReturn float64
	NumTrades   int
	Bars        int

	EquityMetrics
	TradeMetrics

	RejectedFills    int
	InsufficientData bool
}

// NewReport computes the full report for one symbol's simulation output.
func NewReport(symbol string, initialCash float64, trades []domain.Trade, equity []domain.EquityPoint, ann int, riskFreeAnnual float64) Report {
	r := Report{
		Symbol:        symbol,
		InitialCash:   initialCash,
		FinalEquity:   initialCash,
		NumTrades:     len(trades),
		Bars:          len(equity),
		EquityMetrics: ComputeEquityMetrics(equity, ann, riskFreeAnnual),
		TradeMetrics:  ComputeTradeMetrics(trades),
	}
	if len(equity) > 0 {
		r.FinalEquity = equity[len(equity)-1].Equity
		r.TotalReturn = r.FinalEquity/initialCash - 1
	}
	return r
}

// fields returns the report as a flat map with raw float values.
func (r Report) fields() map[string]any {
	return map[string]any{
		"symbol":                r.Symbol,
		"initial_cash":          r.InitialCash,
		"final_equity":          r.FinalEquity,
		"total_return":          r.TotalReturn,
		"num_trades":            r.NumTrades,
		"bars":                  r.Bars,
		"cagr":                  r.CAGR,
		"volatility":            r.Volatility,
		"sharpe":                r.Sharpe,
		"sortino":               r.Sortino,
		"max_drawdown":          r.MaxDrawdown,
		"risk_free_rate_annual": r.RiskFreeRateAnnual,
		"round_trips":           r.RoundTrips,
		"win_rate":              r.WinRate,
		"profit_factor":         r.ProfitFactor,
		"avg_trade_pnl":         r.AvgTradePnL,
		"total_realized_pnl":    r.TotalRealizedPnL,
		"rejected_fills":        r.RejectedFills,
		"insufficient_data":     r.InsufficientData,
	}
}

// Map returns the report as a JSON-safe map: non-finite floats are nil.
func (r Report) Map() map[string]any {
	return safeMap(r.fields())
}

// MarshalJSON encodes the report with non-finite values as null.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// SafeFloat returns nil for NaN and ±Inf and f otherwise.
func SafeFloat(f float64) any {
	if !finite(f) {
		return nil
	}
	return f
}

func safeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok {
			out[k] = SafeFloat(f)
			continue
		}
		out[k] = v
	}
	return out
}

// toFloat reads a loosely typed metric. Numeric strings are parsed and
// booleans count as 0 or 1. Missing, nil, non-numeric and NaN values count
// as 0; infinities are kept.
func toFloat(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return f
}
