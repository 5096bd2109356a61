package metrics

import (
	"math"

	"stratlab/internal/domain"
)

// TradeMetrics summarize closed round trips, which are the SELL trades.
type TradeMetrics struct {
	RoundTrips       int     `json:"round_trips"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"` // +Inf when every round trip won
	AvgTradePnL      float64 `json:"avg_trade_pnl"`
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
}

// ComputeTradeMetrics derives win rate, profit factor and realized P&L from
// the SELL trades in trades.
func ComputeTradeMetrics(trades []domain.Trade) TradeMetrics {
	var out TradeMetrics
	var grossProfit, grossLoss float64
	wins := 0
	for _, t := range trades {
		if t.Side != domain.ActionSell {
			continue
		}
		pnl := orZero(t.PnL)
		out.RoundTrips++
		out.TotalRealizedPnL += pnl
		switch {
		case pnl > 0:
			wins++
			grossProfit += pnl
		case pnl < 0:
			grossLoss -= pnl
		}
	}
	if out.RoundTrips == 0 {
		return out
	}

	out.WinRate = float64(wins) / float64(out.RoundTrips)
	out.AvgTradePnL = out.TotalRealizedPnL / float64(out.RoundTrips)
	switch {
	case grossLoss > 0:
		out.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		out.ProfitFactor = math.Inf(1)
	}
	return out
}
