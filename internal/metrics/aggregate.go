package metrics

import "encoding/json"

// Summary is the cross-symbol aggregate of a multi-symbol run.
type Summary struct {
	AvgTotalReturn   float64
	AvgCAGR          float64
	AvgVolatility    float64
	AvgSharpe        float64
	AvgSortino       float64
	AvgMaxDrawdown   float64
	AvgWinRate       float64
	AvgProfitFactor  float64 // +Inf once any symbol has wins and no losses
	NumTrades        int
	RoundTrips       int
	TotalRealizedPnL float64
	Symbols          []map[string]any
}

// Aggregate averages per-symbol reports. Symbols carries each report's
// JSON-safe map.
func Aggregate(reports []Report) Summary {
	rows := make([]map[string]any, len(reports))
	for i, r := range reports {
		rows[i] = r.fields()
	}
	s := AggregateMaps(rows)
	for i, r := range reports {
		s.Symbols[i] = r.Map()
	}
	return s
}

// AggregateMaps averages loosely typed per-symbol metric maps. Missing or
// non-numeric fields count as 0 so one bad symbol never fails the aggregate.
func AggregateMaps(perSymbol []map[string]any) Summary {
	s := Summary{Symbols: make([]map[string]any, len(perSymbol))}
	copy(s.Symbols, perSymbol)
	if len(perSymbol) == 0 {
		return s
	}

	avg := func(key string) float64 {
		var sum float64
		for _, m := range perSymbol {
			sum += toFloat(m[key])
		}
		return sum / float64(len(perSymbol))
	}

	s.AvgTotalReturn = avg("total_return")
	s.AvgCAGR = avg("cagr")
	s.AvgVolatility = avg("volatility")
	s.AvgSharpe = avg("sharpe")
	s.AvgSortino = avg("sortino")
	s.AvgMaxDrawdown = avg("max_drawdown")
	s.AvgWinRate = avg("win_rate")
	s.AvgProfitFactor = avg("profit_factor")
	for _, m := range perSymbol {
		s.NumTrades += int(orZero(toFloat(m["num_trades"])))
		s.RoundTrips += int(orZero(toFloat(m["round_trips"])))
		s.TotalRealizedPnL += orZero(toFloat(m["total_realized_pnl"]))
	}
	return s
}

// Map returns the summary as a JSON-safe map.
func (s Summary) Map() map[string]any {
	m := safeMap(map[string]any{
		"avg_total_return":   s.AvgTotalReturn,
		"avg_cagr":           s.AvgCAGR,
		"avg_volatility":     s.AvgVolatility,
		"avg_sharpe":         s.AvgSharpe,
		"avg_sortino":        s.AvgSortino,
		"avg_max_drawdown":   s.AvgMaxDrawdown,
		"avg_win_rate":       s.AvgWinRate,
		"avg_profit_factor":  s.AvgProfitFactor,
		"num_trades":         s.NumTrades,
		"round_trips":        s.RoundTrips,
		"total_realized_pnl": s.TotalRealizedPnL,
	})
	symbols := make([]map[string]any, len(s.Symbols))
	for i, sym := range s.Symbols {
		symbols[i] = safeMap(sym)
	}
	m["symbols"] = symbols
	return m
}

// MarshalJSON encodes the summary with non-finite values as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
