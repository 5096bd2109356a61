// Package metrics turns a simulated equity curve and trade log into
// risk/return statistics and aggregates them across symbols.
package metrics

import "strings"

// MarketEquity is the market whose sessions follow an exchange calendar.
// Every other market is treated as trading around the clock.
const MarketEquity = "equity"

// AnnualizationFactor returns the number of sampling periods per year for an
// interval in a market. Equity intraday factors assume six bars per hour-long
// session slot, an approximation of the 6.5 hour day. Unknown intervals fall
// back to the daily factor.
func AnnualizationFactor(market, interval string) int {
	equity := strings.EqualFold(market, MarketEquity)
	itv := strings.ToLower(strings.TrimSpace(interval))
	if itv == "60m" {
		itv = "1h"
	}

	days := 365
	if equity {
		days = 252
	}
	perDay := func(equitySlots, clockSlots int) int {
		if equity {
			return days * equitySlots
		}
		return days * clockSlots
	}

	switch {
	case strings.HasSuffix(itv, "d"):
		return days
	case itv == "1h" || itv == "90m":
		return perDay(6, 24)
	case itv == "30m":
		return perDay(13, 48)
	case itv == "15m":
		return perDay(26, 96)
	case itv == "5m":
		return perDay(78, 288)
	case itv == "1m":
		return perDay(390, 1440)
	}
	return days
}
