package metrics

import (
	"math"

	"stratlab/internal/domain"
)

const secondsPerYear = 365.25 * 24 * 3600

// EquityMetrics are the statistics derived from an equity curve.
type EquityMetrics struct {
	CAGR               float64 `json:"cagr"`
	Volatility         float64 `json:"volatility"`
	Sharpe             float64 `json:"sharpe"`
	Sortino            float64 `json:"sortino"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	RiskFreeRateAnnual float64 `json:"risk_free_rate_annual"`
}

// ComputeEquityMetrics derives annualized statistics from points. Fewer than
// two points yield zero metrics.
func ComputeEquityMetrics(points []domain.EquityPoint, ann int, riskFreeAnnual float64) EquityMetrics {
	out := EquityMetrics{RiskFreeRateAnnual: riskFreeAnnual}
	if len(points) < 2 {
		return out
	}

	eq := fillNonPositive(points)
	rets := make([]float64, len(eq)-1)
	for i := 1; i < len(eq); i++ {
		r := eq[i]/eq[i-1] - 1
		if !finite(r) {
			r = 0
		}
		rets[i-1] = r
	}

	var rfPeriod float64
	if ann > 0 {
		rfPeriod = math.Pow(1+riskFreeAnnual, 1/float64(ann)) - 1
	}
	excess := make([]float64, len(rets))
	var downside []float64
	for i, r := range rets {
		excess[i] = r - rfPeriod
		if excess[i] < 0 {
			downside = append(downside, excess[i])
		}
	}

	sqrtAnn := math.Sqrt(float64(ann))
	meanExcess := mean(excess)
	std := sampleStd(rets)
	if std > 0 {
		out.Volatility = std * sqrtAnn
		out.Sharpe = meanExcess / std * sqrtAnn
	}
	if dstd := sampleStd(downside); dstd > 0 {
		out.Sortino = meanExcess / dstd * sqrtAnn
	}

	out.MaxDrawdown = maxDrawdown(eq)
	out.CAGR = cagr(points, eq, ann)

	out.Volatility = orZero(out.Volatility)
	out.Sharpe = orZero(out.Sharpe)
	out.Sortino = orZero(out.Sortino)
	return out
}

// fillNonPositive replaces non-positive equity values with the previous
// positive value, or the next one for a leading run.
func fillNonPositive(points []domain.EquityPoint) []float64 {
	eq := make([]float64, len(points))
	valid := make([]bool, len(points))
	last := math.NaN()
	for i, p := range points {
		if p.Equity > 0 && finite(p.Equity) {
			last = p.Equity
		}
		eq[i] = last
		valid[i] = !math.IsNaN(last)
	}
	next := math.NaN()
	for i := len(eq) - 1; i >= 0; i-- {
		if valid[i] {
			next = eq[i]
			continue
		}
		eq[i] = next
	}
	return eq
}

// maxDrawdown returns the deepest peak-to-trough decline as a positive
// fraction.
func maxDrawdown(eq []float64) float64 {
	peak := math.Inf(-1)
	var worst float64
	for _, v := range eq {
		if v > peak {
			peak = v
		}
		if dd := v/peak - 1; dd < worst {
			worst = dd
		}
	}
	return orZero(math.Abs(worst))
}

func cagr(points []domain.EquityPoint, eq []float64, ann int) float64 {
	first, last := points[0].Timestamp, points[len(points)-1].Timestamp
	var years float64
	if !first.IsZero() && !last.IsZero() {
		years = last.Sub(first).Seconds() / secondsPerYear
	} else if ann > 0 {
		years = float64(len(eq)) / float64(ann)
	}
	years = math.Max(years, 1e-9)
	return orZero(math.Pow(eq[len(eq)-1]/eq[0], 1/years) - 1)
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// sampleStd is the standard deviation with one degree of freedom removed.
func sampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func orZero(x float64) float64 {
	if !finite(x) {
		return 0
	}
	return x
}
