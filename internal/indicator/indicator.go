// Package indicator computes rolling technical indicators over ordered price
// sequences. Warm-up positions are reported as invalid values rather than NaN
// so callers have to check availability explicitly.
package indicator

import "math"

// rsiEpsilon replaces a zero average loss so RSI saturates toward 100
// instead of dividing by zero.
const rsiEpsilon = 1e-12

// Value is an indicator reading that may be unavailable.
type Value struct {
	Float float64
	Valid bool
}

// Some returns an available value.
func Some(f float64) Value { return Value{Float: f, Valid: true} }

// None is the unavailable value.
var None = Value{}

// Any returns the float when available and nil otherwise. It is meant for
// decision traces.
func (v Value) Any() any {
	if !v.Valid {
		return nil
	}
	return v.Float
}

// Series is an indicator column aligned index-for-index with its input.
type Series []Value

// At returns the value at i, or None when i is out of range.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return None
	}
	return s[i]
}

// Valid reports the number of available values in s.
func (s Series) Valid() int {
	n := 0
	for _, v := range s {
		if v.Valid {
			n++
		}
	}
	return n
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// SMA is the simple rolling mean over window points. Indices below window-1
// are unavailable, as is any window holding a NaN or infinite input. A
// non-positive window yields an all-unavailable series.
func SMA(x []float64, window int) Series {
	out := make(Series, len(x))
	if window <= 0 {
		return out
	}
	var sum float64
	bad := 0
	for i := range x {
		if finite(x[i]) {
			sum += x[i]
		} else {
			bad++
		}
		if i >= window {
			if old := x[i-window]; finite(old) {
				sum -= old
			} else {
				bad--
			}
		}
		if i < window-1 || bad > 0 {
			continue
		}
		out[i] = Some(sum / float64(window))
	}
	return out
}

// RSI is the relative strength index built from rolling means of gains and
// losses over window price changes. The first window points are unavailable
// since window changes need window+1 prices; so is any window containing a
// change to or from a NaN or infinite price.
func RSI(x []float64, window int) Series {
	out := make(Series, len(x))
	if window <= 0 || len(x) <= window {
		return out
	}

	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	broken := make([]bool, len(x))
	for i := 1; i < len(x); i++ {
		if !finite(x[i]) || !finite(x[i-1]) {
			broken[i] = true
			continue
		}
		d := x[i] - x[i-1]
		switch {
		case d > 0:
			gains[i] = d
		case d < 0:
			losses[i] = -d
		}
	}

	var sumGain, sumLoss float64
	bad := 0
	for i := 1; i < len(x); i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
		if broken[i] {
			bad++
		}
		if i > window {
			sumGain -= gains[i-window]
			sumLoss -= losses[i-window]
			if broken[i-window] {
				bad--
			}
		}
		if i < window || bad > 0 {
			continue
		}
		avgGain := sumGain / float64(window)
		avgLoss := sumLoss / float64(window)
		if avgLoss <= 0 {
			avgLoss = rsiEpsilon
		}
		if avgGain < 0 {
			// running-sum drift on long flat stretches
			avgGain = 0
		}
		rs := avgGain / avgLoss
		out[i] = Some(100 - 100/(1+rs))
	}
	return out
}
