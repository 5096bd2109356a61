package indicator

import (
	"math"
	"testing"
)

const tol = 1e-9

func TestSMAWarmupAndValues(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 0; i < 2; i++ {
		if got[i].Valid {
			t.Errorf("index %d should be unavailable during warm-up", i)
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		v := got[i+2]
		if !v.Valid || math.Abs(v.Float-w) > tol {
			t.Errorf("SMA[%d] = %+v, want %v", i+2, v, w)
		}
	}
}

func TestSMAEdgeCases(t *testing.T) {
	if got := SMA([]float64{1, 2}, 0); got.Valid() != 0 {
		t.Errorf("window 0 produced %d valid values, want 0", got.Valid())
	}
	if got := SMA([]float64{1, 2}, 3); got.Valid() != 0 {
		t.Errorf("short series produced %d valid values, want 0", got.Valid())
	}
	if got := SMA([]float64{7}, 1); !got[0].Valid || got[0].Float != 7 {
		t.Errorf("window 1 = %+v, want 7", got[0])
	}
}

func TestSMASkipsNonFiniteWindows(t *testing.T) {
	got := SMA([]float64{1, 2, math.NaN(), 4, 5, 6, 7, 8}, 2)
	for _, i := range []int{2, 3} {
		if got[i].Valid {
			t.Errorf("SMA[%d] = %+v, want unavailable", i, got[i])
		}
	}
	for i, w := range map[int]float64{1: 1.5, 4: 4.5, 7: 7.5} {
		if !got[i].Valid || math.Abs(got[i].Float-w) > tol {
			t.Errorf("SMA[%d] = %+v, want %v", i, got[i], w)
		}
	}

	inf := SMA([]float64{1, math.Inf(1), 3, 5}, 2)
	if inf[1].Valid || inf[2].Valid || !inf[3].Valid || inf[3].Float != 4 {
		t.Errorf("SMA with +Inf = %+v", inf)
	}
}

func TestRSISkipsNonFiniteWindows(t *testing.T) {
	got := RSI([]float64{1, 2, 3, math.NaN(), 5, 6, 7, 8, 9}, 2)
	if !got[2].Valid {
		t.Errorf("RSI[2] = %+v, want available", got[2])
	}
	for _, i := range []int{3, 4, 5} {
		if got[i].Valid {
			t.Errorf("RSI[%d] = %+v, want unavailable", i, got[i])
		}
	}
	for i := 6; i < len(got); i++ {
		if !got[i].Valid || got[i].Float < 99.9 {
			t.Errorf("RSI[%d] = %+v, want ~100", i, got[i])
		}
	}
}

func TestRSIWarmupLength(t *testing.T) {
	x := []float64{10, 11, 12, 11, 13, 14, 13}
	got := RSI(x, 3)
	for i := 0; i < 3; i++ {
		if got[i].Valid {
			t.Errorf("RSI[%d] should be unavailable", i)
		}
	}
	for i := 3; i < len(x); i++ {
		if !got[i].Valid {
			t.Errorf("RSI[%d] should be available", i)
		}
	}
}

func TestRSIValues(t *testing.T) {
	// changes: +1, +1, -1 -> avg gain 2/3, avg loss 1/3, rs 2 -> rsi 66.67
	got := RSI([]float64{10, 11, 12, 11}, 3)
	want := 100 - 100/(1+2.0)
	if !got[3].Valid || math.Abs(got[3].Float-want) > 1e-9 {
		t.Errorf("RSI[3] = %+v, want %v", got[3], want)
	}
}

func TestRSISaturatesWithoutLosses(t *testing.T) {
	got := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
	last := got[len(got)-1]
	if !last.Valid {
		t.Fatal("last RSI should be available")
	}
	if math.IsNaN(last.Float) || math.IsInf(last.Float, 0) {
		t.Fatalf("RSI not finite: %v", last.Float)
	}
	if last.Float < 99.999 {
		t.Errorf("RSI = %v, want saturated near 100", last.Float)
	}
}

func TestRSIAllLosses(t *testing.T) {
	got := RSI([]float64{6, 5, 4, 3}, 3)
	if !got[3].Valid || got[3].Float != 0 {
		t.Errorf("RSI = %+v, want 0", got[3])
	}
}

func TestValueAny(t *testing.T) {
	if None.Any() != nil {
		t.Error("None.Any() should be nil")
	}
	if Some(1.5).Any() != 1.5 {
		t.Error("Some(1.5).Any() should be 1.5")
	}
	var s Series
	if s.At(3).Valid {
		t.Error("At out of range should be unavailable")
	}
}
