package indicator

import (
	"math"
	"testing"
)

func TestCrossedAbove(t *testing.T) {
	cases := []struct {
		name   string
		closes []float64
		emas   []float64
		want   bool
	}{
		{"crosses up", []float64{99, 101}, []float64{100, 100}, true},
		{"touch then break", []float64{100, 101}, []float64{100, 100}, true},
		{"already above", []float64{101, 102}, []float64{100, 100}, false},
		{"stays below", []float64{98, 99}, []float64{100, 100}, false},
		{"too short", []float64{101}, []float64{100}, false},
		{"length mismatch", []float64{99, 101, 102}, []float64{100, 100}, false},
	}
	for _, c := range cases {
		if got := CrossedAbove(c.closes, c.emas); got != c.want {
			t.Errorf("%s: CrossedAbove = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCrossedBelow(t *testing.T) {
	if !CrossedBelow([]float64{101, 99}, []float64{100, 100}) {
		t.Error("downward cross not detected")
	}
	if CrossedBelow([]float64{99, 98}, []float64{100, 100}) {
		t.Error("already below is not a cross")
	}
}

func TestEMADiffPct(t *testing.T) {
	if got := EMADiffPct(103, 100); math.Abs(got-3) > 1e-12 {
		t.Errorf("diff = %v, want 3", got)
	}
	if got := EMADiffPct(97, 100); math.Abs(got+3) > 1e-12 {
		t.Errorf("diff = %v, want -3", got)
	}
	if got := EMADiffPct(100, 0); got != 0 {
		t.Errorf("zero ema must yield 0, got %v", got)
	}
}

func TestVolumeRatio(t *testing.T) {
	// 前5根均量100，最新一根150
	vols := []float64{100, 100, 100, 100, 100, 150}
	if got := VolumeRatio(vols, 5); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("ratio = %v, want 1.5", got)
	}
	// 数据不足
	if got := VolumeRatio([]float64{100, 150}, 5); got != 0 {
		t.Errorf("short series = %v, want 0", got)
	}
	// 均量为0
	if got := VolumeRatio([]float64{0, 0, 0, 150}, 3); got != 0 {
		t.Errorf("zero average = %v, want 0", got)
	}
}

func TestMomentum(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 112}
	// 最新值与10根之前的差：112-100
	if got := Momentum(closes, 10); math.Abs(got-12) > 1e-9 {
		t.Errorf("momentum = %v, want 12", got)
	}
	if got := Momentum(closes[:5], 10); got != 0 {
		t.Errorf("insufficient data = %v, want 0", got)
	}
}

func TestGuardsOnShortSeries(t *testing.T) {
	short := []float64{1, 2, 3}
	if RSI(short, 6) != 0 {
		t.Error("rsi on short series must be 0")
	}
	if EMA(short, 9) != 0 {
		t.Error("ema on short series must be 0")
	}
	if EMASeries(short, 9) != nil {
		t.Error("ema series on short series must be nil")
	}
	if ATRPct(short, short, short, 14) != 0 {
		t.Error("atr on short series must be 0")
	}
}
