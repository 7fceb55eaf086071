package experiment

import (
	"math"
	"testing"
)

func TestPhaseAndModulus(t *testing.T) {
	re := []float64{1, 0, -2}
	im := []float64{0, 1, 0}

	ph := phaseOf(re, im)
	want := []float64{0, math.Pi / 2, math.Pi}
	for i := range ph {
		if math.Abs(ph[i]-want[i]) > 1e-12 {
			t.Fatalf("phase[%d] = %v, want %v", i, ph[i], want[i])
		}
	}

	mod := modulusOf(re, im)
	for i, w := range []float64{1, 1, 2} {
		if math.Abs(mod[i]-w) > 1e-12 {
			t.Fatalf("modulus[%d] = %v, want %v", i, mod[i], w)
		}
	}
}

func TestMedianShiftCentresPhase(t *testing.T) {
	phases := []float64{0.5, 1.0, 1.5}
	re := make([]float64, len(phases))
	im := make([]float64, len(phases))
	for i, p := range phases {
		re[i] = 2 * math.Cos(p)
		im[i] = 2 * math.Sin(p)
	}

	medianShift(re, im)

	shifted := phaseOf(re, im)
	if math.Abs(shifted[1]) > 1e-9 {
		t.Fatalf("median phase should sit at zero, got %v", shifted[1])
	}
	for i := range re {
		if math.Abs(math.Hypot(re[i], im[i])-2) > 1e-9 {
			t.Fatalf("modulus must survive the shift, got %v", math.Hypot(re[i], im[i]))
		}
	}
}

func TestUnwrapPhaseRecoversRamp(t *testing.T) {
	const n = 10
	phase := make([]float64, n)
	for i := 0; i < n; i++ {
		true_ := float64(i)
		phase[i] = math.Atan2(math.Sin(true_), math.Cos(true_))
	}

	unwrapPhase(phase, 1, n)

	for i := 1; i < n; i++ {
		if math.Abs(phase[i]-phase[i-1]-1) > 1e-9 {
			t.Fatalf("jump between %d and %d not removed: %v -> %v",
				i-1, i, phase[i-1], phase[i])
		}
	}
}

func TestUnwrapPhaseFlipsMostlyNegative(t *testing.T) {
	phase := []float64{-1, -1, -1, -1}
	unwrapPhase(phase, 2, 2)
	for i, v := range phase {
		if v != 1 {
			t.Fatalf("phase[%d] = %v, expected sign flip to +1", i, v)
		}
	}
}

func TestTrimPaddingCropsBorder(t *testing.T) {
	// 4x4 canvas, pad value 0, payload in the centre
	vals := []float64{
		0, 0, 0, 0,
		0, 3, 4, 0,
		0, 5, 6, 0,
		0, 0, 0, 0,
	}
	out, rows, cols := trimPadding(vals, 4, 4, 0)
	if rows != 2 || cols != 2 {
		t.Fatalf("expected 2x2 after trim, got %dx%d", rows, cols)
	}
	for i, w := range []float64{3, 4, 5, 6} {
		if out[i] != w {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestTrimPaddingLeavesUnpadded(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	out, rows, cols := trimPadding(vals, 2, 2, 0)
	if rows != 2 || cols != 2 || &out[0] != &vals[0] {
		t.Fatalf("unpadded image must pass through untouched")
	}
}
