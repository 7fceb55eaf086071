package experiment

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func phaseOf(re, im []float64) []float64 {
	out := make([]float64, len(re))
	for i := range re {
		out[i] = math.Atan2(im[i], re[i])
	}
	return out
}

func modulusOf(re, im []float64) []float64 {
	out := make([]float64, len(re))
	for i := range re {
		out[i] = math.Hypot(re[i], im[i])
	}
	return out
}

// medianShift rotates the complex field so its median phase sits at
// zero. Multiplying by exp(-i*median) leaves the modulus untouched.
func medianShift(re, im []float64) {
	phase := phaseOf(re, im)
	sort.Float64s(phase)
	med := stat.Quantile(0.5, stat.Empirical, phase, nil)

	c, s := math.Cos(-med), math.Sin(-med)
	for i := range re {
		re[i], im[i] = re[i]*c-im[i]*s, re[i]*s+im[i]*c
	}
}

func unwrapSeq(phase []float64, idx func(int) int, n int) {
	if n == 0 {
		return
	}
	prev := phase[idx(0)]
	shift := 0.0
	for i := 1; i < n; i++ {
		v := phase[idx(i)]
		d := v + shift - prev
		for d > math.Pi {
			shift -= 2 * math.Pi
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			shift += 2 * math.Pi
			d += 2 * math.Pi
		}
		v += shift
		phase[idx(i)] = v
		prev = v
	}
}

// unwrapPhase removes 2π discontinuities along the first row and then
// down every column, seeding each column from the unwrapped row. The
// sign is flipped afterwards when fewer than half the pixels are
// positive, so stacks keep a consistent polarity.
func unwrapPhase(phase []float64, rows, cols int) {
	unwrapSeq(phase, func(i int) int { return i }, cols)
	for c := 0; c < cols; c++ {
		col := c
		unwrapSeq(phase, func(i int) int { return i*cols + col }, rows)
	}

	positive := 0
	for _, v := range phase {
		if v > 0 {
			positive++
		}
	}
	if positive*2 < len(phase) {
		for i := range phase {
			phase[i] = -phase[i]
		}
	}
}

const trimTolerance = 1e-8

// trimPadding crops the rows and columns at the border where every
// pixel equals the pad value, as left behind by reconstructions that
// embed the object in a larger canvas.
func trimPadding(vals []float64, rows, cols int, pad float64) ([]float64, int, int) {
	padded := func(v float64) bool { return math.Abs(v-pad) < trimTolerance }

	rowPadded := func(r int) bool {
		for c := 0; c < cols; c++ {
			if !padded(vals[r*cols+c]) {
				return false
			}
		}
		return true
	}
	colPadded := func(c int) bool {
		for r := 0; r < rows; r++ {
			if !padded(vals[r*cols+c]) {
				return false
			}
		}
		return true
	}

	top, bottom := 0, rows
	for top < bottom && rowPadded(top) {
		top++
	}
	for bottom > top && rowPadded(bottom-1) {
		bottom--
	}
	left, right := 0, cols
	for left < right && colPadded(left) {
		left++
	}
	for right > left && colPadded(right-1) {
		right--
	}

	if top == 0 && left == 0 && bottom == rows && right == cols {
		return vals, rows, cols
	}
	if top >= bottom || left >= right {
		// fully padded, keep as is rather than return nothing
		return vals, rows, cols
	}

	outRows, outCols := bottom-top, right-left
	out := make([]float64, 0, outRows*outCols)
	for r := top; r < bottom; r++ {
		out = append(out, vals[r*cols+left:r*cols+right]...)
	}
	return out, outRows, outCols
}
