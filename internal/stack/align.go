// Package stack holds the in-memory projection frames, reconciles their
// shapes, and assembles them into NXtomo output files.
package stack

import (
	"fmt"
	"strings"
)

// Frame is one projection plane paired with its source identifiers.
// Imag is nil for real-valued frames.
type Frame struct {
	Scan  int64
	Proj  int64
	Angle float64

	Rows, Cols int
	Real       []float64
	Imag       []float64
}

// IsComplex reports whether the frame carries an imaginary part.
func (f *Frame) IsComplex() bool { return f.Imag != nil }

// Shape returns the frame dimensions as (rows, cols).
func (f *Frame) Shape() [2]int { return [2]int{f.Rows, f.Cols} }

// Label identifies the frame's source in error messages and logs.
func (f *Frame) Label() string {
	return fmt.Sprintf("scan %d proj %d", f.Scan, f.Proj)
}

// ShapeMismatchError reports frames whose shapes disagree while padding
// is disabled.
type ShapeMismatchError struct {
	Reference [2]int
	Offenders []string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("inconsistent projection shapes (reference %dx%d, pad-to-max disabled): %s",
		e.Reference[0], e.Reference[1], strings.Join(e.Offenders, "; "))
}

// TargetShape returns the element-wise maximum shape over all frames.
func TargetShape(frames []*Frame) [2]int {
	var target [2]int
	for _, f := range frames {
		if f.Rows > target[0] {
			target[0] = f.Rows
		}
		if f.Cols > target[1] {
			target[1] = f.Cols
		}
	}
	return target
}

// Align brings every frame to a common shape. When all frames already
// share the maximum shape they are returned unchanged. With padToMax
// smaller frames are zero-padded, centred in the target shape.
// Otherwise a ShapeMismatchError names the offending frames.
func Align(frames []*Frame, padToMax bool) ([]*Frame, error) {
	if len(frames) == 0 {
		return frames, nil
	}
	target := TargetShape(frames)

	uniform := true
	for _, f := range frames {
		if f.Shape() != target {
			uniform = false
			break
		}
	}
	if uniform {
		return frames, nil
	}

	if !padToMax {
		ref := frames[0].Shape()
		var offenders []string
		for _, f := range frames {
			if f.Shape() != ref {
				offenders = append(offenders,
					fmt.Sprintf("%s has %dx%d", f.Label(), f.Rows, f.Cols))
			}
		}
		return nil, &ShapeMismatchError{Reference: ref, Offenders: offenders}
	}

	out := make([]*Frame, len(frames))
	for i, f := range frames {
		out[i] = padTo(f, target)
	}
	return out, nil
}

// padTo centres the frame in the target shape and zero-fills the
// border. Frames already at the target shape are returned as-is.
func padTo(f *Frame, target [2]int) *Frame {
	if f.Shape() == target {
		return f
	}

	top := (target[0] - f.Rows) / 2
	left := (target[1] - f.Cols) / 2

	padded := &Frame{
		Scan:  f.Scan,
		Proj:  f.Proj,
		Angle: f.Angle,
		Rows:  target[0],
		Cols:  target[1],
		Real:  make([]float64, target[0]*target[1]),
	}
	if f.Imag != nil {
		padded.Imag = make([]float64, target[0]*target[1])
	}
	for r := 0; r < f.Rows; r++ {
		dst := (r + top) * target[1]
		src := r * f.Cols
		copy(padded.Real[dst+left:dst+left+f.Cols], f.Real[src:src+f.Cols])
		if f.Imag != nil {
			copy(padded.Imag[dst+left:dst+left+f.Cols], f.Imag[src:src+f.Cols])
		}
	}
	return padded
}
