package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/nxstacker/internal/hdf"
	"github.com/example/nxstacker/internal/projection"
	"github.com/example/nxstacker/internal/stack"
)

// PtyREX embeds the object in a larger canvas; the border carries
// these fill values.
const (
	ptyrexPadModulus = 1
	ptyrexPadPhase   = 0
)

// loaders reads image data out of reconstruction files. Function
// fields so tests run without libhdf5.
type loaders struct {
	complexData func(path, dset string) (re, im []float64, shape []int, err error)
	floats      func(path, dset string) ([]float64, []int, error)
}

func defaultLoaders() *loaders {
	return &loaders{
		complexData: func(path, dset string) ([]float64, []float64, []int, error) {
			f, err := hdf.Open(path)
			if err != nil {
				return nil, nil, nil, err
			}
			defer f.Close()
			return f.ReadComplex(dset)
		},
		floats: func(path, dset string) ([]float64, []int, error) {
			f, err := hdf.Open(path)
			if err != nil {
				return nil, nil, err
			}
			defer f.Close()
			return f.ReadFloats(dset)
		},
	}
}

// frameSlice extracts mode 0 of a multi-mode dataset: the image is the
// last two dimensions, everything before them indexes modes and
// channels.
func frameSlice(vals []float64, shape []int) ([]float64, int, int, error) {
	if len(shape) < 2 {
		return nil, 0, 0, fmt.Errorf("expected at least 2 dimensions, got %d", len(shape))
	}
	rows, cols := shape[len(shape)-2], shape[len(shape)-1]
	if rows <= 0 || cols <= 0 || rows*cols > len(vals) {
		return nil, 0, 0, fmt.Errorf("dataset smaller than its declared shape")
	}
	return vals[:rows*cols], rows, cols, nil
}

// Ptycho stacks ptychography reconstructions into NXtomo files, one
// per requested output plane.
type Ptycho struct {
	Params

	SaveComplex bool
	SaveModulus bool
	SavePhase   bool
	RemoveRamp  bool
	MedianNorm  bool
	UnwrapPhase bool
	Rescale     bool

	reader *rawReader
	load   *loaders
}

// Run executes the whole pipeline and reports what was written.
func (e *Ptycho) Run(ctx context.Context) (*Summary, error) {
	log := e.logger()
	if e.reader == nil {
		e.reader = defaultRawReader()
	}
	if e.load == nil {
		e.load = defaultLoaders()
	}
	if !e.SaveComplex && !e.SaveModulus && !e.SavePhase {
		e.SavePhase = true
	}
	if e.RemoveRamp {
		log.Warn("phase ramp removal is not implemented, skipping")
	}
	if e.Rescale {
		log.Warn("rescaling is not implemented, skipping")
	}

	schemas, err := schemasFor(e.Facility.PtychoFileTypes)
	if err != nil {
		return nil, err
	}
	recs, err := e.locateRecords(ctx, schemas)
	if err != nil {
		return nil, err
	}
	located := len(recs)

	if err := e.gatherAngles(recs, e.reader); err != nil {
		return nil, err
	}
	kept, skipped := e.filterByAngle(recs)
	if len(kept) == 0 {
		return nil, fmt.Errorf("every projection was excluded by the angle filter")
	}

	meta := rangeMetadata(kept)
	meta.DetectorDistance = e.detectorDistance(kept, e.reader)
	px := e.pixelSize(kept, e.reader)
	meta.XPixelSize = px
	meta.YPixelSize = px

	software := kept[0].Software
	complexAvail := software == projection.SoftwarePtyPy

	wantCplx := e.SaveComplex
	if wantCplx && !complexAvail {
		log.Warn("complex data is not saved by this software, skipping complex output",
			zap.String("software", string(software)))
		wantCplx = false
	}
	wantModl := e.SaveModulus
	wantPhas := e.SavePhase
	if !wantCplx && !wantModl && !wantPhas {
		return nil, fmt.Errorf("no output plane left to save")
	}
	if e.MedianNorm && !complexAvail {
		log.Warn("median normalisation needs the complex data, skipping",
			zap.String("software", string(software)))
	}

	var cplxFrames, modlFrames, phasFrames []*stack.Frame
	if wantCplx {
		cplxFrames = make([]*stack.Frame, len(kept))
	}
	if wantModl {
		modlFrames = make([]*stack.Frame, len(kept))
	}
	if wantPhas {
		phasFrames = make([]*stack.Frame, len(kept))
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers())
	for i, rec := range kept {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if complexAvail {
				return e.loadComplexPlanes(rec, i, cplxFrames, modlFrames, phasFrames)
			}
			return e.loadRealPlanes(rec, i, modlFrames, phasFrames)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if wantPhas && e.UnwrapPhase {
		phasFrames, err = stack.Align(phasFrames, e.PadToMax)
		if err != nil {
			return nil, err
		}
		for _, f := range phasFrames {
			unwrapPhase(f.Real, f.Rows, f.Cols)
		}
	}

	var assemblies []stack.Assembly
	if wantCplx {
		assemblies = append(assemblies, stack.Assembly{
			Role: stack.RoleComplex, Complex: true, Frames: cplxFrames,
		})
	}
	if wantModl {
		assemblies = append(assemblies, stack.Assembly{
			Role: stack.RoleModulus, Frames: modlFrames,
		})
	}
	if wantPhas {
		assemblies = append(assemblies, stack.Assembly{
			Role: stack.RolePhase, Frames: phasFrames,
		})
	}

	w := e.stackWriter()
	w.ShortName = "ptycho"
	paths, err := w.Write(ctx, meta, assemblies)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Located: located,
		Stacked: len(kept),
		Skipped: skipped,
		Written: paths,
	}, nil
}

func (e *Ptycho) frame(rec *projection.Record, rows, cols int, re, im []float64) *stack.Frame {
	return &stack.Frame{
		Scan:  rec.Scan,
		Proj:  rec.Proj,
		Angle: rec.Angle,
		Rows:  rows,
		Cols:  cols,
		Real:  re,
		Imag:  im,
	}
}

// loadComplexPlanes reads the complex object once and derives every
// requested plane from it, saving a second pass over the file.
func (e *Ptycho) loadComplexPlanes(rec *projection.Record, i int, cplx, modl, phas []*stack.Frame) error {
	re, im, shape, err := e.load.complexData(rec.Path, rec.ObjectPath)
	if err != nil {
		return fmt.Errorf("read complex object from %s: %w", rec.Path, err)
	}
	re, rows, cols, err := frameSlice(re, shape)
	if err != nil {
		return fmt.Errorf("%s: %w", rec.Path, err)
	}
	im = im[:rows*cols]

	if cplx != nil {
		cplx[i] = e.frame(rec, rows, cols, re, im)
	}
	if modl != nil {
		modl[i] = e.frame(rec, rows, cols, modulusOf(re, im), nil)
	}
	if phas != nil {
		pre, pim := re, im
		if e.MedianNorm {
			pre = append([]float64(nil), re...)
			pim = append([]float64(nil), im...)
			medianShift(pre, pim)
		}
		phas[i] = e.frame(rec, rows, cols, phaseOf(pre, pim), nil)
	}
	return nil
}

// loadRealPlanes reads modulus and phase directly when the software
// does not save the complex field. Each plane is trimmed of the canvas
// border its own fill value marks.
func (e *Ptycho) loadRealPlanes(rec *projection.Record, i int, modl, phas []*stack.Frame) error {
	if modl != nil {
		vals, shape, err := e.load.floats(rec.Path, projection.PtyREXObjectModulus)
		if err != nil {
			return fmt.Errorf("read object modulus from %s: %w", rec.Path, err)
		}
		vals, rows, cols, err := frameSlice(vals, shape)
		if err != nil {
			return fmt.Errorf("%s: %w", rec.Path, err)
		}
		vals, rows, cols = trimPadding(vals, rows, cols, ptyrexPadModulus)
		modl[i] = e.frame(rec, rows, cols, vals, nil)
	}
	if phas != nil {
		vals, shape, err := e.load.floats(rec.Path, projection.PtyREXObjectPhase)
		if err != nil {
			return fmt.Errorf("read object phase from %s: %w", rec.Path, err)
		}
		vals, rows, cols, err := frameSlice(vals, shape)
		if err != nil {
			return fmt.Errorf("%s: %w", rec.Path, err)
		}
		vals, rows, cols = trimPadding(vals, rows, cols, ptyrexPadPhase)
		phas[i] = e.frame(rec, rows, cols, vals, nil)
	}
	return nil
}
