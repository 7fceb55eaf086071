package experiment

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/nxstacker/internal/facility"
	"github.com/example/nxstacker/internal/identifier"
	"github.com/example/nxstacker/internal/projection"
	"github.com/example/nxstacker/internal/stack"
)

func makeFrames(n int) []*stack.Frame { return make([]*stack.Frame, n) }

func testFacility() *facility.Facility {
	return &facility.Facility{
		Name:               "i08-1",
		PtychoFileTypes:    []string{"PtyREX"},
		MetadataFiles:      []string{"%(raw_dir)/i08-1-%(scan).nxs"},
		RotationAnglePaths: []string{"/entry/sample/rotation"},
		DetectorDistance:   0.072,
	}
}

func testSet(t *testing.T, axis identifier.Axis, spec string) *identifier.Set {
	t.Helper()
	s, err := identifier.Resolve(axis, spec, "", "")
	if err != nil {
		t.Fatalf("resolve %q: %v", spec, err)
	}
	return s
}

// anglesByScan serves rotation angles without touching any file.
func anglesByScan(angles map[int64]float64) *rawReader {
	return &rawReader{
		angle: func(candidates, dsets []string, proj int64) (float64, error) {
			for scan, a := range angles {
				for _, c := range candidates {
					if strings.Contains(c, fmt.Sprintf("-%d.nxs", scan)) {
						return a, nil
					}
				}
			}
			return 0, fmt.Errorf("no angle for candidates %v", candidates)
		},
		scalar: func(file string, dsets []string) (float64, error) {
			return 0, fmt.Errorf("not available")
		},
	}
}

func testPtycho(t *testing.T, recs []*projection.Record, angles map[int64]float64) *Ptycho {
	t.Helper()
	e := &Ptycho{
		Params: Params{
			Facility:  testFacility(),
			ProjDir:   t.TempDir(),
			OutputDir: t.TempDir(),
			Scans:     testSet(t, identifier.Scan, ""),
			Projs:     testSet(t, identifier.Proj, ""),
			Angles:    testSet(t, identifier.Angle, ""),
			PadToMax:  true,
			DryRun:    true,
			Workers:   2,
			Log:       zap.NewNop(),
			locate: func(context.Context, []*projection.Schema) ([]*projection.Record, error) {
				return recs, nil
			},
		},
		reader: anglesByScan(angles),
	}
	return e
}

func ptyrexRecords(scans ...int64) []*projection.Record {
	recs := make([]*projection.Record, 0, len(scans))
	for i, s := range scans {
		recs = append(recs, &projection.Record{
			Path:     fmt.Sprintf("/proj/recon_%d_%d_t.hdf", s, i),
			Software: projection.SoftwarePtyREX,
			Scan:     s,
			Proj:     int64(i),
			RawDir:   "/raw",
		})
	}
	return recs
}

func flatLoader(value float64, rows, cols int) *loaders {
	return &loaders{
		floats: func(path, dset string) ([]float64, []int, error) {
			vals := make([]float64, rows*cols)
			for i := range vals {
				vals[i] = value
			}
			return vals, []int{rows, cols}, nil
		},
	}
}

func TestPtychoRunDefaultsToPhase(t *testing.T) {
	recs := ptyrexRecords(100, 101, 102)
	e := testPtycho(t, recs, map[int64]float64{100: 0, 101: 45, 102: 90})
	e.load = flatLoader(2, 4, 4)

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Located != 3 || sum.Stacked != 3 || sum.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.Written) != 1 {
		t.Fatalf("expected the phase file only, got %v", sum.Written)
	}
	if base := filepath.Base(sum.Written[0]); base != "tomo_ptycho_100_102_phase.nxs" {
		t.Fatalf("unexpected output name %s", base)
	}
}

func TestPtychoAngleFilter(t *testing.T) {
	recs := ptyrexRecords(100, 101, 102)
	e := testPtycho(t, recs, map[int64]float64{100: 0, 101: 45, 102: 90})
	e.load = flatLoader(2, 4, 4)
	e.Angles = testSet(t, identifier.Angle, "0-45:45")

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Stacked != 2 || sum.Skipped != 1 {
		t.Fatalf("expected 2 stacked and 1 angle-skipped, got %+v", sum)
	}
}

func TestPtychoComplexOnlyFailsForPtyREX(t *testing.T) {
	recs := ptyrexRecords(100, 101)
	e := testPtycho(t, recs, map[int64]float64{100: 0, 101: 45})
	e.load = flatLoader(2, 4, 4)
	e.SaveComplex = true

	if _, err := e.Run(context.Background()); err == nil {
		t.Fatalf("complex-only output must fail when the software saves none")
	}
}

func TestPtychoComplexDroppedModulusSurvives(t *testing.T) {
	recs := ptyrexRecords(100, 101)
	e := testPtycho(t, recs, map[int64]float64{100: 0, 101: 45})
	e.load = flatLoader(2, 4, 4)
	e.SaveComplex = true
	e.SaveModulus = true

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Written) != 1 {
		t.Fatalf("expected the modulus file only, got %v", sum.Written)
	}
	if !strings.Contains(sum.Written[0], "_modulus.nxs") {
		t.Fatalf("unexpected output %s", sum.Written[0])
	}
}

func TestLoadComplexPlanesDerivesAll(t *testing.T) {
	phases := []float64{0.5, 1.0, 1.5, 2.0}
	e := &Ptycho{Params: Params{Log: zap.NewNop()}}
	e.load = &loaders{
		complexData: func(path, dset string) ([]float64, []float64, []int, error) {
			re := make([]float64, len(phases))
			im := make([]float64, len(phases))
			for i, p := range phases {
				re[i] = 3 * math.Cos(p)
				im[i] = 3 * math.Sin(p)
			}
			return re, im, []int{1, 2, 2}, nil
		},
	}

	rec := &projection.Record{Path: "/proj/a.ptyr", ObjectPath: "/content/obj/S1G00/data"}
	modlFrames := makeFrames(1)
	phasFrames := makeFrames(1)
	if err := e.loadComplexPlanes(rec, 0, nil, modlFrames, phasFrames); err != nil {
		t.Fatalf("load: %v", err)
	}

	for i := range phases {
		if math.Abs(modlFrames[0].Real[i]-3) > 1e-9 {
			t.Fatalf("modulus[%d] = %v, want 3", i, modlFrames[0].Real[i])
		}
		if math.Abs(phasFrames[0].Real[i]-phases[i]) > 1e-9 {
			t.Fatalf("phase[%d] = %v, want %v", i, phasFrames[0].Real[i], phases[i])
		}
	}
}

func TestLoadComplexPlanesMedianNorm(t *testing.T) {
	phases := []float64{0.5, 1.0, 1.5}
	e := &Ptycho{Params: Params{Log: zap.NewNop()}, MedianNorm: true}
	e.load = &loaders{
		complexData: func(path, dset string) ([]float64, []float64, []int, error) {
			re := make([]float64, len(phases))
			im := make([]float64, len(phases))
			for i, p := range phases {
				re[i] = math.Cos(p)
				im[i] = math.Sin(p)
			}
			return re, im, []int{1, 1, 3}, nil
		},
	}

	phasFrames := makeFrames(1)
	rec := &projection.Record{Path: "/proj/a.ptyr"}
	if err := e.loadComplexPlanes(rec, 0, nil, nil, phasFrames); err != nil {
		t.Fatalf("load: %v", err)
	}

	// median phase (1.0) moves to zero
	if math.Abs(phasFrames[0].Real[1]) > 1e-9 {
		t.Fatalf("median-normalised phase should centre at zero, got %v", phasFrames[0].Real[1])
	}
	if math.Abs(phasFrames[0].Real[0]-(-0.5)) > 1e-9 {
		t.Fatalf("phase[0] = %v, want -0.5", phasFrames[0].Real[0])
	}
}
