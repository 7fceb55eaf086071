package experiment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/nxstacker/internal/identifier"
	"github.com/example/nxstacker/internal/projection"
)

func TestParseTransitions(t *testing.T) {
	got, err := ParseTransitions("Fe-Ka, Ca-Ka")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != "Fe-Ka" || got[1] != "Ca-Ka" {
		t.Fatalf("unexpected transitions %v", got)
	}

	for _, bad := range []string{"", "iron", "Fe_Ka", "fe-Ka"} {
		if _, err := ParseTransitions(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func xrfRecords(scans ...int64) []*projection.Record {
	recs := make([]*projection.Record, 0, len(scans))
	for _, s := range scans {
		recs = append(recs, &projection.Record{
			Path:     fmt.Sprintf("/proj/i14-%d_xrf.nxs", s),
			Software: projection.SoftwareXRFWindow,
			Scan:     s,
			RawDir:   "/raw",
		})
	}
	return recs
}

func testXRF(t *testing.T, recs []*projection.Record, angles map[int64]float64) *XRF {
	t.Helper()
	fac := testFacility()
	fac.MetadataFiles = []string{"%(raw_dir)/i14-%(scan).nxs"}
	return &XRF{
		Params: Params{
			Facility:  fac,
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
		Transitions: []string{"Fe-Ka"},
		reader:      anglesByScan(angles),
	}
}

func TestXRFRunWritesOneFilePerTransition(t *testing.T) {
	e := testXRF(t, xrfRecords(200, 201, 202),
		map[int64]float64{200: 0, 201: 60, 202: 120})
	e.Transitions = []string{"Fe-Ka", "Ca-Ka"}
	e.load = &loaders{
		floats: func(path, dset string) ([]float64, []int, error) {
			return []float64{1, 2, 3, 4}, []int{2, 2}, nil
		},
	}

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Written) != 2 {
		t.Fatalf("expected one file per transition, got %v", sum.Written)
	}
	names := []string{
		filepath.Base(sum.Written[0]),
		filepath.Base(sum.Written[1]),
	}
	// writer sorts the returned paths
	if names[0] != "tomo_xrf_200_202_Ca-Ka.nxs" || names[1] != "tomo_xrf_200_202_Fe-Ka.nxs" {
		t.Fatalf("unexpected output names %v", names)
	}
}

func TestXRFSkipsProjectionMissingAMap(t *testing.T) {
	e := testXRF(t, xrfRecords(200, 201, 202),
		map[int64]float64{200: 0, 201: 60, 202: 120})
	e.load = &loaders{
		floats: func(path, dset string) ([]float64, []int, error) {
			if strings.Contains(path, "201") {
				return nil, nil, fmt.Errorf("no dataset at %s", dset)
			}
			return []float64{1, 2, 3, 4}, []int{2, 2}, nil
		},
	}

	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Skipped != 1 {
		t.Fatalf("expected the one missing map to be skipped, got %+v", sum)
	}
	if len(sum.Written) != 1 {
		t.Fatalf("expected one output file, got %v", sum.Written)
	}
}

func TestXRFTransitionMissingEverywhere(t *testing.T) {
	e := testXRF(t, xrfRecords(200, 201), map[int64]float64{200: 0, 201: 60})
	e.load = &loaders{
		floats: func(path, dset string) ([]float64, []int, error) {
			return nil, nil, fmt.Errorf("no dataset at %s", dset)
		},
	}

	_, err := e.Run(context.Background())
	var tnf *TransitionNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected TransitionNotFoundError, got %v", err)
	}
	if tnf.Transition != "Fe-Ka" {
		t.Fatalf("unexpected transition %q", tnf.Transition)
	}
}
