// Package experiment drives a stacking run for one experiment type:
// locate the reconstruction files, pull the metadata from the raw
// area, filter by rotation angle and hand the frames to the NXtomo
// writer.
package experiment

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/example/nxstacker/internal/facility"
	"github.com/example/nxstacker/internal/identifier"
	"github.com/example/nxstacker/internal/projection"
	"github.com/example/nxstacker/internal/stack"
)

// Params collects the settings shared by every experiment type.
type Params struct {
	Facility    *facility.Facility
	ProjDir     string
	FilePattern string
	OutputDir   string
	RawDir      string

	Scans  *identifier.Set
	Projs  *identifier.Set
	Angles *identifier.Set

	SortByAngle bool
	PadToMax    bool
	Compress    bool
	SkipCheck   bool
	DryRun      bool
	Workers     int

	Log *zap.Logger

	// locate overrides file discovery in tests.
	locate func(ctx context.Context, schemas []*projection.Schema) ([]*projection.Record, error)
}

func (p *Params) locateRecords(ctx context.Context, schemas []*projection.Schema) ([]*projection.Record, error) {
	if p.locate != nil {
		return p.locate(ctx, schemas)
	}
	return p.locator(schemas).Locate(ctx)
}

// Summary reports what a run did.
type Summary struct {
	Located int
	Stacked int
	Skipped int
	Written []string
}

func (p *Params) logger() *zap.Logger {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	return p.Log
}

func (p *Params) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return projection.DefaultWorkers()
}

func (p *Params) locator(schemas []*projection.Schema) *projection.Locator {
	return &projection.Locator{
		Dir:         p.ProjDir,
		FilePattern: p.FilePattern,
		Schemas:     schemas,
		Scans:       p.Scans,
		Projs:       p.Projs,
		RawDir:      p.RawDir,
		SkipCheck:   p.SkipCheck,
		Workers:     p.workers(),
		Log:         p.logger(),
	}
}

func schemasFor(names []string) ([]*projection.Schema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no reconstruction software configured for this facility")
	}
	out := make([]*projection.Schema, 0, len(names))
	for _, n := range names {
		s, err := projection.SchemaFor(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// filterByAngle keeps the records whose rotation angle matches the
// included angles within the tolerance.
func (p *Params) filterByAngle(recs []*projection.Record) (kept []*projection.Record, skipped int) {
	if p.Angles.Unfiltered() {
		return recs, 0
	}
	for _, r := range recs {
		if p.Angles.Contains(r.Angle) {
			kept = append(kept, r)
		} else {
			skipped++
			p.logger().Debug("angle excluded",
				zap.String("path", r.Path),
				zap.Float64("angle", r.Angle))
		}
	}
	return kept, skipped
}

// rangeMetadata fills the identifier range part of the stack metadata
// from an ordered record list.
func rangeMetadata(recs []*projection.Record) stack.Metadata {
	first, last := recs[0], recs[len(recs)-1]
	meta := stack.Metadata{
		ScanStart:  first.Scan,
		ScanEnd:    last.Scan,
		ProjStart:  first.Proj,
		ProjEnd:    last.Proj,
		SingleScan: first.Scan == last.Scan,
	}
	if meta.SingleScan {
		meta.Title = fmt.Sprintf("%d", meta.ScanStart)
	} else {
		meta.Title = fmt.Sprintf("%d-%d", meta.ScanStart, meta.ScanEnd)
	}
	meta.SampleDescription = fmt.Sprintf("Tomography experiment at %s with %s",
		first.RawDir, meta.Title)
	return meta
}

func (p *Params) stackWriter() *stack.Writer {
	return &stack.Writer{
		Facility:    p.Facility,
		OutputDir:   p.OutputDir,
		SortByAngle: p.SortByAngle,
		PadToMax:    p.PadToMax,
		Compress:    p.Compress,
		DryRun:      p.DryRun,
		Log:         p.logger(),
	}
}

// mean ignores NaN entries; zero when nothing contributed.
func mean(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
