// assemble.go orders aligned frames and writes one NXtomo container per
// output role.
package stack

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/nxstacker/internal/facility"
	"github.com/example/nxstacker/internal/hdf"
)

// Role names an output stack: a ptychography plane or an XRF transition.
type Role string

const (
	RoleComplex Role = "complex"
	RoleModulus Role = "modulus"
	RolePhase   Role = "phase"
)

// Assembly is the set of frames destined for one output file.
type Assembly struct {
	Role    Role
	Complex bool
	Frames  []*Frame
}

// Metadata carries the provenance written alongside each stack.
type Metadata struct {
	Title             string
	SampleDescription string
	DetectorDistance  float64 // metres, 0 when unknown
	XPixelSize        float64 // metres
	YPixelSize        float64 // metres
	StartTime         string  // ISO 8601
	EndTime           string  // ISO 8601

	ScanStart, ScanEnd int64
	ProjStart, ProjEnd int64
	SingleScan         bool
}

// Writer assembles frames into NXtomo files.
type Writer struct {
	Facility    *facility.Facility
	OutputDir   string
	ShortName   string // experiment short name, e.g. "ptycho" or "xrf"
	SortByAngle bool
	PadToMax    bool
	Compress    bool
	DryRun      bool
	Log         *zap.Logger
}

// filePrefix mirrors the output naming convention: the scan range, or
// the projection range when the whole stack comes from a single scan.
func (w *Writer) filePrefix(meta Metadata) string {
	common := fmt.Sprintf("tomo_%s", w.ShortName)
	if meta.SingleScan {
		return fmt.Sprintf("%s_%d_%d_%d", common, meta.ScanStart, meta.ProjStart, meta.ProjEnd)
	}
	return fmt.Sprintf("%s_%d_%d", common, meta.ScanStart, meta.ScanEnd)
}

// OutputPath returns the deterministic file path for a role.
func (w *Writer) OutputPath(meta Metadata, role Role) string {
	name := fmt.Sprintf("%s_%s.nxs", w.filePrefix(meta), role)
	return filepath.Join(w.OutputDir, name)
}

// Write orders, aligns and writes every assembly. Roles are independent
// files and are written concurrently; a failure in one role does not
// stop the others. The returned paths are the files actually written
// (or, in a dry run, the files that would have been written). An error
// is returned only when every requested role failed.
func (w *Writer) Write(ctx context.Context, meta Metadata, assemblies []Assembly) ([]string, error) {
	var (
		mu       sync.Mutex
		paths    []string
		roleErrs []error
	)

	eg, ctx := errgroup.WithContext(ctx)
	for _, asm := range assemblies {
		eg.Go(func() error {
			path, err := w.writeRole(ctx, meta, asm)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.Log.Warn("output role failed",
					zap.String("role", string(asm.Role)),
					zap.Error(err))
				roleErrs = append(roleErrs, fmt.Errorf("role %s: %w", asm.Role, err))
				return nil
			}
			paths = append(paths, path)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	if len(paths) == 0 && len(roleErrs) > 0 {
		return nil, errors.Join(roleErrs...)
	}
	return paths, nil
}

func (w *Writer) writeRole(ctx context.Context, meta Metadata, asm Assembly) (string, error) {
	if len(asm.Frames) == 0 {
		return "", fmt.Errorf("no frames to stack")
	}

	frames := orderFrames(asm.Frames, w.SortByAngle)
	frames, err := Align(frames, w.PadToMax)
	if err != nil {
		return "", err
	}

	path := w.OutputPath(meta, asm.Role)
	if w.DryRun {
		w.Log.Info("dry run, skipping write",
			zap.String("role", string(asm.Role)),
			zap.String("path", path),
			zap.Int("frames", len(frames)))
		return path, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	shape := [3]int{len(frames), frames[0].Rows, frames[0].Cols}
	if err := w.writeNXtomo(path, meta, asm, frames, shape); err != nil {
		return "", err
	}
	w.Log.Info("wrote stack",
		zap.String("role", string(asm.Role)),
		zap.String("path", path),
		zap.Int("frames", len(frames)))
	return path, nil
}

// orderFrames sorts by the controlling identifier (scan, then
// projection number) ascending, or by angle ascending with identifier
// tie-break when requested.
func orderFrames(frames []*Frame, byAngle bool) []*Frame {
	out := make([]*Frame, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if byAngle && a.Angle != b.Angle {
			return a.Angle < b.Angle
		}
		if a.Scan != b.Scan {
			return a.Scan < b.Scan
		}
		return a.Proj < b.Proj
	})
	return out
}

// NXtomo dataset locations.
const (
	groupEntry      = "/entry"
	groupInstrument = "/entry/instrument"
	groupSource     = "/entry/instrument/SOURCE"
	groupDetector   = "/entry/instrument/detector"
	groupSample     = "/entry/sample"
	groupData       = "/entry/data"
	dsetData        = "/entry/instrument/detector/data"
	dsetImageKey    = "/entry/instrument/detector/image_key"
	dsetRotAngle    = "/entry/sample/rotation_angle"
)

func (w *Writer) writeNXtomo(path string, meta Metadata, asm Assembly, frames []*Frame, shape [3]int) error {
	out, err := hdf.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := out.CreateGroup(groupEntry, map[string]string{
		"NX_class": "NXentry",
		"default":  "data",
	}); err != nil {
		return err
	}
	if err := out.WriteString(groupEntry+"/definition", "NXtomo", nil); err != nil {
		return err
	}
	if meta.Title != "" {
		if err := out.WriteString(groupEntry+"/title", meta.Title, nil); err != nil {
			return err
		}
	}
	if meta.StartTime != "" {
		if err := out.WriteString(groupEntry+"/start_time", meta.StartTime, nil); err != nil {
			return err
		}
	}
	if meta.EndTime != "" {
		if err := out.WriteString(groupEntry+"/end_time", meta.EndTime, nil); err != nil {
			return err
		}
	}

	if err := out.CreateGroup(groupInstrument, map[string]string{"NX_class": "NXinstrument"}); err != nil {
		return err
	}
	if err := out.CreateGroup(groupSource, map[string]string{"NX_class": "NXsource"}); err != nil {
		return err
	}
	if err := out.WriteString(groupSource+"/type", facility.SourceType, nil); err != nil {
		return err
	}
	if err := out.WriteString(groupSource+"/name", facility.SourceName,
		map[string]string{"short_name": facility.SourceShort}); err != nil {
		return err
	}
	if err := out.WriteString(groupSource+"/probe", facility.SourceProbe, nil); err != nil {
		return err
	}

	if err := out.CreateGroup(groupDetector, map[string]string{"NX_class": "NXdetector"}); err != nil {
		return err
	}
	if err := out.CreateStack(dsetData, shape, asm.Complex, w.Compress); err != nil {
		return err
	}
	if err := out.WriteInts(dsetImageKey, make([]int32, shape[0])); err != nil {
		return err
	}
	if meta.XPixelSize > 0 {
		if err := out.WriteFloatScalar(groupDetector+"/x_pixel_size", meta.XPixelSize, "m"); err != nil {
			return err
		}
	}
	if meta.YPixelSize > 0 {
		if err := out.WriteFloatScalar(groupDetector+"/y_pixel_size", meta.YPixelSize, "m"); err != nil {
			return err
		}
	}
	if meta.DetectorDistance > 0 {
		if err := out.WriteFloatScalar(groupDetector+"/distance", meta.DetectorDistance, "m"); err != nil {
			return err
		}
	}

	if err := out.CreateGroup(groupSample, map[string]string{"NX_class": "NXsample"}); err != nil {
		return err
	}
	if meta.SampleDescription != "" {
		if err := out.WriteString(groupSample+"/name", meta.SampleDescription, nil); err != nil {
			return err
		}
	}
	if err := out.WriteFloats(dsetRotAngle, make([]float64, shape[0]), []int{shape[0]},
		map[string]string{"units": "degrees"}); err != nil {
		return err
	}

	if err := out.CreateGroup(groupData, map[string]string{
		"NX_class": "NXdata",
		"signal":   "data",
	}); err != nil {
		return err
	}

	for k, f := range frames {
		if err := out.WriteStackSlice(dsetData, k, f.Rows, f.Cols, f.Real, f.Imag); err != nil {
			return err
		}
		if err := out.WriteFloatAt(dsetRotAngle, k, f.Angle); err != nil {
			return err
		}
	}
	return nil
}
