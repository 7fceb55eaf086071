package experiment

import (
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/example/nxstacker/internal/hdf"
	"github.com/example/nxstacker/internal/projection"
)

// rawReader retrieves values from raw metadata files and from the
// reconstruction files themselves. The function fields keep the HDF5
// dependency swappable in tests.
type rawReader struct {
	// angle reads a rotation angle: the first candidate file that
	// exists and carries one of the dataset paths wins. For
	// per-projection datasets the projection number indexes into
	// the array.
	angle func(candidates, dsets []string, proj int64) (float64, error)

	// scalar reads the first matching dataset from one file and
	// returns its mean.
	scalar func(file string, dsets []string) (float64, error)
}

func defaultRawReader() *rawReader {
	return &rawReader{angle: hdfAngle, scalar: hdfScalar}
}

func hdfAngle(candidates, dsets []string, proj int64) (float64, error) {
	for _, fp := range candidates {
		if fi, err := os.Stat(fp); err != nil || fi.IsDir() {
			continue
		}
		f, err := hdf.Open(fp)
		if err != nil {
			continue
		}
		v, err := firstFloat(f, dsets, proj)
		f.Close()
		if err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no rotation angle among candidates %v", candidates)
}

func firstFloat(f *hdf.File, dsets []string, index int64) (float64, error) {
	for _, p := range dsets {
		if !f.HasPath(p) {
			continue
		}
		vals, _, err := f.ReadFloats(p)
		if err != nil || len(vals) == 0 {
			continue
		}
		if index > 0 && int(index) < len(vals) {
			return vals[index], nil
		}
		return vals[0], nil
	}
	return 0, fmt.Errorf("no matching dataset in %s", f.Path())
}

func hdfScalar(file string, dsets []string) (float64, error) {
	f, err := hdf.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	for _, p := range dsets {
		if !f.HasPath(p) {
			continue
		}
		vals, _, err := f.ReadFloats(p)
		if err != nil || len(vals) == 0 {
			continue
		}
		return mean(vals), nil
	}
	return 0, fmt.Errorf("no matching dataset in %s", file)
}

// gatherAngles assigns each record its rotation angle from the
// facility's per-scan metadata file. A record whose angle cannot be
// retrieved fails the run: a stack with unknown angles is useless.
func (p *Params) gatherAngles(recs []*projection.Record, r *rawReader) error {
	fac := p.Facility
	for _, rec := range recs {
		candidates := fac.MetadataFileCandidates(rec.RawDir, rec.Scan)
		v, err := r.angle(candidates, fac.RotationAnglePaths, rec.Proj)
		if err != nil {
			return fmt.Errorf("rotation angle for scan %d: %w", rec.Scan, err)
		}
		rec.Angle = v
	}
	return nil
}

// detectorDistance averages the sample-detector distance over the
// projections. Facilities with a fixed distance short-circuit; the
// rest read it from the reconstruction file or the raw metadata file,
// whichever carries it first. Zero means unknown and the dataset is
// simply omitted from the output.
func (p *Params) detectorDistance(recs []*projection.Record, r *rawReader) float64 {
	fac := p.Facility
	if fac.DetectorDistance > 0 {
		return fac.DetectorDistance
	}
	if len(fac.DetectorDistancePaths) == 0 {
		return 0
	}

	scale := fac.DetectorDistanceScale
	if scale == 0 {
		scale = 1
	}

	var dists []float64
	for _, rec := range recs {
		files := append([]string{rec.Path},
			fac.MetadataFileCandidates(rec.RawDir, rec.Scan)...)
		found := math.NaN()
		for _, fp := range files {
			if fi, err := os.Stat(fp); err != nil || fi.IsDir() {
				continue
			}
			if v, err := r.scalar(fp, fac.DetectorDistancePaths); err == nil {
				found = v * scale
				break
			}
		}
		dists = append(dists, found)
	}

	d := mean(dists)
	if d == 0 {
		p.logger().Warn("sample-detector distance not found, omitting")
	}
	return d
}

// pixelSize averages the reconstruction pixel size over the
// projections. Only ptychography records carry one.
func (p *Params) pixelSize(recs []*projection.Record, r *rawReader) float64 {
	var sizes []float64
	for _, rec := range recs {
		if rec.PixelSizePath == "" {
			continue
		}
		v, err := r.scalar(rec.Path, []string{rec.PixelSizePath})
		if err != nil {
			p.logger().Debug("pixel size unavailable",
				zap.String("path", rec.Path), zap.Error(err))
			continue
		}
		sizes = append(sizes, v)
	}
	return mean(sizes)
}
