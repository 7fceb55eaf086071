// Package hdf is a thin adapter over the HDF5 C binding. It exposes the
// narrow surface the stacking pipeline needs (probe, read, create) so
// the rest of the code never touches the binding directly.
package hdf

import (
	"fmt"
	"os"

	"gonum.org/v1/hdf5"
)

// deflateLevel is the gzip filter level applied to compressed stacks.
const deflateLevel = 6

// IsContainer reports whether the file exists and is an HDF5 container.
func IsContainer(path string) bool {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return false
	}
	return hdf5.IsHDF5(path)
}

// File wraps a read-only container.
type File struct {
	path string
	f    *hdf5.File
}

// Open opens a container read-only.
func Open(path string) (*File, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

// Close releases the container handle.
func (f *File) Close() error { return f.f.Close() }

// Path returns the file path the container was opened from.
func (f *File) Path() string { return f.path }

// HasPath reports whether a dataset or group exists at the given path.
func (f *File) HasPath(path string) bool {
	if ds, err := f.f.OpenDataset(path); err == nil {
		ds.Close()
		return true
	}
	if g, err := f.f.OpenGroup(path); err == nil {
		g.Close()
		return true
	}
	return false
}

// HasPaths reports whether every path exists in the container.
func (f *File) HasPaths(paths []string) bool {
	for _, p := range paths {
		if !f.HasPath(p) {
			return false
		}
	}
	return true
}

// Shape returns the dimensions of the dataset at path.
func (f *File) Shape(path string) ([]int, error) {
	ds, err := f.f.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s:%s: %w", f.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("dataset extent %s:%s: %w", f.path, path, err)
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	return shape, nil
}

// ReadFloats reads the dataset at path into a flat float64 slice,
// returning the data and its shape. The HDF5 library converts the
// stored type (typically float32) on read.
func (f *File) ReadFloats(path string) ([]float64, []int, error) {
	ds, err := f.f.OpenDataset(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset %s:%s: %w", f.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset extent %s:%s: %w", f.path, path, err)
	}
	n := 1
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
		n *= int(d)
	}

	buf := make([]float64, n)
	if err := ds.Read(&buf); err != nil {
		return nil, nil, fmt.Errorf("read dataset %s:%s: %w", f.path, path, err)
	}
	return buf, shape, nil
}

// ReadFloatScalar reads a scalar (or single-element) float dataset.
func (f *File) ReadFloatScalar(path string) (float64, error) {
	vals, _, err := f.ReadFloats(path)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("dataset %s:%s is empty", f.path, path)
	}
	return vals[0], nil
}

// complexPoint mirrors the compound {r, i} layout h5py uses to store
// complex arrays.
type complexPoint struct {
	R float64 `hdf5:"r"`
	I float64 `hdf5:"i"`
}

// ReadComplex reads a complex-valued dataset into separate real and
// imaginary float64 slices.
func (f *File) ReadComplex(path string) (re, im []float64, shape []int, err error) {
	ds, err := f.f.OpenDataset(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open dataset %s:%s: %w", f.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dataset extent %s:%s: %w", f.path, path, err)
	}
	n := 1
	shape = make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
		n *= int(d)
	}

	buf := make([]complexPoint, n)
	if err := ds.Read(&buf); err != nil {
		return nil, nil, nil, fmt.Errorf("read complex dataset %s:%s: %w", f.path, path, err)
	}
	re = make([]float64, n)
	im = make([]float64, n)
	for i, p := range buf {
		re[i] = p.R
		im[i] = p.I
	}
	return re, im, shape, nil
}

// ReadString reads a string dataset, e.g. a recorded file path.
func (f *File) ReadString(path string) (string, error) {
	ds, err := f.f.OpenDataset(path)
	if err != nil {
		return "", fmt.Errorf("open dataset %s:%s: %w", f.path, path, err)
	}
	defer ds.Close()

	var s string
	if err := ds.Read(&s); err != nil {
		return "", fmt.Errorf("read string dataset %s:%s: %w", f.path, path, err)
	}
	return s, nil
}

// ChildGroups lists the names of the members of a group. Used for
// discovering scan names and transition maps.
func (f *File) ChildGroups(path string) ([]string, error) {
	g, err := f.f.OpenGroup(path)
	if err != nil {
		return nil, fmt.Errorf("open group %s:%s: %w", f.path, path, err)
	}
	defer g.Close()

	n, err := g.NumObjects()
	if err != nil {
		return nil, fmt.Errorf("count members of %s:%s: %w", f.path, path, err)
	}
	names := make([]string, 0, n)
	for i := uint(0); i < uint(n); i++ {
		name, err := g.ObjectNameByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("member %d of %s:%s: %w", i, f.path, path, err)
		}
		names = append(names, name)
	}
	return names, nil
}
