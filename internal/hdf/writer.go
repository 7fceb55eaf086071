// writer.go creates output containers: groups with NX_class attributes,
// scalar datasets, and chunked (optionally deflated) stack datasets.
package hdf

import (
	"fmt"

	"gonum.org/v1/hdf5"
)

// Writer wraps a container opened for writing.
type Writer struct {
	path string
	f    *hdf5.File
}

// Create truncates and opens a container for writing.
func Create(path string) (*Writer, error) {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &Writer{path: path, f: f}, nil
}

// Close flushes and releases the container.
func (w *Writer) Close() error { return w.f.Close() }

// attrTarget is satisfied by both groups and datasets.
type attrTarget interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, space *hdf5.Dataspace) (*hdf5.Attribute, error)
}

func writeStringAttr(obj attrTarget, name, value string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return fmt.Errorf("attribute dataspace: %w", err)
	}
	defer space.Close()

	attr, err := obj.CreateAttribute(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return fmt.Errorf("create attribute %s: %w", name, err)
	}
	defer attr.Close()

	if err := attr.Write(&value, hdf5.T_GO_STRING); err != nil {
		return fmt.Errorf("write attribute %s: %w", name, err)
	}
	return nil
}

// CreateGroup creates a group and sets its string attributes. Parent
// groups must already exist.
func (w *Writer) CreateGroup(path string, attrs map[string]string) error {
	g, err := w.f.CreateGroup(path)
	if err != nil {
		return fmt.Errorf("create group %s:%s: %w", w.path, path, err)
	}
	defer g.Close()

	for name, value := range attrs {
		if err := writeStringAttr(g, name, value); err != nil {
			return fmt.Errorf("group %s:%s: %w", w.path, path, err)
		}
	}
	return nil
}

// WriteString writes a scalar string dataset.
func (w *Writer) WriteString(path, value string, attrs map[string]string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return fmt.Errorf("dataspace for %s: %w", path, err)
	}
	defer space.Close()

	ds, err := w.f.CreateDataset(path, hdf5.T_GO_STRING, space)
	if err != nil {
		return fmt.Errorf("create dataset %s:%s: %w", w.path, path, err)
	}
	defer ds.Close()

	if err := ds.Write(&value); err != nil {
		return fmt.Errorf("write dataset %s:%s: %w", w.path, path, err)
	}
	for name, v := range attrs {
		if err := writeStringAttr(ds, name, v); err != nil {
			return fmt.Errorf("dataset %s:%s: %w", w.path, path, err)
		}
	}
	return nil
}

// WriteFloats writes a float64 dataset of the given shape.
func (w *Writer) WriteFloats(path string, values []float64, shape []int, attrs map[string]string) error {
	dims := make([]uint, len(shape))
	for i, d := range shape {
		dims[i] = uint(d)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("dataspace for %s: %w", path, err)
	}
	defer space.Close()

	ds, err := w.f.CreateDataset(path, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return fmt.Errorf("create dataset %s:%s: %w", w.path, path, err)
	}
	defer ds.Close()

	if err := ds.Write(&values); err != nil {
		return fmt.Errorf("write dataset %s:%s: %w", w.path, path, err)
	}
	for name, v := range attrs {
		if err := writeStringAttr(ds, name, v); err != nil {
			return fmt.Errorf("dataset %s:%s: %w", w.path, path, err)
		}
	}
	return nil
}

// WriteFloatScalar writes a scalar float dataset with an optional units
// attribute.
func (w *Writer) WriteFloatScalar(path string, value float64, units string) error {
	attrs := map[string]string{}
	if units != "" {
		attrs["units"] = units
	}
	return w.WriteFloats(path, []float64{value}, []int{1}, attrs)
}

// WriteInts writes a 1-D int32 dataset, e.g. the NXtomo image_key.
func (w *Writer) WriteInts(path string, values []int32) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return fmt.Errorf("dataspace for %s: %w", path, err)
	}
	defer space.Close()

	ds, err := w.f.CreateDataset(path, hdf5.T_NATIVE_INT32, space)
	if err != nil {
		return fmt.Errorf("create dataset %s:%s: %w", w.path, path, err)
	}
	defer ds.Close()

	if err := ds.Write(&values); err != nil {
		return fmt.Errorf("write dataset %s:%s: %w", w.path, path, err)
	}
	return nil
}

// CreateStack creates the 3-D stack dataset. Complex stacks use the
// compound {r, i} layout. Compressed stacks are chunked one slice per
// chunk with the deflate filter applied.
func (w *Writer) CreateStack(path string, shape [3]int, complexData, compress bool) error {
	dims := []uint{uint(shape[0]), uint(shape[1]), uint(shape[2])}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("dataspace for %s: %w", path, err)
	}
	defer space.Close()

	dtype := hdf5.T_NATIVE_DOUBLE
	if complexData {
		ct, err := hdf5.NewDatatypeFromValue(complexPoint{})
		if err != nil {
			return fmt.Errorf("compound datatype: %w", err)
		}
		defer ct.Close()
		dtype = ct
	}

	if !compress {
		ds, err := w.f.CreateDataset(path, dtype, space)
		if err != nil {
			return fmt.Errorf("create stack %s:%s: %w", w.path, path, err)
		}
		return ds.Close()
	}

	dcpl, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return fmt.Errorf("dataset creation properties: %w", err)
	}
	defer dcpl.Close()
	if err := dcpl.SetChunk([]uint{1, dims[1], dims[2]}); err != nil {
		return fmt.Errorf("chunk layout for %s: %w", path, err)
	}
	if err := dcpl.SetDeflate(deflateLevel); err != nil {
		return fmt.Errorf("deflate filter for %s: %w", path, err)
	}

	ds, err := w.f.CreateDatasetWith(path, dtype, space, dcpl)
	if err != nil {
		return fmt.Errorf("create compressed stack %s:%s: %w", w.path, path, err)
	}
	return ds.Close()
}

// WriteStackSlice writes one frame into slice index of the stack
// dataset. im is nil for real-valued stacks.
func (w *Writer) WriteStackSlice(path string, index, rows, cols int, re, im []float64) error {
	ds, err := w.f.OpenDataset(path)
	if err != nil {
		return fmt.Errorf("open stack %s:%s: %w", w.path, path, err)
	}
	defer ds.Close()

	filespace := ds.Space()
	defer filespace.Close()
	offset := []uint{uint(index), 0, 0}
	count := []uint{1, uint(rows), uint(cols)}
	if err := filespace.SelectHyperslab(offset, nil, count, nil); err != nil {
		return fmt.Errorf("select slice %d of %s:%s: %w", index, w.path, path, err)
	}
	memspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return fmt.Errorf("memory dataspace: %w", err)
	}
	defer memspace.Close()

	if im == nil {
		if err := ds.WriteSubset(&re, memspace, filespace); err != nil {
			return fmt.Errorf("write slice %d of %s:%s: %w", index, w.path, path, err)
		}
		return nil
	}

	buf := make([]complexPoint, len(re))
	for i := range re {
		buf[i] = complexPoint{R: re[i], I: im[i]}
	}
	if err := ds.WriteSubset(&buf, memspace, filespace); err != nil {
		return fmt.Errorf("write complex slice %d of %s:%s: %w", index, w.path, path, err)
	}
	return nil
}

// WriteFloatAt writes a single element of a 1-D float dataset, e.g. one
// rotation angle.
func (w *Writer) WriteFloatAt(path string, index int, value float64) error {
	ds, err := w.f.OpenDataset(path)
	if err != nil {
		return fmt.Errorf("open dataset %s:%s: %w", w.path, path, err)
	}
	defer ds.Close()

	filespace := ds.Space()
	defer filespace.Close()
	if err := filespace.SelectHyperslab([]uint{uint(index)}, nil, []uint{1}, nil); err != nil {
		return fmt.Errorf("select element %d of %s:%s: %w", index, w.path, path, err)
	}
	memspace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return fmt.Errorf("memory dataspace: %w", err)
	}
	defer memspace.Close()

	buf := []float64{value}
	if err := ds.WriteSubset(&buf, memspace, filespace); err != nil {
		return fmt.Errorf("write element %d of %s:%s: %w", index, w.path, path, err)
	}
	return nil
}
