//go:build hdf5

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"
)

// HDF5Available is true: this binary links libhdf5
const HDF5Available = true

// libhdf5 is only thread safe when built with --enable-threadsafe, so
// every call into it is serialised. Kernels still run in parallel.
var hdf5Mu sync.Mutex

type h5Source struct {
	file *hdf5.File
	dset *hdf5.Dataset
	rows int
	cols int
}

func (s *h5Source) close() {
	s.dset.Close()
	s.file.Close()
}

func (h *HDF5Reader) open(e Entry) (*h5Source, error) {
	f, err := hdf5.OpenFile(e.Path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, readErr(e, err)
	}
	dset, err := f.OpenDataset(h.dataset())
	if err != nil {
		f.Close()
		return nil, readErr(e, err)
	}

	space := dset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		dset.Close()
		f.Close()
		return nil, readErr(e, err)
	}
	if len(dims) != 2 || dims[0] == 0 || dims[1] == 0 {
		dset.Close()
		f.Close()
		return nil, fmt.Errorf("%s: %s shape %v is not a non-empty samples × channels matrix: %w", e.Path, h.dataset(), dims, ErrShape)
	}
	return &h5Source{file: f, dset: dset, rows: int(dims[0]), cols: int(dims[1])}, nil
}

func (h *HDF5Reader) startTime(e Entry, s *h5Source) (time.Time, error) {
	attr, err := s.dset.OpenAttribute(h.attrKey())
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q: %w", e.Path, h.attrKey(), ErrMissingAttr)
	}
	defer attr.Close()

	var value string
	if err := attr.Read(&value, hdf5.T_GO_STRING); err != nil {
		return time.Time{}, readErr(e, err)
	}
	t, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}, readErr(e, err)
	}
	return t, nil
}

// readRows reads the first rows rows with a hyperslab selection. The
// dataset is read in its stored type and widened to float64.
func (h *HDF5Reader) readRows(e Entry, s *h5Source, rows int) (*mat.Dense, error) {
	if rows < 0 || rows > s.rows {
		rows = s.rows
	}
	count := []uint{uint(rows), uint(s.cols)}

	filespace := s.dset.Space()
	defer filespace.Close()
	if err := filespace.SelectHyperslab([]uint{0, 0}, nil, count, nil); err != nil {
		return nil, readErr(e, err)
	}
	memspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return nil, readErr(e, err)
	}
	defer memspace.Close()

	dtype, err := s.dset.Datatype()
	if err != nil {
		return nil, readErr(e, err)
	}
	defer dtype.Close()

	n := rows * s.cols
	data := make([]float64, n)
	read := func(buf any) error {
		return s.dset.ReadSubset(buf, memspace, filespace)
	}

	switch class, size := dtype.Class(), dtype.Size(); {
	case class == hdf5.T_FLOAT && size == 8:
		err = read(&data)
	case class == hdf5.T_FLOAT && size == 4:
		buf := make([]float32, n)
		if err = read(&buf); err == nil {
			for i, v := range buf {
				data[i] = float64(v)
			}
		}
	case class == hdf5.T_INTEGER && size == 4:
		buf := make([]int32, n)
		if err = read(&buf); err == nil {
			for i, v := range buf {
				data[i] = float64(v)
			}
		}
	case class == hdf5.T_INTEGER && size == 2:
		buf := make([]int16, n)
		if err = read(&buf); err == nil {
			for i, v := range buf {
				data[i] = float64(v)
			}
		}
	default:
		return nil, fmt.Errorf("%s: unsupported %s element type (class %v, %d bytes): %w", e.Path, h.dataset(), class, size, ErrShape)
	}
	if err != nil {
		return nil, readErr(e, err)
	}
	return mat.NewDense(rows, s.cols, data), nil
}

func (h *HDF5Reader) Read(ctx context.Context, e Entry) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hdf5Mu.Lock()
	defer hdf5Mu.Unlock()

	s, err := h.open(e)
	if err != nil {
		return nil, err
	}
	defer s.close()

	start, err := h.startTime(e, s)
	if err != nil {
		return nil, err
	}
	data, err := h.readRows(e, s, -1)
	if err != nil {
		return nil, err
	}
	return &Block{Entry: e, Data: data, Start: start}, nil
}

// ReadHead reads only the first rows samples from disk
func (h *HDF5Reader) ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 {
		return nil, fmt.Errorf("%s: head of %d rows: %w", e.Path, rows, ErrShape)
	}
	hdf5Mu.Lock()
	defer hdf5Mu.Unlock()

	s, err := h.open(e)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return h.readRows(e, s, rows)
}

func (h *HDF5Reader) StartTime(ctx context.Context, e Entry) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	hdf5Mu.Lock()
	defer hdf5Mu.Unlock()

	s, err := h.open(e)
	if err != nil {
		return time.Time{}, err
	}
	defer s.close()
	return h.startTime(e, s)
}
