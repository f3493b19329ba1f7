//go:build !hdf5

package source

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
)

// HDF5Available is false: this binary was built without -tags hdf5
const HDF5Available = false

func (h *HDF5Reader) Read(ctx context.Context, e Entry) (*Block, error) {
	return nil, readErr(e, ErrHDF5Unavailable)
}

func (h *HDF5Reader) ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error) {
	return nil, readErr(e, ErrHDF5Unavailable)
}

func (h *HDF5Reader) StartTime(ctx context.Context, e Entry) (time.Time, error) {
	return time.Time{}, readErr(e, ErrHDF5Unavailable)
}
