package source

import "errors"

// ErrHDF5Unavailable is returned by HDF5Reader in binaries built without
// the hdf5 tag
var ErrHDF5Unavailable = errors.New("hdf5 support not compiled in")

// HDF5Reader reads interrogator HDF5 files such as
// rhone1khz_UTC_20200719_000030.000.h5: a 2-D Dataset (samples × channels)
// carrying the start time in its AttrKey attribute. Reading needs libhdf5
// through cgo, so the implementation is only built with -tags hdf5;
// HDF5Available reports which one is compiled in.
type HDF5Reader struct {
	Dataset string // "Acoustic" if empty
	AttrKey string // "starttime" if empty
}

// NewHDF5Reader creates a reader using attrKey for the start time
func NewHDF5Reader(attrKey string) *HDF5Reader {
	return &HDF5Reader{AttrKey: attrKey}
}

func (h *HDF5Reader) Extension() string { return ".h5" }

func (h *HDF5Reader) dataset() string {
	if h.Dataset == "" {
		return "Acoustic"
	}
	return h.Dataset
}

func (h *HDF5Reader) attrKey() string {
	if h.AttrKey == "" {
		return "starttime"
	}
	return h.AttrKey
}
