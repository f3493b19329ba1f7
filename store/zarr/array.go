package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	arrayMetaFile = ".zarray"
	groupMetaFile = ".zgroup"
	attrsFile     = ".zattrs"
)

// ErrOutOfBounds is returned for row ranges outside the array shape
var ErrOutOfBounds = errors.New("row range out of bounds")

// Metadata is the content of a .zarray file
type Metadata struct {
	ZarrFormat         int         `json:"zarr_format"`
	Shape              []int       `json:"shape"`
	Chunks             []int       `json:"chunks"`
	DType              DType       `json:"dtype"`
	Compressor         *Compressor `json:"compressor"`
	FillValue          any         `json:"fill_value"`
	Order              string      `json:"order"`
	Filters            []any       `json:"filters"`
	DimensionSeparator string      `json:"dimension_separator,omitempty"`
}

// ArrayOptions describes an array to create
type ArrayOptions struct {
	Shape      []int
	Chunks     []int // only the leading axis may be chunked; nil means one chunk
	DType      DType
	Compressor *Compressor
	Attributes map[string]any
}

// Array is a Zarr v2 array in a directory store. Chunking is restricted to
// the leading axis, so every chunk holds whole rows. An Array is not safe
// for concurrent use.
type Array struct {
	path     string
	meta     Metadata
	codec    codec
	rowElems int // elements per leading-axis row
}

// CreateArray creates an array directory at path
func CreateArray(path string, opts ArrayOptions) (*Array, error) {
	if len(opts.Shape) == 0 {
		return nil, fmt.Errorf("zarr: array %s needs at least one dimension", path)
	}
	if opts.DType.Size() == 0 {
		return nil, fmt.Errorf("zarr: unsupported dtype %q", opts.DType)
	}
	chunks := opts.Chunks
	if chunks == nil {
		chunks = append([]int(nil), opts.Shape...)
		chunks[0] = max(chunks[0], 1)
	}
	if len(chunks) != len(opts.Shape) {
		return nil, fmt.Errorf("zarr: chunk rank %d does not match shape rank %d", len(chunks), len(opts.Shape))
	}
	if chunks[0] < 1 {
		return nil, fmt.Errorf("zarr: chunk length must be positive")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i] != opts.Shape[i] {
			return nil, fmt.Errorf("zarr: only the leading axis may be chunked (axis %d: chunk %d, shape %d)", i, chunks[i], opts.Shape[i])
		}
	}

	meta := Metadata{
		ZarrFormat:         2,
		Shape:              opts.Shape,
		Chunks:             chunks,
		DType:              opts.DType,
		Compressor:         opts.Compressor,
		FillValue:          opts.DType.fillValue(),
		Order:              "C",
		DimensionSeparator: ".",
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("zarr: create array dir: %w", err)
	}
	if err := writeJSON(filepath.Join(path, arrayMetaFile), meta); err != nil {
		return nil, err
	}
	if opts.Attributes != nil {
		if err := writeJSON(filepath.Join(path, attrsFile), opts.Attributes); err != nil {
			return nil, err
		}
	}
	return newArray(path, meta)
}

// OpenArray opens an existing array
func OpenArray(path string) (*Array, error) {
	data, err := os.ReadFile(filepath.Join(path, arrayMetaFile))
	if err != nil {
		return nil, fmt.Errorf("zarr: read array metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("zarr: parse %s: %w", arrayMetaFile, err)
	}
	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("zarr: unsupported format version %d", meta.ZarrFormat)
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("zarr: unsupported order %q", meta.Order)
	}
	if meta.DType.Size() == 0 {
		return nil, fmt.Errorf("zarr: unsupported dtype %q", meta.DType)
	}
	if len(meta.Filters) > 0 {
		return nil, fmt.Errorf("zarr: filters are not supported")
	}
	if len(meta.Shape) == 0 || len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("zarr: malformed shape/chunks")
	}
	for i := 1; i < len(meta.Shape); i++ {
		if meta.Chunks[i] != meta.Shape[i] {
			return nil, fmt.Errorf("zarr: arrays chunked beyond the leading axis are not supported")
		}
	}
	return newArray(path, meta)
}

func newArray(path string, meta Metadata) (*Array, error) {
	c, err := newCodec(meta.Compressor)
	if err != nil {
		return nil, err
	}
	rowElems := 1
	for _, n := range meta.Shape[1:] {
		rowElems *= n
	}
	return &Array{path: path, meta: meta, codec: c, rowElems: rowElems}, nil
}

// Close releases codec resources
func (a *Array) Close() error {
	a.codec.close()
	return nil
}

// Shape returns a copy of the array shape
func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

// Chunks returns a copy of the chunk shape
func (a *Array) Chunks() []int {
	return append([]int(nil), a.meta.Chunks...)
}

// DType returns the element type
func (a *Array) DType() DType {
	return a.meta.DType
}

// RowElems returns the number of elements in one leading-axis row
func (a *Array) RowElems() int {
	return a.rowElems
}

// Path returns the array directory
func (a *Array) Path() string {
	return a.path
}

// AttributesJSON returns the raw .zattrs document, "{}" if there is none
func (a *Array) AttributesJSON() ([]byte, error) {
	return readAttrs(a.path)
}

// WriteRows writes len(data)/RowElems rows starting at row start
func (a *Array) WriteRows(start int, data []float64) error {
	return a.writeRows(start, len(data), func(b []byte, i int) {
		a.meta.DType.putFloat(b, data[i])
	})
}

// WriteIntRows is WriteRows for integer and datetime arrays, without a
// float64 round trip
func (a *Array) WriteIntRows(start int, data []int64) error {
	return a.writeRows(start, len(data), func(b []byte, i int) {
		a.meta.DType.putInt(b, data[i])
	})
}

// ReadRows reads count rows starting at row start. Rows in chunks that
// were never written read as zero.
func (a *Array) ReadRows(start, count int) ([]float64, error) {
	out := make([]float64, count*a.rowElems)
	err := a.readRows(start, count, func(b []byte, i int) {
		out[i] = a.meta.DType.float(b)
	})
	return out, err
}

// ReadIntRows is ReadRows for integer and datetime arrays
func (a *Array) ReadIntRows(start, count int) ([]int64, error) {
	out := make([]int64, count*a.rowElems)
	err := a.readRows(start, count, func(b []byte, i int) {
		out[i] = a.meta.DType.int(b)
	})
	return out, err
}

func (a *Array) checkRange(start, rows int) error {
	if start < 0 || rows < 0 || start+rows > a.meta.Shape[0] {
		return fmt.Errorf("zarr: rows [%d, %d) of %s with %d rows: %w", start, start+rows, a.path, a.meta.Shape[0], ErrOutOfBounds)
	}
	return nil
}

func (a *Array) writeRows(start, n int, put func(b []byte, i int)) error {
	if a.rowElems == 0 {
		return nil
	}
	if n%a.rowElems != 0 {
		return fmt.Errorf("zarr: %d values is not a whole number of %d-element rows", n, a.rowElems)
	}
	rows := n / a.rowElems
	if err := a.checkRange(start, rows); err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	size := a.meta.DType.Size()
	chunkRows := a.meta.Chunks[0]
	end := start + rows

	for ci := start / chunkRows; ci*chunkRows < end; ci++ {
		cs := ci * chunkRows
		lo, hi := max(start, cs), min(end, cs+chunkRows)

		var buf []byte
		if lo == cs && hi == min(cs+chunkRows, a.meta.Shape[0]) {
			buf = make([]byte, chunkRows*a.rowElems*size)
		} else {
			var err error
			if buf, err = a.loadChunk(ci); err != nil {
				return err
			}
		}

		for r := lo; r < hi; r++ {
			for e := 0; e < a.rowElems; e++ {
				off := ((r-cs)*a.rowElems + e) * size
				put(buf[off:off+size], (r-start)*a.rowElems+e)
			}
		}

		if err := a.storeChunk(ci, buf); err != nil {
			return err
		}
	}
	return nil
}

func (a *Array) readRows(start, rows int, get func(b []byte, i int)) error {
	if err := a.checkRange(start, rows); err != nil {
		return err
	}
	size := a.meta.DType.Size()
	chunkRows := a.meta.Chunks[0]
	end := start + rows

	for ci := start / chunkRows; ci*chunkRows < end; ci++ {
		buf, err := a.loadChunk(ci)
		if err != nil {
			return err
		}
		cs := ci * chunkRows
		for r := max(start, cs); r < min(end, cs+chunkRows); r++ {
			for e := 0; e < a.rowElems; e++ {
				off := ((r-cs)*a.rowElems + e) * size
				get(buf[off:off+size], (r-start)*a.rowElems+e)
			}
		}
	}
	return nil
}

func (a *Array) chunkKey(ci int) string {
	parts := make([]string, len(a.meta.Shape))
	parts[0] = strconv.Itoa(ci)
	for i := 1; i < len(parts); i++ {
		parts[i] = "0"
	}
	sep := a.meta.DimensionSeparator
	if sep == "" {
		sep = "."
	}
	return strings.Join(parts, sep)
}

// loadChunk returns the decoded chunk, zero filled if it does not exist
func (a *Array) loadChunk(ci int) ([]byte, error) {
	want := a.meta.Chunks[0] * a.rowElems * a.meta.DType.Size()
	stored, err := os.ReadFile(filepath.Join(a.path, a.chunkKey(ci)))
	if errors.Is(err, os.ErrNotExist) {
		return make([]byte, want), nil
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: read chunk %d of %s: %w", ci, a.path, err)
	}
	raw, err := a.codec.decode(stored)
	if err != nil {
		return nil, fmt.Errorf("zarr: chunk %d of %s: %w", ci, a.path, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("zarr: chunk %d of %s has %d bytes, want %d", ci, a.path, len(raw), want)
	}
	return raw, nil
}

// storeChunk writes through a temporary file so that a chunk on disk is
// either the old or the new version.
func (a *Array) storeChunk(ci int, raw []byte) error {
	encoded, err := a.codec.encode(raw)
	if err != nil {
		return fmt.Errorf("zarr: encode chunk %d: %w", ci, err)
	}
	final := filepath.Join(a.path, a.chunkKey(ci))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("zarr: write chunk %d of %s: %w", ci, a.path, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("zarr: commit chunk %d of %s: %w", ci, a.path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("zarr: write %s: %w", path, err)
	}
	return nil
}

func readAttrs(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, attrsFile))
	if errors.Is(err, os.ErrNotExist) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: read attributes: %w", err)
	}
	return data, nil
}
