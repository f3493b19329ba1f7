package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/strain-cube/store/zarr"
	"github.com/tidwall/gjson"
	"gonum.org/v1/gonum/mat"
)

// ZarrReader reads source files stored as Zarr v2. A file is either a 2-D
// array (samples × channels) or a group holding such an array under
// Dataset. The start time is read from the array's attributes, falling
// back to the group's.
type ZarrReader struct {
	Dataset string // array name inside a group file, "Acoustic" if empty
	AttrKey string // start time attribute, "starttime" if empty
}

// NewZarrReader creates a reader using attrKey for the start time
func NewZarrReader(attrKey string) *ZarrReader {
	return &ZarrReader{AttrKey: attrKey}
}

func (z *ZarrReader) Extension() string { return ".zarr" }

func (z *ZarrReader) dataset() string {
	if z.Dataset == "" {
		return "Acoustic"
	}
	return z.Dataset
}

func (z *ZarrReader) attrKey() string {
	if z.AttrKey == "" {
		return "starttime"
	}
	return z.AttrKey
}

// open returns the sample array and the attribute documents to search for
// the start time, most specific first.
func (z *ZarrReader) open(e Entry) (*zarr.Array, [][]byte, error) {
	path := e.Path
	if _, err := os.Stat(filepath.Join(path, ".zarray")); err != nil {
		g, gerr := zarr.OpenGroup(path)
		if gerr != nil {
			return nil, nil, readErr(e, gerr)
		}
		arr, err := g.OpenArray(z.dataset())
		if err != nil {
			return nil, nil, readErr(e, err)
		}
		arrAttrs, err := arr.AttributesJSON()
		if err != nil {
			arr.Close()
			return nil, nil, readErr(e, err)
		}
		groupAttrs, err := g.AttributesJSON()
		if err != nil {
			arr.Close()
			return nil, nil, readErr(e, err)
		}
		return arr, [][]byte{arrAttrs, groupAttrs}, nil
	}

	arr, err := zarr.OpenArray(path)
	if err != nil {
		return nil, nil, readErr(e, err)
	}
	attrs, err := arr.AttributesJSON()
	if err != nil {
		arr.Close()
		return nil, nil, readErr(e, err)
	}
	return arr, [][]byte{attrs}, nil
}

func (z *ZarrReader) startTime(e Entry, docs [][]byte) (time.Time, error) {
	for _, doc := range docs {
		v := gjson.GetBytes(doc, z.attrKey())
		if !v.Exists() {
			continue
		}
		t, err := ParseTimestamp(v.String())
		if err != nil {
			return time.Time{}, readErr(e, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s: %q: %w", e.Path, z.attrKey(), ErrMissingAttr)
}

func (z *ZarrReader) readRows(e Entry, arr *zarr.Array, rows int) (*mat.Dense, error) {
	shape := arr.Shape()
	if len(shape) != 2 || shape[0] == 0 || shape[1] == 0 {
		return nil, fmt.Errorf("%s: shape %v is not a non-empty samples × channels matrix: %w", e.Path, shape, ErrShape)
	}
	if rows < 0 || rows > shape[0] {
		rows = shape[0]
	}
	data, err := arr.ReadRows(0, rows)
	if err != nil {
		return nil, readErr(e, err)
	}
	return mat.NewDense(rows, shape[1], data), nil
}

func (z *ZarrReader) Read(ctx context.Context, e Entry) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	arr, docs, err := z.open(e)
	if err != nil {
		return nil, err
	}
	defer arr.Close()

	start, err := z.startTime(e, docs)
	if err != nil {
		return nil, err
	}
	data, err := z.readRows(e, arr, -1)
	if err != nil {
		return nil, err
	}
	return &Block{Entry: e, Data: data, Start: start}, nil
}

func (z *ZarrReader) ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 {
		return nil, fmt.Errorf("%s: head of %d rows: %w", e.Path, rows, ErrShape)
	}
	arr, _, err := z.open(e)
	if err != nil {
		return nil, err
	}
	defer arr.Close()
	return z.readRows(e, arr, rows)
}

func (z *ZarrReader) StartTime(ctx context.Context, e Entry) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	arr, docs, err := z.open(e)
	if err != nil {
		return time.Time{}, err
	}
	defer arr.Close()
	return z.startTime(e, docs)
}
