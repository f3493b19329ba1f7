package cube

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/source"
	"gonum.org/v1/gonum/mat"
)

// Continuity loads a file's samples extended with the first seg_len samples
// of the following file, so that every segment the scheduler assigns to a
// non-last file has real data under its whole window.
type Continuity struct {
	reader source.Reader
	params config.Params
}

// NewContinuity creates a continuity provider
func NewContinuity(reader source.Reader, params config.Params) *Continuity {
	return &Continuity{reader: reader, params: params}
}

// Extended is a file's sample matrix, possibly with trailing rows from
// the next file
type Extended struct {
	Data  *mat.Dense
	Start time.Time
	Rows  int // rows that belong to the file itself
}

// Load reads cur and, when next is not nil, the head of next. Shape
// problems are reported as source.ErrShape.
func (c *Continuity) Load(ctx context.Context, cur source.Entry, next *source.Entry) (*Extended, error) {
	blk, err := c.reader.Read(ctx, cur)
	if err != nil {
		return nil, &StageError{File: cur.Index, Path: cur.Path, Stage: StageRead, Err: err}
	}
	rows, cols := blk.Data.Dims()
	if rows != c.params.SamplesPerFile || cols < c.params.IndE {
		return nil, &StageError{File: cur.Index, Path: cur.Path, Stage: StageRead, Err: fmt.Errorf(
			"%d samples × %d channels, want %d samples and at least %d channels: %w",
			rows, cols, c.params.SamplesPerFile, c.params.IndE, source.ErrShape)}
	}

	out := &Extended{Data: blk.Data, Start: blk.Start, Rows: rows}
	if next == nil {
		return out, nil
	}

	tail, err := c.reader.ReadHead(ctx, *next, c.params.SegLen)
	if err != nil {
		return nil, &StageError{File: cur.Index, Path: next.Path, Stage: StageContinuity, Err: err}
	}
	tr, tc := tail.Dims()
	if tr != c.params.SegLen || tc != cols {
		return nil, &StageError{File: cur.Index, Path: next.Path, Stage: StageContinuity, Err: fmt.Errorf(
			"head is %d × %d, want %d × %d: %w", tr, tc, c.params.SegLen, cols, source.ErrShape)}
	}

	var joined mat.Dense
	joined.Stack(blk.Data, tail)
	out.Data = &joined
	return out, nil
}
