package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
)

// MemoryReader serves blocks that are already in memory, keyed by entry
// path. It counts full reads so callers can check access patterns.
type MemoryReader struct {
	Blocks map[string]*Block
	reads  atomic.Int64
}

// NewMemoryReader creates a reader over blocks; each block's Entry.Path is
// its key.
func NewMemoryReader(blocks ...*Block) *MemoryReader {
	m := &MemoryReader{Blocks: make(map[string]*Block, len(blocks))}
	for _, b := range blocks {
		m.Blocks[b.Entry.Path] = b
	}
	return m
}

func (m *MemoryReader) Extension() string { return "" }

// Reads returns how many times Read has been called
func (m *MemoryReader) Reads() int64 {
	return m.reads.Load()
}

func (m *MemoryReader) lookup(e Entry) (*Block, error) {
	b, ok := m.Blocks[e.Path]
	if !ok {
		return nil, readErr(e, fmt.Errorf("not in memory"))
	}
	return b, nil
}

func (m *MemoryReader) Read(ctx context.Context, e Entry) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.reads.Add(1)
	b, err := m.lookup(e)
	if err != nil {
		return nil, err
	}
	// callers own the returned matrix
	return &Block{Entry: e, Data: mat.DenseCopyOf(b.Data), Start: b.Start}, nil
}

func (m *MemoryReader) ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 {
		return nil, fmt.Errorf("%s: head of %d rows: %w", e.Path, rows, ErrShape)
	}
	b, err := m.lookup(e)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(head(b.Data, rows)), nil
}

func (m *MemoryReader) StartTime(ctx context.Context, e Entry) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	b, err := m.lookup(e)
	if err != nil {
		return time.Time{}, err
	}
	return b.Start, nil
}
