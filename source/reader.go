package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrRead wraps failures to open or decode a source file
	ErrRead = errors.New("cannot read source file")
	// ErrShape is returned for sample matrices of unexpected shape
	ErrShape = errors.New("unexpected sample matrix shape")
	// ErrMissingAttr is returned when the start time attribute is absent
	ErrMissingAttr = errors.New("missing attribute")
)

// Block is one source file's samples: rows are time samples, columns are
// channels.
type Block struct {
	Entry Entry
	Data  *mat.Dense
	Start time.Time
}

// Reader reads source files. Implementations must be safe for concurrent
// use by several workers, each reading different files.
type Reader interface {
	// Read returns the whole sample matrix and the file's start time
	Read(ctx context.Context, e Entry) (*Block, error)
	// ReadHead returns at most the first rows samples of every channel
	ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error)
	// StartTime returns the file's start time without reading samples
	StartTime(ctx context.Context, e Entry) (time.Time, error)
	// Extension is the file name suffix the reader handles
	Extension() string
}

func readErr(e Entry, err error) error {
	return fmt.Errorf("%w %s: %w", ErrRead, e.Path, err)
}

// ParseTimestamp parses the ISO-8601 variants found in DAS file
// attributes. Timestamps without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999Z0700",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func head(m *mat.Dense, rows int) *mat.Dense {
	r, c := m.Dims()
	if rows >= r {
		return m
	}
	return mat.DenseCopyOf(m.Slice(0, rows, 0, c))
}
