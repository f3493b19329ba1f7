package cube

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateSegment is returned in strict numeric mode when a
	// channel segment is identically zero
	ErrDegenerateSegment = errors.New("segment is identically zero")
	// ErrNonFinite is returned in strict numeric mode when a segment
	// contains NaN or infinite samples
	ErrNonFinite = errors.New("non-finite spectral power")
	// ErrIncomplete is returned when a run ends before the cube is full
	ErrIncomplete = errors.New("cube not completely written")
	// ErrOverrun is returned for a block that does not fit in the cube
	ErrOverrun = errors.New("block overruns cube")
	// ErrBlockShape is returned for a block whose channel or bin count
	// differs from the cube's
	ErrBlockShape = errors.New("block shape does not match cube")
)

// Processing stages reported in StageError
const (
	StageRead       = "read"
	StageContinuity = "continuity"
	StageKernel     = "kernel"
	StageWrite      = "write"
)

// StageError identifies the file and stage at which a run failed
type StageError struct {
	File  int
	Path  string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("file %d (%s) %s: %v", e.File, e.Path, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
