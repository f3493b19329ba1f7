package cube

import (
	"context"
	"runtime"

	"github.com/RyanBlaney/strain-cube/logging"
	"golang.org/x/sync/errgroup"
)

// Range is a half-open range of file indices
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits [0, n) into at most parts contiguous ranges whose
// lengths differ by at most one, longer ranges first. Empty ranges are
// dropped.
func Partition(n, parts int) []Range {
	if n <= 0 {
		return nil
	}
	parts = max(1, min(parts, n))
	size, extra := n/parts, n%parts

	out := make([]Range, 0, parts)
	start := 0
	for i := range parts {
		l := size
		if i < extra {
			l++
		}
		out = append(out, Range{Start: start, End: start + l})
		start += l
	}
	return out
}

// MapOrdered runs fn over jobs on at most workers goroutines and returns
// the results in job order. The first error cancels the context passed to
// the remaining calls, stops dispatching, and is returned once every
// started call has finished.
func MapOrdered[J, R any](ctx context.Context, workers int, jobs []J, fn func(context.Context, J) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]R, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := fn(gctx, job)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Executor processes file indices part by part: every file of a part is
// computed on the worker pool, then the part's blocks are handed to the
// sink in file order before the next part starts. At most one part's
// blocks are held in memory.
type Executor struct {
	workers int
	parts   int
	logger  logging.Logger
}

// NewExecutor creates an executor; workers <= 0 means one per CPU
func NewExecutor(workers, parts int, logger logging.Logger) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Executor{
		workers: workers,
		parts:   parts,
		logger:  logger.WithFields(logging.Fields{"component": "executor"}),
	}
}

// Workers returns the pool size
func (e *Executor) Workers() int {
	return e.workers
}

// Run computes compute(i) for every i in [0, n) and passes the results to
// sink in increasing i. It stops at the first error from either function.
func (e *Executor) Run(ctx context.Context, n int, compute func(context.Context, int) (*Block, error), sink func(*Block) error) error {
	ranges := Partition(n, e.parts)
	for pi, r := range ranges {
		indices := make([]int, 0, r.Len())
		for i := r.Start; i < r.End; i++ {
			indices = append(indices, i)
		}

		blocks, err := MapOrdered(ctx, e.workers, indices, compute)
		if err != nil {
			return err
		}
		for j := range blocks {
			if err := sink(blocks[j]); err != nil {
				return err
			}
			blocks[j] = nil
		}

		e.logger.Info("part complete", logging.Fields{
			"part":  pi + 1,
			"parts": len(ranges),
			"files": r.Len(),
			"first": r.Start,
			"last":  r.End - 1,
		})
	}
	return nil
}
