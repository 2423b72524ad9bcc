package ensemble

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Mapper runs fn once for every index in [0,n). Implementations decide
// whether calls run one after another or concurrently; fn must not depend on
// the order.
type Mapper interface {
	Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// NewMapper returns a ParallelMapper when parallel is set, otherwise a
// SequentialMapper. Zero workers means one per CPU.
func NewMapper(parallel bool, workers int) Mapper {
	if !parallel {
		return SequentialMapper{}
	}
	return ParallelMapper{Workers: workers}
}

// SequentialMapper calls fn in index order on the calling goroutine and stops
// at the first error.
type SequentialMapper struct{}

func (SequentialMapper) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// ParallelMapper fans calls out over at most Workers goroutines. The first
// error cancels the context passed to the remaining calls.
type ParallelMapper struct {
	Workers int
}

func (p ParallelMapper) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := context.Cause(gCtx); err != nil {
				return err
			}
			return fn(gCtx, i)
		})
	}
	return g.Wait()
}
