package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run calls fn for every i in [0, n) across at most workers goroutines. The context
// passed to fn is cancelled as soon as one call fails; Run returns the first error.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	group, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		group.SetLimit(workers)
	}

	for i := range n {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			return fn(ctx, i)
		})
	}

	return group.Wait()
}

// Map applies fn to every item in parallel and returns the results in input order.
func Map[T any, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	err := Run(ctx, workers, len(items), func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach calls fn for every item in parallel.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) error) error {
	return Run(ctx, workers, len(items), func(ctx context.Context, i int) error {
		return fn(ctx, items[i])
	})
}
