package scan

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Each runs fn for every item with at most workers in flight. The first
// error returned by fn cancels the rest; ctx cancellation does the same.
func Each[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) error) error {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
