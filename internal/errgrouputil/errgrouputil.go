// Package errgrouputil contains methods for working with errgroup code.
package errgrouputil

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every input concurrently, running at most limit calls at
// once, and returns the results in input order. A limit below one uses
// GOMAXPROCS. The first error cancels the context passed to the remaining
// calls and is returned.
func Map[In, Out any](
	ctx context.Context,
	limit int,
	inputs []In,
	fn func(ctx context.Context, in In) (Out, error),
) ([]Out, error) {
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	results := make([]Out, len(inputs))
	for i, in := range inputs {
		eg.Go(func() error {
			out, err := fn(ctx, in)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
