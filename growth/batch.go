package growth

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FitAll fits every curve with at most workers fits in flight
// (GOMAXPROCS when workers <= 0). Curves share no state, so the only error
// is the context's: a curve that fails to converge just keeps zero parameters.
func FitAll(ctx context.Context, curves []*Curve, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, curve := range curves {
		if curve == nil {
			continue
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			curve.Fit(groupCtx, nil)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
