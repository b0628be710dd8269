package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end).
// A panic inside fn is recovered on its worker and returned as *errors.PanicError;
// when several chunks panic the lowest chunk wins.
func Parallelize(items int, fn func(start, end int)) error {
	if items <= 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	errs := make([]error, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			errs[w] = runChunk("parallel.Parallelize", fn, s, e)
		}(i, start, end)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) error {
	if items <= threshold {
		return runChunk("parallel.ParallelizeWithThreshold", fn, 0, items)
	}
	return Parallelize(items, fn)
}

func runChunk(op string, fn func(start, end int), start, end int) error {
	return errors.SafeExecute(op, func() error {
		fn(start, end)
		return nil
	})
}

// ForEach runs fn(ctx, i) for i in [0, n) on at most workers goroutines
// (runtime.NumCPU() when workers <= 0). The first error cancels ctx for the
// remaining calls and is returned. A panicking call counts as an error and
// comes back as *errors.PanicError.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return errors.SafeExecute("parallel.ForEach", func() error {
				return fn(gctx, i)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
