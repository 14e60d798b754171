// Package parallel provides the worker pools used for neighbourhood queries
// and local model fitting.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parallelize divides items into one contiguous range per CPU core
// and runs fn(start, end) for each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold parallelises only when items exceeds threshold;
// otherwise fn(0, items) runs on the calling goroutine.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Workers resolves an n_jobs style setting to a worker count.
// -1 means all CPUs, -2 all but one and so on; 0 is treated as 1.
func Workers(nJobs int) int {
	switch {
	case nJobs > 0:
		return nJobs
	case nJobs == 0:
		return 1
	}
	n := runtime.NumCPU() + 1 + nJobs
	if n < 1 {
		return 1
	}
	return n
}

// ForEach calls fn(ctx, i) for i in [0, n) with at most workers calls in
// flight. The first error cancels ctx for the remaining calls and is
// returned. Calls not yet started when ctx is done are skipped.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
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
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
