package crawler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task processes one URL. Outcomes are applied by the task itself; the
// pool does not collect results.
type Task func(ctx context.Context, url string)

// Bundles splits items into at most workers contiguous slices of
// ceil(len(items)/workers) items. The last bundle may be smaller.
func Bundles(items []string, workers int) [][]string {
	if len(items) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (len(items) + workers - 1) / workers

	bundles := make([][]string, 0, workers)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		bundles = append(bundles, items[start:end])
	}
	return bundles
}

// WorkerPool runs a single wave. A new pool is created for every wave, so
// at most workers tasks are in flight at any time.
type WorkerPool struct {
	workers int
	stopped atomic.Bool
}

// NewWorkerPool returns a pool that runs up to workers bundles concurrently.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers}
}

// Run assigns one bundle of items to each worker and blocks until every
// worker has finished its bundle, seen the stop flag, or seen ctx end.
// Each worker processes its bundle in order and checks the stop flag and
// ctx before starting the next item. A task already running is never
// interrupted by Stop.
func (p *WorkerPool) Run(ctx context.Context, items []string, task Task) {
	var g errgroup.Group

	for _, bundle := range Bundles(items, p.workers) {
		g.Go(func() error {
			for _, item := range bundle {
				if p.stopped.Load() || ctx.Err() != nil {
					return nil
				}
				task(ctx, item)
			}
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return an error
}

// Stop tells every worker to end its bundle before the next item.
func (p *WorkerPool) Stop() {
	p.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (p *WorkerPool) Stopped() bool {
	return p.stopped.Load()
}
