// Package workers runs indexed tasks on a bounded goroutine pool.
package workers

import (
	"context"
	"log/slog"
	"sync"
)

// TaskFunc handles the i-th task of a run.
type TaskFunc func(ctx context.Context, i int) error

// RunOptions configures how tasks are run.
type RunOptions struct {
	// Workers caps concurrency. Zero or more than the task count runs one goroutine per task.
	Workers int
	// Name tags log lines.
	Name string
	// OnError is called when a task fails while the context is still valid. If nil, errors are logged.
	OnError func(i int, err error)
}

// Run executes n tasks and blocks until every started task returns. Once ctx
// is done no new tasks are handed out; the returned count is how many ran.
func Run(ctx context.Context, n int, fn TaskFunc, opts RunOptions) int {
	if n <= 0 {
		return 0
	}

	workers := opts.Workers
	if workers <= 0 || workers > n {
		workers = n
	}

	onError := opts.OnError
	if onError == nil {
		onError = func(i int, err error) {
			slog.Error("Task failed", "pool", opts.Name, "index", i, "error", err)
		}
	}

	jobs := make(chan int)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				mu.Lock()
				started++
				mu.Unlock()

				if err := fn(ctx, i); err != nil && ctx.Err() == nil {
					onError(i, err)
				}
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if started < n {
		slog.Warn("Run stopped early", "pool", opts.Name, "started", started, "total", n)
	}
	return started
}
