// Package dispatch runs a round's selected workers concurrently and joins
// on completion or per-worker timeout.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/logging"
	"quorum/internal/types"
	"quorum/internal/worker"
)

// Dispatcher fans a task out to workers, each under its own deadline.
type Dispatcher struct {
	timeout time.Duration
}

// New creates a dispatcher with the given per-worker timeout.
func New(timeout time.Duration) *Dispatcher {
	return &Dispatcher{timeout: timeout}
}

// Dispatch runs every worker concurrently and returns one result per
// worker, in completion order. A worker that exceeds its deadline yields a
// timeout-tagged result immediately; its goroutine is left to finish in
// the background rather than cancelling siblings. The call returns once
// every slot has settled, so the total wait is bounded by the single
// largest deadline, not their sum. Zero workers returns an empty,
// non-nil slice.
func (d *Dispatcher) Dispatch(ctx context.Context, workers []worker.Worker, task types.Task) []types.WorkerResult {
	log := logging.Get(logging.CategoryDispatch)

	if len(workers) == 0 {
		log.Info("No workers selected for iteration %d", task.Iteration)
		return []types.WorkerResult{}
	}

	log.Info("Dispatching %d workers (timeout %v, iteration %d)", len(workers), d.timeout, task.Iteration)

	results := make(chan types.WorkerResult, len(workers))
	g := &errgroup.Group{}

	for _, w := range workers {
		g.Go(func() error {
			results <- d.runOne(ctx, w, task)
			return nil
		})
	}

	// Workers never return errors, so Wait only joins.
	_ = g.Wait()
	close(results)

	out := make([]types.WorkerResult, 0, len(workers))
	for r := range results {
		if r.Failed() {
			log.Warn("Worker %s finished with error %s after %v", r.WorkerID, r.Err, r.Elapsed)
		} else {
			log.Debug("Worker %s finished in %v (confidence %.2f)", r.WorkerID, r.Elapsed, r.Confidence)
		}
		out = append(out, r)
	}
	return out
}

// runOne executes a single worker under its own deadline. On expiry the
// slot settles with a timeout result while the worker goroutine drains in
// the background.
func (d *Dispatcher) runOne(ctx context.Context, w worker.Worker, task types.Task) types.WorkerResult {
	wctx, cancel := context.WithTimeout(ctx, d.timeout)

	started := time.Now()
	done := make(chan types.WorkerResult, 1)

	go func() {
		defer cancel()
		done <- w.Process(wctx, task)
	}()

	select {
	case r := <-done:
		return r
	case <-wctx.Done():
		if ctx.Err() != nil {
			// Session-level cancellation, not a per-worker timeout.
			return types.WorkerResult{
				WorkerID:    w.ID(),
				DisplayName: w.DisplayName(),
				Answer:      "Cancelled before completion",
				Err:         types.ErrWorkerExecution,
				Elapsed:     time.Since(started),
			}
		}
		return types.WorkerResult{
			WorkerID:    w.ID(),
			DisplayName: w.DisplayName(),
			Answer:      "Timed out after " + d.timeout.String(),
			Err:         types.ErrWorkerTimeout,
			Elapsed:     time.Since(started),
		}
	}
}
