// Package pool runs batches of tasks with bounded parallelism.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency is used when a caller passes a non-positive bound.
const DefaultMaxConcurrency = 5

// ErrNotAdmitted marks tasks that were never started because admission stopped.
var ErrNotAdmitted = errors.New("task not admitted")

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Result is the outcome of the task submitted at Index.
type Result[T any] struct {
	Err   error
	Value T
	Index int
}

// Execute runs tasks with at most maxConcurrency in flight and returns exactly
// one result per task, in submission order. Task failures and panics are
// captured in the results.
//
// ctx governs admission only: once it is done no further task starts and the
// remaining ones report ErrNotAdmitted. Tasks already running receive a
// context that is not canceled with ctx, so they always run to completion (or
// to their own timeouts).
func Execute[T any](ctx context.Context, tasks []Task[T], maxConcurrency int) []Result[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	results := make([]Result[T], len(tasks))
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	runCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, task := range tasks {
		results[i].Index = i

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = fmt.Errorf("%w: %w", ErrNotAdmitted, err)
			continue
		}
		// Acquire can succeed on an already-canceled context.
		if err := ctx.Err(); err != nil {
			sem.Release(1)
			results[i].Err = fmt.Errorf("%w: %w", ErrNotAdmitted, err)
			continue
		}

		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			defer sem.Release(1)
			results[i].Value, results[i].Err = run(runCtx, task)
		}(i, task)
	}

	wg.Wait()
	return results
}

// ExecuteFailFast runs tasks with at most maxConcurrency in flight and stops at
// the first failure: the context handed to running tasks is canceled and the
// first error is returned. On success the values are in submission order.
func ExecuteFailFast[T any](ctx context.Context, tasks []Task[T], maxConcurrency int) ([]T, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	values := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := run(gctx, task)
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			values[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func run[T any](ctx context.Context, task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
