// Package permute runs embarrassingly parallel Monte Carlo iterations
// with deterministic, worker-count-independent results. Every iteration
// receives its own RNG seeded from the base seed plus the iteration index,
// so the same seed yields bit-identical output no matter how iterations
// are scheduled across workers.
package permute

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// PartialError reports a cancelled Monte Carlo run. The accompanying
// results cover only the completed iterations; callers decide whether a
// partial null distribution is acceptable.
type PartialError struct {
	Completed int
	Requested int
	Cause     error
}

func (e PartialError) Error() string {
	return fmt.Sprintf("monte carlo run cancelled after %d of %d iterations: %v", e.Completed, e.Requested, e.Cause)
}

func (e PartialError) Unwrap() error {
	return e.Cause
}

// Run executes n iterations of task across the given number of workers.
// Results are returned ordered by iteration index. Iterations never share
// state: each gets a private RNG seeded seed+iter and writes into its own
// result slot. On cancellation the completed subset is returned together
// with a PartialError; any other task error aborts the run entirely.
func Run[T any](ctx context.Context, n, workers int, seed int64, task func(iter int, rng *rand.Rand) (T, error)) ([]T, error) {
	if n < 1 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", n)
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	results := make([]T, n)
	done := make([]bool, n)

	g, gctx := errgroup.WithContext(ctx)

	iters := make(chan int)
	g.Go(func() error {
		defer close(iters)
		for i := 0; i < n; i++ {
			select {
			case iters <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for iter := range iters {
				rng := rand.New(rand.NewSource(seed + int64(iter)))

				v, err := task(iter, rng)
				if err != nil {
					return err
				}

				results[iter] = v
				done[iter] = true

				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}

			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return results, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		completed := make([]T, 0, n)
		for i, ok := range done {
			if ok {
				completed = append(completed, results[i])
			}
		}

		return completed, PartialError{Completed: len(completed), Requested: n, Cause: err}
	}

	return nil, err
}
