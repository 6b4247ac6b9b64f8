package permute

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func TestRunOrderedAndSeeded(t *testing.T) {
	task := func(iter int, rng *rand.Rand) (float64, error) {
		return float64(iter) + rng.Float64(), nil
	}

	got, err := Run(context.Background(), 50, 4, 7, task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("got %d results, expected 50", len(got))
	}

	for i, v := range got {
		want := float64(i) + rand.New(rand.NewSource(7+int64(i))).Float64()
		if v != want {
			t.Fatalf("result %d = %v, expected %v: results are not ordered by iteration", i, v, want)
		}
	}
}

func TestRunIndependentOfWorkerCount(t *testing.T) {
	task := func(iter int, rng *rand.Rand) (int, error) {
		return rng.Intn(1 << 20), nil
	}

	baseline, err := Run(context.Background(), 100, 1, 42, task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, workers := range []int{2, 4, 16, 200} {
		got, err := Run(context.Background(), 100, workers, 42, task)
		if err != nil {
			t.Fatalf("Run with %d workers: %v", workers, err)
		}
		for i := range baseline {
			if got[i] != baseline[i] {
				t.Fatalf("result %d differs between 1 worker (%d) and %d workers (%d)", i, baseline[i], workers, got[i])
			}
		}
	}
}

func TestRunTaskErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	task := func(iter int, rng *rand.Rand) (int, error) {
		if iter == 5 {
			return 0, boom
		}

		return iter, nil
	}

	got, err := Run(context.Background(), 20, 2, 0, task)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the task error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no results on a task error, got %d", len(got))
	}

	var partial PartialError
	if errors.As(err, &partial) {
		t.Fatal("a task failure must not be reported as a partial run")
	}
}

func TestRunCancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	task := func(iter int, rng *rand.Rand) (int, error) {
		if iter == 10 {
			cancel()
		}

		return iter, nil
	}

	got, err := Run(ctx, 1000, 2, 0, task)

	var partial PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected a PartialError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cause to unwrap to context.Canceled, got %v", err)
	}
	if partial.Requested != 1000 {
		t.Fatalf("Requested = %d, expected 1000", partial.Requested)
	}
	if partial.Completed != len(got) {
		t.Fatalf("Completed = %d but %d results returned", partial.Completed, len(got))
	}
	if partial.Completed == 0 || partial.Completed >= 1000 {
		t.Fatalf("Completed = %d, expected a strict subset", partial.Completed)
	}
}

func TestRunRejectsNonPositiveCount(t *testing.T) {
	task := func(iter int, rng *rand.Rand) (int, error) { return 0, nil }

	for _, n := range []int{0, -3} {
		if _, err := Run(context.Background(), n, 1, 0, task); err == nil {
			t.Fatalf("expected an error for n=%d", n)
		}
	}

	// Excess workers are harmless.
	if _, err := Run(context.Background(), 1, 64, 0, task); err != nil {
		t.Fatalf("Run with more workers than iterations: %v", err)
	}
}
