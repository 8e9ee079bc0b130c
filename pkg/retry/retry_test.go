package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock records requested sleeps without actually sleeping.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestDoStopsOnDone(t *testing.T) {
	clock := &fakeClock{}
	p := Policy{Schedule: Fixed(time.Second, 10), Sleep: clock.Sleep}

	calls := 0
	v, err := Do(context.Background(), p, func(attempt int) (string, Outcome) {
		calls++
		if attempt == 2 {
			return "resolved", Done
		}
		return "", Retry
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if v != "resolved" {
		t.Errorf("unexpected value %q", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(clock.slept) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(clock.slept))
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	clock := &fakeClock{}
	p := FixedPolicy(3*time.Second, 5)
	p.Sleep = clock.Sleep

	calls := 0
	v, err := Do(context.Background(), p, func(attempt int) (int, Outcome) {
		calls++
		return attempt, Retry
	})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", calls)
	}
	// Last attempt's value is preserved on exhaustion.
	if v != 4 {
		t.Errorf("expected last value 4, got %d", v)
	}
	for i, d := range clock.slept {
		if d != 3*time.Second {
			t.Errorf("sleep %d: expected 3s, got %v", i, d)
		}
	}
	if len(clock.slept) != 4 {
		t.Errorf("expected 4 sleeps between 5 attempts, got %d", len(clock.slept))
	}
}

func TestDoAbortStopsImmediately(t *testing.T) {
	clock := &fakeClock{}
	p := Policy{Schedule: Fixed(time.Second, 10), Sleep: clock.Sleep}

	calls := 0
	_, err := Do(context.Background(), p, func(attempt int) (struct{}, Outcome) {
		calls++
		return struct{}{}, Abort
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if len(clock.slept) != 0 {
		t.Errorf("abort must not sleep, got %d sleeps", len(clock.slept))
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		Schedule: Fixed(time.Second, 10),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	calls := 0
	_, err := Do(ctx, p, func(attempt int) (struct{}, Outcome) {
		calls++
		return struct{}{}, Retry
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestFixedScheduleAttempts(t *testing.T) {
	if got := Fixed(time.Second, 29).Attempts(); got != 30 {
		t.Errorf("expected 30 attempts, got %d", got)
	}
	if got := Fixed(time.Second, -1).Attempts(); got != 1 {
		t.Errorf("negative n should clamp to a single attempt, got %d", got)
	}
}

func TestPoolRoundRobin(t *testing.T) {
	pool := NewPool([]string{"a", "b", "c"})
	want := []string{"a", "b", "c", "a", "b", "c", "a"}
	for i, w := range want {
		if got := pool.Next(); got != w {
			t.Errorf("attempt %d: expected %q, got %q", i, w, got)
		}
	}
	if pool.Len() != 3 {
		t.Errorf("unexpected pool length %d", pool.Len())
	}
}
