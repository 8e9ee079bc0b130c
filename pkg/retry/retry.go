// Package retry provides a bounded-retry executor with explicit delay
// schedules and a rotating resource pool. It is used wherever an external
// system's state must be polled until it matches an expectation or the retry
// budget is exhausted: DNS propagation, slow-converging cluster resources.
//
// The probe and the policy are kept separate so tests can drive the executor
// with a fake clock and fake resources.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrBudgetExhausted is returned by Do when every attempt of the schedule has
// been consumed without the operation succeeding.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// ErrAborted is returned by Do when the operation requested a hard stop.
var ErrAborted = errors.New("retry aborted")

// Outcome tells the executor what to do after an attempt.
type Outcome int

const (
	// Done stops retrying and returns the attempt's value.
	Done Outcome = iota

	// Retry sleeps the next scheduled delay and tries again.
	Retry

	// Abort stops retrying immediately and surfaces ErrAborted.
	Abort
)

// Schedule is a finite sequence of delays. Delay i is slept after attempt i
// fails; a schedule of length n allows n+1 attempts.
type Schedule []time.Duration

// Fixed returns a schedule of n identical delays, allowing n+1 attempts.
func Fixed(delay time.Duration, n int) Schedule {
	if n < 0 {
		n = 0
	}
	s := make(Schedule, n)
	for i := range s {
		s[i] = delay
	}
	return s
}

// Attempts returns the total number of attempts the schedule allows.
func (s Schedule) Attempts() int {
	return len(s) + 1
}

// Operation is one polling attempt. It receives the zero-based attempt index
// and returns a value plus an Outcome.
type Operation[T any] func(attempt int) (T, Outcome)

// Policy pairs a schedule with an injectable sleep function.
type Policy struct {
	// Schedule is the sequence of delays between attempts.
	Schedule Schedule

	// Sleep is called between attempts. Defaults to a context-aware
	// time.Sleep. Tests substitute a fake clock here.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FixedPolicy returns a Policy with a fixed-delay schedule.
func FixedPolicy(delay time.Duration, attempts int) Policy {
	return Policy{Schedule: Fixed(delay, attempts-1)}
}

// Do runs op until it reports Done, it reports Abort, the schedule is
// exhausted, or ctx is cancelled. On exhaustion the last attempt's value is
// returned together with ErrBudgetExhausted.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		value, outcome := op(attempt)
		last = value

		switch outcome {
		case Done:
			return value, nil
		case Abort:
			return value, ErrAborted
		}

		if attempt >= len(p.Schedule) {
			return last, ErrBudgetExhausted
		}
		if err := sleep(ctx, p.Schedule[attempt]); err != nil {
			return last, err
		}
	}
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
