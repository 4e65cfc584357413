package timeseries

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// waitFor blocks on the condition variable until ready holds. ts.mu must be
// held; it is released while blocked and held again on return.
//
// The wait is cut into slices of at most pollInterval. At the end of every
// slice the reader is woken to check the cancellation token, so a cancelled
// token is noticed within one interval even when timeout is Forever. A
// context, if it can end, wakes the reader as soon as it does.
func (ts *Timeseries[T]) waitFor(ctx context.Context, ready func() bool, timeout time.Duration) error {
	if ready() {
		return nil
	}

	bounded := timeout >= 0
	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (!bounded || d.Before(deadline)) {
		deadline = d
		bounded = true
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, ts.wake)
		defer stop()
	}
	sliced := bounded || ts.token != nil || ctx.Done() != nil

	for !ready() {
		if ts.closed || ts.token.Cancelled() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrTimeout
			}
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		if !sliced {
			// nothing but an append or Close can end this wait
			ts.cond.Wait()
			continue
		}

		slice := ts.pollInterval
		if bounded {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			slice = min(slice, remaining)
		}
		timer := time.AfterFunc(slice, ts.wake)
		ts.cond.Wait()
		timer.Stop()
	}
	return nil
}

// wake takes the lock before broadcasting so that a wake-up cannot slip in
// between a reader arming its timer and starting to wait.
func (ts *Timeseries[T]) wake() {
	ts.mu.Lock()
	ts.cond.Broadcast()
	ts.mu.Unlock()
}
