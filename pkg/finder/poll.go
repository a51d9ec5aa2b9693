package finder

import (
	"context"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/wait"
)

// minSleep keeps a zero interval from spinning.
const minSleep = time.Millisecond

// evaluation is one poll. accepted ends the loop with value; a retryable
// error counts as "no match this poll"; any other error aborts.
type evaluation[T any] func(ctx context.Context) (value T, accepted bool, err error)

type outcome string

const (
	outcomeAccepted  outcome = "accepted"
	outcomeTimeout   outcome = "timeout"
	outcomeFailed    outcome = "failed"
	outcomeCancelled outcome = "cancelled"
)

type pollStats struct {
	outcome outcome
	polls   int
	retries int
	elapsed time.Duration
}

// attemptFunc observes every evaluation; err is nil or retryable.
type attemptFunc func(poll int, accepted bool, err error)

// poll drives eval until it accepts, the deadline at eff.Timeout passes, the
// context ends, or eval fails with a non-retryable error.
//
// The deadline is measured on clk from the first call. A sleep is clipped to
// the remaining time, so the loop evaluates once more at the deadline before
// giving up; a zero timeout therefore means exactly one evaluation. The
// returned error is the raw cause for outcomeFailed, the context error for
// outcomeCancelled and nil otherwise.
func poll[T any](ctx context.Context, clk Clock, eff wait.Effective, eval evaluation[T], onAttempt attemptFunc) (T, pollStats, error) {
	var (
		zero  T
		stats pollStats
	)
	start := clk.Now()
	deadline := start.Add(eff.Timeout)
	finish := func(o outcome) pollStats {
		stats.outcome = o
		stats.elapsed = clk.Now().Sub(start)
		return stats
	}

	sleep := max(eff.Interval, minSleep)
	for {
		if err := ctx.Err(); err != nil {
			return zero, finish(outcomeCancelled), err
		}

		stats.polls++
		value, accepted, err := eval(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, finish(outcomeCancelled), ctxErr
			}
			if !browser.IsRetryable(err) {
				return zero, finish(outcomeFailed), err
			}
			stats.retries++
			accepted = false
		}
		if onAttempt != nil {
			onAttempt(stats.polls, accepted, err)
		}
		if accepted {
			return value, finish(outcomeAccepted), nil
		}

		now := clk.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			return zero, finish(outcomeTimeout), nil
		}
		select {
		case <-ctx.Done():
			return zero, finish(outcomeCancelled), ctx.Err()
		case <-clk.After(min(sleep, remaining)):
		}
	}
}
