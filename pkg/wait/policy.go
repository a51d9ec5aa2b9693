// Package wait defines the timing policy used when polling a browser for
// elements: an overall timeout, a polling interval, a minimum stability window
// and the predicate candidates must satisfy.
//
// Durations are stored unscaled. The effective values used for waiting are
// computed at call time from a Scaler, usually the site that owns the
// driver session, so one Policy can be reused across sessions whose observed
// latency differs.
package wait

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
)

const (
	// MaxDefaultInterval caps the interval derived from a timeout.
	MaxDefaultInterval = 500 * time.Millisecond
)

// Scaler converts raw durations into effective ones.
type Scaler interface {
	RequestWait(d time.Duration) time.Duration
	LatencyFactor() float64
}

// Factor is a bare latency multiplier usable as a Scaler.
type Factor float64

// RequestWait returns round(ms × factor) milliseconds.
func (f Factor) RequestWait(d time.Duration) time.Duration {
	return ScaleDuration(d, float64(f))
}

func (f Factor) LatencyFactor() float64 { return float64(f) }

// ScaleDuration multiplies d by factor at millisecond resolution.
func ScaleDuration(d time.Duration, factor float64) time.Duration {
	if d <= 0 || factor <= 0 {
		return 0
	}
	ms := float64(d) / float64(time.Millisecond)
	return time.Duration(math.Round(ms*factor)) * time.Millisecond
}

// DefaultInterval returns min(timeout/4, 500ms).
func DefaultInterval(timeout time.Duration) time.Duration {
	return min(timeout/4, MaxDefaultInterval)
}

// DefaultMinStable returns twice the interval.
func DefaultMinStable(interval time.Duration) time.Duration {
	return interval * 2
}

// Policy is an immutable wait configuration. The With* methods return
// modified copies.
type Policy struct {
	timeout   time.Duration
	interval  time.Duration
	minStable time.Duration
	predicate browser.Predicate
}

// New returns a policy for timeout with the default interval, stability window
// and an accept-all predicate.
func New(timeout time.Duration) Policy {
	interval := DefaultInterval(timeout)
	return Policy{
		timeout:   timeout,
		interval:  interval,
		minStable: DefaultMinStable(interval),
		predicate: browser.Always,
	}
}

// WithTimeout changes the timeout and recomputes the default interval. The
// stability window is left as it is.
func (p Policy) WithTimeout(timeout time.Duration) Policy {
	p.timeout = timeout
	p.interval = DefaultInterval(timeout)
	return p
}

// WithInterval overrides the polling interval only.
func (p Policy) WithInterval(interval time.Duration) Policy {
	p.interval = interval
	return p
}

// WithMinStable overrides the stability window only.
func (p Policy) WithMinStable(minStable time.Duration) Policy {
	p.minStable = minStable
	return p
}

// WithPredicate replaces the match predicate. Nil resets it to accept-all.
func (p Policy) WithPredicate(predicate browser.Predicate) Policy {
	p.predicate = browser.OrAlways(predicate)
	return p
}

func (p Policy) Timeout() time.Duration   { return p.timeout }
func (p Policy) Interval() time.Duration  { return p.interval }
func (p Policy) MinStable() time.Duration { return p.minStable }

// Predicate returns the match predicate, never nil.
func (p Policy) Predicate() browser.Predicate {
	return browser.OrAlways(p.predicate)
}

// Effective holds scaled durations for one invocation.
type Effective struct {
	Timeout   time.Duration
	Interval  time.Duration
	MinStable time.Duration
	Latency   float64
}

// Scaled computes the effective durations through s. The latency factor is
// read once, so all three durations use the same value even while another
// goroutine changes it. A nil scaler means a latency factor of 1.
func (p Policy) Scaled(s Scaler) Effective {
	factor := 1.0
	if s != nil {
		factor = s.LatencyFactor()
	}
	return Effective{
		Timeout:   ScaleDuration(p.timeout, factor),
		Interval:  ScaleDuration(p.interval, factor),
		MinStable: ScaleDuration(p.minStable, factor),
		Latency:   factor,
	}
}

// EffectiveStableIntervalCount returns floor(scaledMinStable / scaledInterval),
// the number of polls that must agree before a result is accepted. Zero when
// the scaled interval is zero.
func (p Policy) EffectiveStableIntervalCount(s Scaler) int {
	eff := p.Scaled(s)
	if eff.Interval <= 0 {
		return 0
	}
	return int(eff.MinStable / eff.Interval)
}

// Validate rejects negative durations.
func (p Policy) Validate() error {
	var errs []error
	if p.timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be zero or positive, got %s", p.timeout))
	}
	if p.interval < 0 {
		errs = append(errs, fmt.Errorf("interval must be zero or positive, got %s", p.interval))
	}
	if p.minStable < 0 {
		errs = append(errs, fmt.Errorf("min_stable must be zero or positive, got %s", p.minStable))
	}
	return errors.Join(errs...)
}

// Describe summarizes the policy as it would be applied through s.
func (p Policy) Describe(s Scaler) string {
	eff := p.Scaled(s)
	return fmt.Sprintf("timeout=%s interval=%s min_stable=%s latency=%.2f",
		eff.Timeout, eff.Interval, eff.MinStable, eff.Latency)
}

func (p Policy) String() string {
	return fmt.Sprintf("timeout=%s interval=%s min_stable=%s", p.timeout, p.interval, p.minStable)
}
