// Package finder locates browser elements by polling a search context until
// the result is stable.
//
// Three protocols share one bounded poll loop:
//
//   - FindSingle returns the first element that passes the predicate.
//   - FindStableSet returns the matching elements once their count has held
//     for the policy's stability window, or the last observed list when time
//     runs out.
//   - AwaitAbsence returns once no matching element has been seen for the
//     stability window.
//
// Missing and stale elements are retried. Any other error from the search
// context aborts the wait immediately.
package finder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/telemetry"
	"github.com/odvcencio/crescent/pkg/wait"
)

// Operation names used in telemetry, metrics and span names.
const (
	OpFindSingle          = "find_single"
	OpFindVisible         = "find_visible"
	OpFindOptional        = "find_optional"
	OpFindOptionalVisible = "find_optional_visible"
	OpFindStableSet       = "find_stable_set"
	OpFindVisibleSet      = "find_visible_set"
	OpAwaitAbsence        = "await_absence"
	OpAwait               = "await"
)

// Site supplies the latency scaling and default root for a finder.
// *site.Site satisfies it.
type Site interface {
	wait.Scaler
	Root() browser.SearchContext
	SessionID() string
}

type detachedSite struct{ wait.Factor }

func (detachedSite) Root() browser.SearchContext { return nil }
func (detachedSite) SessionID() string           { return "" }

// Finder runs polling protocols against a site. A Finder holds no per-call
// state and may be used from several goroutines; each invocation gets its
// own tracker and cadence.
type Finder struct {
	site    Site
	clock   Clock
	hub     *telemetry.Hub
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Finder.
type Option func(*Finder)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(f *Finder) {
		if c != nil {
			f.clock = c
		}
	}
}

func WithTelemetry(hub *telemetry.Hub) Option {
	return func(f *Finder) { f.hub = hub }
}

func WithLogger(logger *logging.Logger) Option {
	return func(f *Finder) { f.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(f *Finder) { f.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *Finder) {
		if t != nil {
			f.tracer = t
		}
	}
}

// New creates a finder bound to s. A nil site scales by 1.0 and has no
// default root.
func New(s Site, opts ...Option) *Finder {
	if s == nil {
		s = detachedSite{Factor: 1}
	}
	f := &Finder{
		site:   s,
		clock:  RealClock(),
		tracer: defaultTracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// FindSingle polls root for the first element at loc that satisfies the
// policy predicate. There is no stability requirement. A nil root means the
// site's root. On deadline or cancellation the error is a *NotFoundError.
func (f *Finder) FindSingle(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, error) {
	return f.findSingle(ctx, OpFindSingle, root, loc, policy)
}

// FindVisible is FindSingle restricted to displayed elements.
func (f *Finder) FindVisible(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, error) {
	return f.findSingle(ctx, OpFindVisible, root, loc, visibleOnly(policy))
}

// FindOptional is FindSingle that reports a timed-out lookup as (nil, false,
// nil). Cancellation and evaluation failures are still errors.
func (f *Finder) FindOptional(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, bool, error) {
	return f.findOptional(ctx, OpFindOptional, root, loc, policy)
}

// FindOptionalVisible is FindOptional restricted to displayed elements.
func (f *Finder) FindOptionalVisible(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, bool, error) {
	return f.findOptional(ctx, OpFindOptionalVisible, root, loc, visibleOnly(policy))
}

func (f *Finder) findOptional(ctx context.Context, op string, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, bool, error) {
	el, err := f.findSingle(ctx, op, root, loc, policy)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) && nf.Cause == nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return el, true, nil
}

func (f *Finder) findSingle(ctx context.Context, op string, root browser.SearchContext, loc browser.Locator, policy wait.Policy) (browser.Element, error) {
	root, err := f.resolveRoot(root, loc)
	if err != nil {
		return nil, err
	}
	ctx, inv, err := f.begin(ctx, op, loc, policy)
	if err != nil {
		return nil, err
	}

	el, stats, err := poll(ctx, f.clock, inv.eff, singleEval(root, loc, policy.Predicate()), inv.attempt)
	switch stats.outcome {
	case outcomeAccepted:
		inv.end(stats, nil)
		return el, nil
	case outcomeFailed:
		e := &EvaluationError{Locator: loc, Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return nil, e
	default:
		e := &NotFoundError{Locator: loc, Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return nil, e
	}
}

// FindStableSet polls root for all elements at loc that satisfy the policy
// predicate and returns them once the match count has been unchanged for the
// scaled stability window. Polling does not start the window until at least
// one match has been seen.
//
// Running out of time is not an error: the last observed list is returned
// with a nil error, and callers that need a non-empty result check its
// length. On cancellation the last observed list is returned with the
// context error. Only a non-retryable lookup failure yields an
// *EvaluationError.
func (f *Finder) FindStableSet(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) ([]browser.Element, error) {
	return f.findStableSet(ctx, OpFindStableSet, root, loc, policy)
}

// FindVisibleSet is FindStableSet restricted to displayed elements.
func (f *Finder) FindVisibleSet(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) ([]browser.Element, error) {
	return f.findStableSet(ctx, OpFindVisibleSet, root, loc, visibleOnly(policy))
}

func (f *Finder) findStableSet(ctx context.Context, op string, root browser.SearchContext, loc browser.Locator, policy wait.Policy) ([]browser.Element, error) {
	root, err := f.resolveRoot(root, loc)
	if err != nil {
		return nil, err
	}
	ctx, inv, err := f.begin(ctx, op, loc, policy)
	if err != nil {
		return nil, err
	}

	tracker := &countTracker{minStable: inv.eff.MinStable}
	found, stats, err := poll(ctx, f.clock, inv.eff, stableSetEval(f.clock, root, loc, policy.Predicate(), tracker), inv.attempt)
	switch stats.outcome {
	case outcomeAccepted:
		inv.end(stats, nil, AttrMatches.Int(len(found)))
		return found, nil
	case outcomeFailed:
		e := &EvaluationError{Locator: loc, Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return nil, e
	case outcomeCancelled:
		snapshot := snapshotOf(tracker)
		e := fmt.Errorf("find stable set %s: %w", loc, err)
		inv.end(stats, e, AttrMatches.Int(len(snapshot)))
		return snapshot, e
	default:
		snapshot := snapshotOf(tracker)
		inv.end(stats, nil, AttrMatches.Int(len(snapshot)))
		return snapshot, nil
	}
}

func snapshotOf(t *countTracker) []browser.Element {
	if t.found == nil {
		return []browser.Element{}
	}
	return t.found
}

// AwaitAbsence polls root until no element at loc has satisfied the policy
// predicate for the scaled stability window. The wait starts as if a match
// were present, so a locator that is already absent still waits one full
// window. On deadline or cancellation the error is a *StillPresentError.
func (f *Finder) AwaitAbsence(ctx context.Context, root browser.SearchContext, loc browser.Locator, policy wait.Policy) error {
	root, err := f.resolveRoot(root, loc)
	if err != nil {
		return err
	}
	ctx, inv, err := f.begin(ctx, OpAwaitAbsence, loc, policy)
	if err != nil {
		return err
	}

	tracker := newPresenceTracker(inv.eff.MinStable)
	_, stats, err := poll(ctx, f.clock, inv.eff, absenceEval(f.clock, root, loc, policy.Predicate(), tracker), inv.attempt)
	switch stats.outcome {
	case outcomeAccepted:
		inv.end(stats, nil)
		return nil
	case outcomeFailed:
		e := &EvaluationError{Locator: loc, Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return e
	default:
		e := &StillPresentError{Locator: loc, Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return e
	}
}

// Condition is evaluated by Await on every poll. Returning a missing or stale
// element error counts as "not yet".
type Condition func(ctx context.Context) (bool, error)

// Await polls cond with the policy's scaled timing until it reports true.
// The policy predicate is not used. On deadline or cancellation the error is
// a *TimeoutError; a non-retryable error from cond is an *EvaluationError.
func (f *Finder) Await(ctx context.Context, policy wait.Policy, cond Condition) error {
	if cond == nil {
		return errors.New("await: nil condition")
	}
	ctx, inv, err := f.begin(ctx, OpAwait, browser.Locator{}, policy)
	if err != nil {
		return err
	}

	eval := func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	}
	_, stats, err := poll(ctx, f.clock, inv.eff, eval, inv.attempt)
	switch stats.outcome {
	case outcomeAccepted:
		inv.end(stats, nil)
		return nil
	case outcomeFailed:
		e := &EvaluationError{Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return e
	default:
		e := &TimeoutError{Elapsed: stats.elapsed, Polls: stats.polls, Cause: err}
		inv.end(stats, e)
		return e
	}
}

// Describe summarizes policy as this finder would apply it.
func (f *Finder) Describe(policy wait.Policy) string {
	return policy.Describe(f.site)
}

func (f *Finder) String() string {
	return fmt.Sprintf("Finder[session=%s, latency=%.2f]", f.site.SessionID(), f.site.LatencyFactor())
}

func visibleOnly(policy wait.Policy) wait.Policy {
	return policy.WithPredicate(browser.And(policy.Predicate(), browser.IsVisible))
}

func (f *Finder) resolveRoot(root browser.SearchContext, loc browser.Locator) (browser.SearchContext, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if root != nil {
		return root, nil
	}
	if root = f.site.Root(); root != nil {
		return root, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNoSearchContext, loc)
}

// invocation carries the observability state of one finder call.
type invocation struct {
	finder *Finder
	op     string
	id     string
	loc    browser.Locator
	eff    wait.Effective
	span   trace.Span
}

func (f *Finder) begin(ctx context.Context, op string, loc browser.Locator, policy wait.Policy) (context.Context, *invocation, error) {
	if err := policy.Validate(); err != nil {
		return ctx, nil, fmt.Errorf("invalid wait policy: %w", err)
	}
	inv := &invocation{
		finder: f,
		op:     op,
		id:     telemetry.NewInvocationID(time.Now()),
		loc:    loc,
		eff:    policy.Scaled(f.site),
	}

	ctx, inv.span = spanContext(ctx, f.tracer, "finder."+op,
		AttrOperation.String(op),
		AttrLocator.String(loc.String()),
		AttrInvocationID.String(inv.id),
		AttrSessionID.String(f.site.SessionID()),
		AttrTimeoutMS.Int64(inv.eff.Timeout.Milliseconds()),
		AttrIntervalMS.Int64(inv.eff.Interval.Milliseconds()),
		AttrMinStableMS.Int64(inv.eff.MinStable.Milliseconds()),
		AttrLatency.Float64(inv.eff.Latency),
	)

	details := inv.details()
	details["timeout_ms"] = inv.eff.Timeout.Milliseconds()
	details["interval_ms"] = inv.eff.Interval.Milliseconds()
	details["min_stable_ms"] = inv.eff.MinStable.Milliseconds()
	details["latency"] = inv.eff.Latency
	inv.publish(telemetry.EventPollStarted, details)
	inv.log(logging.LevelDebug, telemetry.EventPollStarted, "poll started", details)
	return ctx, inv, nil
}

func (inv *invocation) details() map[string]any {
	d := map[string]any{"operation": inv.op}
	if inv.loc.Value != "" {
		d["locator"] = inv.loc.String()
	}
	return d
}

func (inv *invocation) attempt(n int, accepted bool, err error) {
	if inv.finder.hub == nil {
		return
	}
	d := inv.details()
	d["poll"] = n
	d["accepted"] = accepted
	if err != nil {
		d["retryable"] = err.Error()
	}
	inv.publish(telemetry.EventPollAttempt, d)
}

func (inv *invocation) end(stats pollStats, err error, attrs ...attribute.KeyValue) {
	inv.finder.metrics.record(inv.op, stats)
	defer endSpan(inv.span, stats, err, attrs...)

	d := inv.details()
	d["polls"] = stats.polls
	d["retries"] = stats.retries
	d["elapsed_ms"] = stats.elapsed.Milliseconds()
	for _, kv := range attrs {
		if kv.Key == AttrMatches {
			d["matches"] = kv.Value.AsInt64()
		}
	}
	if err != nil {
		d["error"] = err.Error()
		if browser.IsConnectionError(err) {
			d["connection_lost"] = true
		}
	}

	switch stats.outcome {
	case outcomeAccepted:
		inv.publish(telemetry.EventPollAccepted, d)
		inv.log(logging.LevelInfo, telemetry.EventPollAccepted, "poll accepted", d)
	case outcomeTimeout:
		inv.publish(telemetry.EventPollTimeout, d)
		inv.log(logging.LevelWarn, telemetry.EventPollTimeout, "poll timed out", d)
	case outcomeCancelled:
		inv.publish(telemetry.EventPollCancelled, d)
		inv.log(logging.LevelWarn, telemetry.EventPollCancelled, "poll cancelled", d)
	case outcomeFailed:
		inv.publish(telemetry.EventPollFailed, d)
		inv.log(logging.LevelError, telemetry.EventPollFailed, "poll failed", d)
	}
}

func (inv *invocation) publish(t telemetry.EventType, data map[string]any) {
	inv.finder.hub.Publish(telemetry.Event{
		Type:         t,
		SessionID:    inv.finder.site.SessionID(),
		InvocationID: inv.id,
		Data:         data,
	})
}

func (inv *invocation) log(level logging.Level, t telemetry.EventType, msg string, details map[string]any) {
	err := inv.finder.logger.Log(logging.Event{
		Level:        level,
		Category:     logging.CategoryPoll,
		EventType:    string(t),
		InvocationID: inv.id,
		Message:      msg,
		Details:      details,
	})
	if err != nil {
		inv.span.AddEvent("log.write_failed", trace.WithAttributes(
			attribute.String("event_type", string(t)),
			attribute.String("error", err.Error()),
		))
	}
}
