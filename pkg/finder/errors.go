package finder

import (
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
)

var (
	// ErrNotFound matches a single-element lookup that found no qualifying
	// element before its deadline.
	ErrNotFound = errors.New("element not found")
	// ErrStillPresent matches an absence wait that never observed a stable
	// absence before its deadline.
	ErrStillPresent = errors.New("elements still present")
	// ErrEvaluationFailed matches a non-retryable failure from the search
	// context.
	ErrEvaluationFailed = errors.New("element lookup failed")
	// ErrTimeout matches a generic Await that did not succeed in time.
	ErrTimeout = errors.New("condition not satisfied")
	// ErrNoSearchContext is returned when neither the call nor the site
	// supplies a root to search.
	ErrNoSearchContext = errors.New("no search context")
)

// NotFoundError reports a FindSingle deadline or cancellation. Cause is the
// context error when the wait was cancelled, nil on a plain timeout.
type NotFoundError struct {
	Locator browser.Locator
	Elapsed time.Duration
	Polls   int
	Cause   error
}

func (e *NotFoundError) Error() string {
	return withCause(fmt.Sprintf("element not found: locator=%s after %s (%d polls)", e.Locator, e.Elapsed, e.Polls), e.Cause)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *NotFoundError) Unwrap() error        { return e.Cause }

// StillPresentError reports an AwaitAbsence deadline or cancellation.
type StillPresentError struct {
	Locator browser.Locator
	Elapsed time.Duration
	Polls   int
	Cause   error
}

func (e *StillPresentError) Error() string {
	return withCause(fmt.Sprintf("matching elements still found: locator=%s after %s (%d polls)", e.Locator, e.Elapsed, e.Polls), e.Cause)
}

func (e *StillPresentError) Is(target error) bool { return target == ErrStillPresent }
func (e *StillPresentError) Unwrap() error        { return e.Cause }

// EvaluationError wraps a non-retryable error raised by the search context.
// Cause is never nil.
type EvaluationError struct {
	Locator browser.Locator
	Elapsed time.Duration
	Polls   int
	Cause   error
}

func (e *EvaluationError) Error() string {
	if e.Locator.Value == "" {
		return withCause(fmt.Sprintf("evaluation failed after %s (%d polls)", e.Elapsed, e.Polls), e.Cause)
	}
	return withCause(fmt.Sprintf("element lookup failed: locator=%s after %s (%d polls)", e.Locator, e.Elapsed, e.Polls), e.Cause)
}

func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluationFailed }
func (e *EvaluationError) Unwrap() error        { return e.Cause }

// TimeoutError reports a generic Await that ran out of time.
type TimeoutError struct {
	Elapsed time.Duration
	Polls   int
	Cause   error
}

func (e *TimeoutError) Error() string {
	return withCause(fmt.Sprintf("condition not satisfied after %s (%d polls)", e.Elapsed, e.Polls), e.Cause)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
func (e *TimeoutError) Unwrap() error        { return e.Cause }

func withCause(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return msg + ": " + cause.Error()
}
