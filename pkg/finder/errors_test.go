package finder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odvcencio/crescent/pkg/browser"
)

func TestErrorMessages(t *testing.T) {
	loc := browser.ByID("save")

	nf := &NotFoundError{Locator: loc, Elapsed: 2 * time.Second, Polls: 5}
	assert.Equal(t, `element not found: locator=by.id("save") after 2s (5 polls)`, nf.Error())

	nf.Cause = context.Canceled
	assert.Equal(t, `element not found: locator=by.id("save") after 2s (5 polls): context canceled`, nf.Error())

	sp := &StillPresentError{Locator: loc, Elapsed: time.Second, Polls: 3}
	assert.Equal(t, `matching elements still found: locator=by.id("save") after 1s (3 polls)`, sp.Error())

	ee := &EvaluationError{Locator: loc, Elapsed: 0, Polls: 1, Cause: browser.ErrSessionClosed}
	assert.Equal(t, `element lookup failed: locator=by.id("save") after 0s (1 polls): browser session closed`, ee.Error())

	ee = &EvaluationError{Polls: 1, Cause: errors.New("boom")}
	assert.Equal(t, "evaluation failed after 0s (1 polls): boom", ee.Error())

	te := &TimeoutError{Elapsed: time.Second, Polls: 5}
	assert.Equal(t, "condition not satisfied after 1s (5 polls)", te.Error())
}

func TestErrorMatching(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matches error
		not     []error
	}{
		{"not found", &NotFoundError{}, ErrNotFound, []error{ErrStillPresent, ErrEvaluationFailed}},
		{"still present", &StillPresentError{}, ErrStillPresent, []error{ErrNotFound, ErrEvaluationFailed}},
		{"evaluation", &EvaluationError{Cause: browser.ErrConnectionLost}, ErrEvaluationFailed, []error{ErrNotFound}},
		{"timeout", &TimeoutError{}, ErrTimeout, []error{ErrNotFound}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			assert.ErrorIs(t, wrapped, tt.matches)
			for _, other := range tt.not {
				assert.NotErrorIs(t, tt.err, other)
			}
		})
	}

	assert.ErrorIs(t, &EvaluationError{Cause: browser.ErrConnectionLost}, browser.ErrConnectionLost)
}
