package finder

import (
	"context"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
)

// countTracker accepts a match list once its size has held for minStable.
// Stability is measured on the count, not element identity, because the
// application may replace elements between polls.
type countTracker struct {
	minStable time.Duration
	count     int
	since     time.Time
	stable    bool
	found     []browser.Element
}

func (t *countTracker) observe(at time.Time, found []browser.Element) bool {
	previous := t.count
	t.count = len(found)
	t.found = found

	// Nothing seen yet: keep waiting for the first match.
	if !t.stable && t.count == 0 {
		return false
	}
	if !t.stable || t.count != previous {
		t.since = at
		t.stable = true
	}
	return at.Sub(t.since) >= t.minStable
}

// presenceTracker accepts once no match has been seen for minStable. It
// starts in the "present" state, so an absence observed on the first poll
// still has to last a full window.
type presenceTracker struct {
	minStable time.Duration
	present   bool
	since     time.Time
	stable    bool
}

func newPresenceTracker(minStable time.Duration) *presenceTracker {
	return &presenceTracker{minStable: minStable, present: true}
}

func (t *presenceTracker) observe(at time.Time, present bool) bool {
	if present != t.present {
		t.present = present
		if present {
			t.stable = false
		} else {
			t.since = at
			t.stable = true
		}
	}
	return t.stable && at.Sub(t.since) >= t.minStable
}

// filter keeps the elements pred accepts. A read error other than "no such
// element" fails the whole poll, leaving tracker state alone.
func filter(found []browser.Element, pred browser.Predicate) ([]browser.Element, error) {
	matched := make([]browser.Element, 0, len(found))
	for _, el := range found {
		ok, err := browser.Matches(pred, el)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, el)
		}
	}
	return matched, nil
}

func anyMatch(found []browser.Element, pred browser.Predicate) (bool, error) {
	for _, el := range found {
		ok, err := browser.Matches(pred, el)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func singleEval(root browser.SearchContext, loc browser.Locator, pred browser.Predicate) evaluation[browser.Element] {
	return func(ctx context.Context) (browser.Element, bool, error) {
		el, err := root.FindElement(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		if el == nil {
			return nil, false, nil
		}
		ok, err := browser.Matches(pred, el)
		if err != nil || !ok {
			return nil, false, err
		}
		return el, true, nil
	}
}

func stableSetEval(clk Clock, root browser.SearchContext, loc browser.Locator, pred browser.Predicate, tr *countTracker) evaluation[[]browser.Element] {
	return func(ctx context.Context) ([]browser.Element, bool, error) {
		at := clk.Now()
		found, err := root.FindElements(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		matched, err := filter(found, pred)
		if err != nil {
			return nil, false, err
		}
		return matched, tr.observe(at, matched), nil
	}
}

func absenceEval(clk Clock, root browser.SearchContext, loc browser.Locator, pred browser.Predicate, tr *presenceTracker) evaluation[struct{}] {
	return func(ctx context.Context) (struct{}, bool, error) {
		at := clk.Now()
		found, err := root.FindElements(ctx, loc)
		if err != nil {
			return struct{}{}, false, err
		}
		present, err := anyMatch(found, pred)
		if err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, tr.observe(at, present), nil
	}
}
