package finder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock advances only when the poll loop sleeps. After fires
// immediately with the advanced time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) elapsed() time.Duration {
	return c.Now().Sub(epoch)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeElement struct {
	id     int
	hidden bool
	err    error
}

func (e *fakeElement) TagName() (string, error) { return "li", nil }
func (e *fakeElement) Text() (string, error)    { return fmt.Sprintf("row %d", e.id), nil }
func (e *fakeElement) Attribute(string) (string, bool, error) {
	return "", false, nil
}
func (e *fakeElement) IsDisplayed() (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	return !e.hidden, nil
}
func (e *fakeElement) IsEnabled() (bool, error)   { return true, nil }

// step is the answer to one query: count elements, or err. readErr is
// returned by the first element's IsDisplayed.
type step struct {
	count   int
	hidden  bool
	err     error
	readErr error
}

func counts(cs ...int) []step {
	steps := make([]step, len(cs))
	for i, c := range cs {
		steps[i] = step{count: c}
	}
	return steps
}

func presence(ps ...bool) []step {
	steps := make([]step, len(ps))
	for i, p := range ps {
		if p {
			steps[i] = step{count: 1}
		}
	}
	return steps
}

// scriptedRoot answers queries from a script; the last step repeats. It
// records the clock offset of every query.
type scriptedRoot struct {
	clock  *fakeClock
	steps  []step
	calls  int
	at     []time.Duration
	onCall func(n int)
	queryD time.Duration
}

func (r *scriptedRoot) next() step {
	r.calls++
	r.at = append(r.at, r.clock.elapsed())
	if r.onCall != nil {
		r.onCall(r.calls)
	}
	if r.queryD > 0 {
		r.clock.advance(r.queryD)
	}
	if len(r.steps) == 0 {
		return step{}
	}
	return r.steps[min(r.calls, len(r.steps))-1]
}

func (r *scriptedRoot) elements(s step) []browser.Element {
	els := make([]browser.Element, s.count)
	for i := range els {
		els[i] = &fakeElement{id: i, hidden: s.hidden}
	}
	if len(els) > 0 {
		els[0].(*fakeElement).err = s.readErr
	}
	return els
}

func (r *scriptedRoot) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	s := r.next()
	if s.err != nil {
		return nil, s.err
	}
	if s.count == 0 {
		return nil, browser.ErrNoSuchElement
	}
	return r.elements(s)[0], nil
}

func (r *scriptedRoot) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	s := r.next()
	if s.err != nil {
		return nil, s.err
	}
	return r.elements(s), nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
