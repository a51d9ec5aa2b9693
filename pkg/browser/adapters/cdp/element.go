package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	cdpnode "github.com/chromedp/cdproto/cdp"

	"github.com/odvcencio/crescent/pkg/browser"
)

// Page scripts run with this bound to the element. Every script is wrapped
// so a node that has left the document reports stale instead of answering
// from its last state.
const (
	jsTagName   = `function() { return this.localName; }`
	jsText      = `function() { return typeof this.innerText === "string" ? this.innerText : this.textContent; }`
	jsAttribute = `function(name) { return this.hasAttribute(name) ? [true, this.getAttribute(name)] : [false, ""]; }`
	jsConnected = `function() { return true; }`
	jsEnabled   = `function() { return !(typeof this.matches === "function" && this.matches(":disabled")); }`
	jsDisplayed = `function() {
  if (typeof this.checkVisibility === "function") {
    if (!this.checkVisibility({ visibilityProperty: true })) return false;
  } else {
    const style = window.getComputedStyle(this);
    if (style.display === "none" || style.visibility === "hidden" || style.visibility === "collapse") return false;
  }
  return this.getClientRects().length > 0;
}`
)

func guarded(fn string) string {
	return `function(...args) {
  if (!this.isConnected) return { stale: true };
  return { value: (` + fn + `).apply(this, args) };
}`
}

type element struct {
	session *Session
	node    *cdpnode.Node
}

var (
	_ browser.SearchContext = (*Session)(nil)
	_ browser.Subtree       = (*element)(nil)
)

func (e *element) TagName() (string, error) {
	var tag string
	err := e.read(context.Background(), "tag name", jsTagName, &tag)
	return tag, err
}

func (e *element) Text() (string, error) {
	var text string
	err := e.read(context.Background(), "text", jsText, &text)
	return text, err
}

func (e *element) Attribute(name string) (string, bool, error) {
	var pair [2]json.RawMessage
	if err := e.read(context.Background(), "attribute", jsAttribute, &pair, name); err != nil {
		return "", false, err
	}
	var (
		ok    bool
		value string
	)
	if err := json.Unmarshal(pair[0], &ok); err != nil {
		return "", false, browser.WrapDriverError("invalid_response", "attribute", err)
	}
	if err := json.Unmarshal(pair[1], &value); err != nil {
		return "", false, browser.WrapDriverError("invalid_response", "attribute", err)
	}
	return value, ok, nil
}

func (e *element) IsDisplayed() (bool, error) {
	var shown bool
	err := e.read(context.Background(), "displayed", jsDisplayed, &shown)
	return shown, err
}

func (e *element) IsEnabled() (bool, error) {
	var enabled bool
	err := e.read(context.Background(), "enabled", jsEnabled, &enabled)
	return enabled, err
}

func (e *element) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.session.findFirst(ctx, loc, e)
}

func (e *element) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.session.findAll(ctx, loc, e)
}

func (e *element) String() string {
	if e.node == nil {
		return "element[]"
	}
	return fmt.Sprintf("element[%s backend=%d]", e.node.LocalName, e.node.BackendNodeID)
}

func (e *element) check(ctx context.Context) error {
	var ignored bool
	return e.read(ctx, "scope", jsConnected, &ignored)
}

func (e *element) read(ctx context.Context, what, fn string, out any, args ...any) error {
	ctx, cancel, err := e.session.operation(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	raw, err := e.session.run.call(ctx, e.node, guarded(fn), args...)
	if err != nil {
		return e.session.mapError(ctx, "read "+what, err)
	}
	var res struct {
		Stale bool            `json:"stale"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return browser.WrapDriverError("invalid_response", "read "+what, err)
	}
	if res.Stale {
		return fmt.Errorf("read %s: %w", what, browser.ErrStaleElement)
	}
	if len(res.Value) == 0 {
		return browser.NewDriverError("invalid_response", "read "+what+": no value")
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return browser.WrapDriverError("invalid_response", "read "+what, err)
	}
	return nil
}
