package browser

import "context"

//go:generate mockgen -package=browsertest -destination=browsertest/mock_browser.go github.com/odvcencio/crescent/pkg/browser SearchContext,Element

// Element is a handle to a node inside a search context. Handles can go stale
// when the application replaces the node; reads then return ErrStaleElement.
type Element interface {
	TagName() (string, error)
	Text() (string, error)
	Attribute(name string) (string, bool, error)
	IsDisplayed() (bool, error)
	IsEnabled() (bool, error)
}

// SearchContext is the port implemented by browser adapters: a document or
// an element subtree that can be queried by locator.
type SearchContext interface {
	// FindElement returns the first element at locator, or ErrNoSuchElement.
	FindElement(ctx context.Context, locator Locator) (Element, error)
	// FindElements returns every element at locator in document order.
	// An empty result is not an error.
	FindElements(ctx context.Context, locator Locator) ([]Element, error)
}

// Subtree is implemented by elements that can act as a search root.
type Subtree interface {
	Element
	SearchContext
}
