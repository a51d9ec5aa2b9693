// Package dom implements browser.SearchContext over parsed HTML with
// goquery. A Document can be reloaded in place; elements found before a
// reload report ErrStaleElement, the same way a live page invalidates
// handles when the application re-renders.
package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
)

// Document is a replaceable HTML document. It is safe for concurrent use.
type Document struct {
	mu         sync.RWMutex
	doc        *goquery.Document
	generation uint64
	closed     bool
	source     string
	logger     *logging.Logger
}

// Option configures a Document.
type Option func(*Document)

func WithLogger(logger *logging.Logger) Option {
	return func(d *Document) { d.logger = logger }
}

// WithSource labels the document for logs, usually with its file or URL.
func WithSource(source string) Option {
	return func(d *Document) { d.source = source }
}

// NewDocument parses r as the first generation of a document.
func NewDocument(r io.Reader, opts ...Option) (*Document, error) {
	d := &Document{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if err := d.Load(r); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseHTML is NewDocument over a string.
func ParseHTML(s string, opts ...Option) (*Document, error) {
	return NewDocument(strings.NewReader(s), opts...)
}

// Load replaces the content with the HTML read from r. Elements found under
// earlier content become stale. On a parse error the current content is
// kept.
func (d *Document) Load(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return browser.ErrSessionClosed
	}
	d.doc = doc
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	_ = d.logger.Debug(logging.CategoryAdapter, "dom.loaded", "document loaded", map[string]any{
		"source":     d.source,
		"generation": gen,
		"elements":   doc.Find("*").Length(),
	})
	return nil
}

// SetHTML replaces the content with s.
func (d *Document) SetHTML(s string) error {
	return d.Load(strings.NewReader(s))
}

// Generation counts successful loads.
func (d *Document) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// Title returns the trimmed document title.
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.doc == nil {
		return ""
	}
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Close ends the session; later queries and reads fail with
// browser.ErrSessionClosed.
func (d *Document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Document) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	els, err := d.query(ctx, loc, nil, true)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, loc)
	}
	return els[0], nil
}

func (d *Document) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return d.query(ctx, loc, nil, false)
}

// query matches loc under scope, or the whole document when scope is nil.
// A scope from an earlier generation is stale.
func (d *Document) query(ctx context.Context, loc browser.Locator, scope *element, first bool) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matcher, err := compile(loc)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, browser.ErrSessionClosed
	}
	if d.doc == nil {
		return nil, nil
	}

	var sel *goquery.Selection
	if scope == nil {
		sel = d.doc.Selection
	} else {
		if scope.gen != d.generation {
			return nil, browser.ErrStaleElement
		}
		sel = d.doc.FindNodes(scope.node)
	}

	found := sel.FindMatcher(matcher)
	if first {
		found = found.First()
	}
	out := make([]browser.Element, 0, found.Length())
	for _, n := range found.Nodes {
		out = append(out, &element{doc: d, gen: d.generation, node: n})
	}
	return out, nil
}

func compile(loc browser.Locator) (goquery.Matcher, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	css, err := loc.CSS()
	if err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", browser.ErrInvalidLocator, loc, err)
	}
	return sel, nil
}

// check reports whether a node from generation gen may still be read.
func (d *Document) check(gen uint64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return browser.ErrSessionClosed
	}
	if gen != d.generation {
		return browser.ErrStaleElement
	}
	return nil
}

var _ browser.SearchContext = (*Document)(nil)
var _ browser.Subtree = (*element)(nil)

func isElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}
