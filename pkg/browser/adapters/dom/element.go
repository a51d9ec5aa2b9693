package dom

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/odvcencio/crescent/pkg/browser"
)

// element is a node handle tied to the document generation it was found in.
type element struct {
	doc  *Document
	gen  uint64
	node *html.Node
}

func (e *element) TagName() (string, error) {
	if err := e.doc.check(e.gen); err != nil {
		return "", err
	}
	return strings.ToLower(e.node.Data), nil
}

// Text returns the whitespace-collapsed text of the element, leaving out
// hidden descendants.
func (e *element) Text() (string, error) {
	if err := e.doc.check(e.gen); err != nil {
		return "", err
	}
	if hidden(e.node) {
		return "", nil
	}
	var b strings.Builder
	collectText(&b, e.node)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func collectText(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if selfHidden(c) {
				continue
			}
			if c.Data == "br" {
				b.WriteByte(' ')
			}
			collectText(b, c)
			b.WriteByte(' ')
		}
	}
}

func (e *element) Attribute(name string) (string, bool, error) {
	if err := e.doc.check(e.gen); err != nil {
		return "", false, err
	}
	v, ok := attr(e.node, name)
	return v, ok, nil
}

func (e *element) IsDisplayed() (bool, error) {
	if err := e.doc.check(e.gen); err != nil {
		return false, err
	}
	return !hidden(e.node), nil
}

func (e *element) IsEnabled() (bool, error) {
	if err := e.doc.check(e.gen); err != nil {
		return false, err
	}
	return !disabled(e.node), nil
}

// HTML renders the element's outer HTML.
func (e *element) HTML() (string, error) {
	if err := e.doc.check(e.gen); err != nil {
		return "", err
	}
	return goquery.OuterHtml(goquery.NewDocumentFromNode(e.node).Selection)
}

func (e *element) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	els, err := e.doc.query(ctx, loc, e, true)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, browser.ErrNoSuchElement
	}
	return els[0], nil
}

func (e *element) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return e.doc.query(ctx, loc, e, false)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}
