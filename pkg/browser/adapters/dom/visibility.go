package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements that never render.
var nonRendered = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Title:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Noscript: true,
}

// hidden reports whether n or one of its ancestors is hidden. Without a
// layout engine only markup is considered: the hidden attribute, inline
// display:none or visibility:hidden, hidden inputs and non-rendered tags.
func hidden(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if isElement(p) && selfHidden(p) {
			return true
		}
	}
	return false
}

func selfHidden(n *html.Node) bool {
	if nonRendered[n.DataAtom] {
		return true
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if n.DataAtom == atom.Input {
		if typ, _ := attr(n, "type"); strings.EqualFold(strings.TrimSpace(typ), "hidden") {
			return true
		}
	}
	if style, ok := attr(n, "style"); ok {
		decl := parseStyle(style)
		if decl["display"] == "none" || decl["visibility"] == "hidden" || decl["visibility"] == "collapse" {
			return true
		}
	}
	return false
}

// parseStyle splits an inline style into lowercased property values. Later
// declarations win and !important is dropped.
func parseStyle(style string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strings.ToLower(value)), "!important"))
		out[strings.TrimSpace(strings.ToLower(name))] = value
	}
	return out
}

var disableable = map[atom.Atom]bool{
	atom.Button:   true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Textarea: true,
	atom.Option:   true,
	atom.Optgroup: true,
	atom.Fieldset: true,
}

// disabled reports whether a control is disabled directly or through an
// ancestor fieldset.
func disabled(n *html.Node) bool {
	if disableable[n.DataAtom] {
		if _, ok := attr(n, "disabled"); ok {
			return true
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.DataAtom == atom.Fieldset {
			if _, ok := attr(p, "disabled"); ok {
				return true
			}
		}
	}
	return false
}
