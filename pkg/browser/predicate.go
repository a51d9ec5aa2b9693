package browser

import (
	"slices"
	"strings"
)

// Predicate decides whether a located element qualifies as a match. Read
// errors are returned as they are, so a poll loop can tell a stale handle
// from a lost connection.
type Predicate func(Element) (bool, error)

// Always accepts every element.
func Always(Element) (bool, error) { return true, nil }

// IsVisible accepts non-nil displayed elements.
func IsVisible(el Element) (bool, error) {
	if el == nil {
		return false, nil
	}
	ok, err := el.IsDisplayed()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// IsEnabled accepts non-nil enabled elements.
func IsEnabled(el Element) (bool, error) {
	if el == nil {
		return false, nil
	}
	ok, err := el.IsEnabled()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// HasAttribute accepts elements carrying the named attribute.
func HasAttribute(name string) Predicate {
	return func(el Element) (bool, error) {
		if el == nil {
			return false, nil
		}
		_, ok, err := el.Attribute(name)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}

// HasClass accepts elements whose class list contains every given class.
func HasClass(classNames ...string) Predicate {
	return func(el Element) (bool, error) {
		if el == nil {
			return false, nil
		}
		classList, _, err := el.Attribute("class")
		if err != nil {
			return false, err
		}
		return HasClassList(classList, classNames...), nil
	}
}

// HasClassList reports whether a whitespace separated class list has all of
// the given classes. An empty list never satisfies a non-empty request.
func HasClassList(classList string, classNames ...string) bool {
	classes := strings.Fields(classList)
	if len(classes) == 0 && len(classNames) > 0 {
		return false
	}
	for _, name := range classNames {
		if !slices.Contains(classes, name) {
			return false
		}
	}
	return true
}

// And accepts elements satisfying every predicate, stopping at the first
// rejection or error. Nil entries are skipped.
func And(predicates ...Predicate) Predicate {
	return func(el Element) (bool, error) {
		for _, p := range predicates {
			if p == nil {
				continue
			}
			if ok, err := p(el); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Not inverts a predicate. Errors pass through uninverted.
func Not(p Predicate) Predicate {
	p = OrAlways(p)
	return func(el Element) (bool, error) {
		ok, err := p(el)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// OrAlways returns p, or Always when p is nil.
func OrAlways(p Predicate) Predicate {
	if p == nil {
		return Always
	}
	return p
}

// Matches runs p against el. An ErrNoSuchElement from a read means the element
// has nothing to report and counts as a plain rejection; every other error is
// returned for the caller to classify.
func Matches(p Predicate, el Element) (bool, error) {
	ok, err := OrAlways(p)(el)
	switch {
	case err == nil:
		return ok, nil
	case IsNoSuchElement(err):
		return false, nil
	default:
		return false, err
	}
}

// TrimmedText returns the element text without surrounding whitespace.
func TrimmedText(el Element) (string, error) {
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
