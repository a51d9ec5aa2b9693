package browser

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// predicateEnv is the expr-lang environment a compiled predicate runs
// against. Every accessor is a function so that element reads only happen for
// the parts of the element an expression actually touches.
type predicateEnv struct {
	Tag      func() string        `expr:"tag"`
	Text     func() string        `expr:"text"`
	Visible  func() bool          `expr:"visible"`
	Enabled  func() bool          `expr:"enabled"`
	Attr     func(string) string  `expr:"attr"`
	HasAttr  func(string) bool    `expr:"hasAttr"`
	HasClass func(...string) bool `expr:"hasClass"`
}

// CompilePredicate compiles a boolean expr-lang expression into a Predicate.
//
//	visible() && hasClass("row", "loaded")
//	attr("data-state") == "ready" && !hasAttr("disabled")
//	tag() == "li" && text() contains "Invoice"
//
// An empty expression compiles to Always. The first element read error
// during evaluation is returned in place of the result.
func CompilePredicate(expression string) (Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return Always, nil
	}
	program, err := expr.Compile(expression, expr.Env(predicateEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", expression, err)
	}
	return func(el Element) (bool, error) {
		if el == nil {
			return false, nil
		}
		return runPredicate(program, el)
	}, nil
}

func runPredicate(program *vm.Program, el Element) (bool, error) {
	var readErr error
	keep := func(err error) {
		if err != nil && readErr == nil {
			readErr = err
		}
	}
	env := predicateEnv{
		Tag: func() string {
			tag, err := el.TagName()
			keep(err)
			return strings.ToLower(tag)
		},
		Text: func() string {
			text, err := TrimmedText(el)
			keep(err)
			return text
		},
		Visible: func() bool {
			ok, err := el.IsDisplayed()
			keep(err)
			return ok
		},
		Enabled: func() bool {
			ok, err := el.IsEnabled()
			keep(err)
			return ok
		},
		Attr: func(name string) string {
			value, _, err := el.Attribute(name)
			keep(err)
			return value
		},
		HasAttr: func(name string) bool {
			_, ok, err := el.Attribute(name)
			keep(err)
			return ok
		},
		HasClass: func(names ...string) bool {
			classList, _, err := el.Attribute("class")
			keep(err)
			return HasClassList(classList, names...)
		},
	}
	out, err := expr.Run(program, env)
	if readErr != nil {
		return false, readErr
	}
	if err != nil {
		return false, fmt.Errorf("evaluate predicate: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
