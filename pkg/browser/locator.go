package browser

import (
	"fmt"
	"strings"
)

// Strategy identifies how a locator value is interpreted.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyID    Strategy = "id"
	StrategyName  Strategy = "name"
	StrategyTag   Strategy = "tag"
	StrategyXPath Strategy = "xpath"
)

// Locator identifies zero or more elements within a search context.
type Locator struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Value    string   `json:"value" yaml:"value"`
}

func ByCSS(selector string) Locator { return Locator{Strategy: StrategyCSS, Value: selector} }
func ByID(id string) Locator        { return Locator{Strategy: StrategyID, Value: id} }
func ByName(name string) Locator    { return Locator{Strategy: StrategyName, Value: name} }
func ByTag(tag string) Locator      { return Locator{Strategy: StrategyTag, Value: tag} }
func ByXPath(expr string) Locator   { return Locator{Strategy: StrategyXPath, Value: expr} }

// ParseLocator builds a locator from a strategy name and value. An empty
// strategy means CSS.
func ParseLocator(strategy, value string) (Locator, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Locator{}, fmt.Errorf("%w: empty locator value", ErrInvalidLocator)
	}
	switch s := Strategy(strings.ToLower(strings.TrimSpace(strategy))); s {
	case "", StrategyCSS:
		return ByCSS(value), nil
	case StrategyID, StrategyName, StrategyTag, StrategyXPath:
		return Locator{Strategy: s, Value: value}, nil
	default:
		return Locator{}, fmt.Errorf("%w: unknown strategy %q", ErrInvalidLocator, strategy)
	}
}

// CSS returns an equivalent CSS selector. XPath locators have none.
func (l Locator) CSS() (string, error) {
	switch l.Strategy {
	case StrategyCSS, "":
		return l.Value, nil
	case StrategyID:
		return fmt.Sprintf("[id=%q]", l.Value), nil
	case StrategyName:
		return fmt.Sprintf("[name=%q]", l.Value), nil
	case StrategyTag:
		return l.Value, nil
	default:
		return "", fmt.Errorf("%w: %s has no css form", ErrUnsupportedLocator, l)
	}
}

// Validate reports whether the locator can be used at all.
func (l Locator) Validate() error {
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("%w: empty locator value", ErrInvalidLocator)
	}
	switch l.Strategy {
	case "", StrategyCSS, StrategyID, StrategyName, StrategyTag, StrategyXPath:
		return nil
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidLocator, l.Strategy)
	}
}

func (l Locator) String() string {
	strategy := l.Strategy
	if strategy == "" {
		strategy = StrategyCSS
	}
	return fmt.Sprintf("by.%s(%q)", strategy, l.Value)
}
