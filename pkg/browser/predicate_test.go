package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubElement struct {
	tag      string
	text     string
	attrs    map[string]string
	hidden   bool
	disabled bool
	err      error
}

func (e *stubElement) TagName() (string, error) { return e.tag, e.err }
func (e *stubElement) Text() (string, error)    { return e.text, e.err }
func (e *stubElement) IsDisplayed() (bool, error) {
	return !e.hidden, e.err
}
func (e *stubElement) IsEnabled() (bool, error) {
	return !e.disabled, e.err
}
func (e *stubElement) Attribute(name string) (string, bool, error) {
	if e.err != nil {
		return "", false, e.err
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func TestHasClassList(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		classes []string
		want    bool
	}{
		{"all present", "row  selected active", []string{"row", "active"}, true},
		{"one missing", "row selected", []string{"row", "active"}, false},
		{"empty list with request", "   ", []string{"row"}, false},
		{"empty list no request", "", nil, true},
		{"no request", "row", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasClassList(tt.list, tt.classes...))
		})
	}
}

func matched(t *testing.T, p Predicate, el Element) bool {
	t.Helper()
	ok, err := p(el)
	require.NoError(t, err)
	return ok
}

func TestBuiltinPredicates(t *testing.T) {
	el := &stubElement{tag: "button", attrs: map[string]string{"class": "btn primary", "data-id": "7"}}

	assert.True(t, matched(t, Always, nil))
	assert.True(t, matched(t, IsVisible, el))
	assert.True(t, matched(t, IsEnabled, el))
	assert.True(t, matched(t, HasAttribute("data-id"), el))
	assert.False(t, matched(t, HasAttribute("href"), el))
	assert.True(t, matched(t, HasClass("btn"), el))
	assert.False(t, matched(t, HasClass("btn", "danger"), el))

	assert.False(t, matched(t, IsVisible, nil))
	assert.False(t, matched(t, IsEnabled, nil))
	assert.False(t, matched(t, HasAttribute("x"), nil))

	hidden := &stubElement{hidden: true, disabled: true}
	assert.False(t, matched(t, IsVisible, hidden))
	assert.False(t, matched(t, IsEnabled, hidden))
}

func TestPredicatesReturnReadErrors(t *testing.T) {
	el := &stubElement{err: ErrStaleElement}
	for name, p := range map[string]Predicate{
		"visible":   IsVisible,
		"enabled":   IsEnabled,
		"attribute": HasAttribute("class"),
		"class":     HasClass("row"),
		"and":       And(Always, IsVisible),
		"not":       Not(IsVisible),
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := p(el)
			assert.ErrorIs(t, err, ErrStaleElement)
			assert.False(t, ok)
		})
	}
}

func TestAndNotOrAlways(t *testing.T) {
	el := &stubElement{attrs: map[string]string{"class": "row"}}

	assert.True(t, matched(t, And(IsVisible, nil, HasClass("row")), el))
	assert.False(t, matched(t, And(IsVisible, HasClass("col")), el))
	assert.True(t, matched(t, And(), el))
	assert.False(t, matched(t, Not(IsVisible), el))
	assert.False(t, matched(t, Not(nil), el))
	assert.True(t, matched(t, OrAlways(nil), el))
}

func TestAnd_StopsAtFirstRejection(t *testing.T) {
	calls := 0
	counting := func(Element) (bool, error) {
		calls++
		return true, nil
	}
	never := func(Element) (bool, error) { return false, nil }

	assert.False(t, matched(t, And(never, counting), &stubElement{}))
	assert.Zero(t, calls)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"no error", nil, nil},
		{"no such element is a rejection", ErrNoSuchElement, nil},
		{"driver no such element is a rejection", WrapDriverError("no_such_element", "gone", nil), nil},
		{"stale is returned", ErrStaleElement, ErrStaleElement},
		{"connection loss is returned", ErrConnectionLost, ErrConnectionLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Matches(IsVisible, &stubElement{err: tt.err})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.err == nil, ok)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, ok)
		})
	}
	ok, err := Matches(nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTrimmedText(t *testing.T) {
	text, err := TrimmedText(&stubElement{text: "  Total: 4 \n"})
	require.NoError(t, err)
	assert.Equal(t, "Total: 4", text)

	_, err = TrimmedText(&stubElement{err: ErrStaleElement})
	assert.True(t, errors.Is(err, ErrStaleElement))
}
