package dom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/finder"
	"github.com/odvcencio/crescent/pkg/wait"
)

const page = `<!doctype html>
<html>
<head><title> Orders </title><style>.x{}</style></head>
<body>
  <main id="main">
    <form name="search">
      <input name="q" value="shoes">
      <input type="hidden" name="token" value="t">
      <button id="go" class="btn primary">Go</button>
      <fieldset disabled><input name="locked"><legend>Locked</legend></fieldset>
    </form>
    <ul class="results">
      <li class="row">Alpha <span hidden>secret</span></li>
      <li class="row" style="display: none">Beta</li>
      <li class="row"  data-state="ready">Gamma
        delta</li>
    </ul>
    <div style="visibility:hidden"><p id="ghost">boo</p></div>
  </main>
</body>
</html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseHTML(s)
	require.NoError(t, err)
	return doc
}

func TestFindElements_Strategies(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	tests := []struct {
		loc  browser.Locator
		want int
	}{
		{browser.ByCSS("li.row"), 3},
		{browser.ByID("main"), 1},
		{browser.ByName("q"), 1},
		{browser.ByTag("input"), 3},
		{browser.ByCSS("table"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			els, err := doc.FindElements(ctx, tt.loc)
			require.NoError(t, err)
			assert.Len(t, els, tt.want)
		})
	}
	assert.Equal(t, "Orders", doc.Title())
	assert.Equal(t, uint64(1), doc.Generation())
}

func TestFindElement(t *testing.T) {
	doc := mustParse(t, page)

	el, err := doc.FindElement(context.Background(), browser.ByCSS("li.row"))
	require.NoError(t, err)
	text, err := el.Text()
	require.NoError(t, err)
	assert.Equal(t, "Alpha", text, "hidden descendants are not text")

	_, err = doc.FindElement(context.Background(), browser.ByCSS("table"))
	assert.True(t, errors.Is(err, browser.ErrNoSuchElement))
	assert.True(t, browser.IsRetryable(err))
}

func TestQueryErrors(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	_, err := doc.FindElements(ctx, browser.ByXPath("//li"))
	assert.ErrorIs(t, err, browser.ErrUnsupportedLocator)

	_, err = doc.FindElements(ctx, browser.ByCSS("li[["))
	assert.ErrorIs(t, err, browser.ErrInvalidLocator)
	assert.False(t, browser.IsRetryable(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = doc.FindElements(cancelled, browser.ByCSS("li"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestElementReads(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	rows, err := doc.FindElements(ctx, browser.ByCSS("li.row"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	tag, err := rows[2].TagName()
	require.NoError(t, err)
	assert.Equal(t, "li", tag)

	text, err := rows[2].Text()
	require.NoError(t, err)
	assert.Equal(t, "Gamma delta", text)

	v, ok, err := rows[2].Attribute("DATA-STATE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ready", v)

	_, ok, err = rows[0].Attribute("data-state")
	require.NoError(t, err)
	assert.False(t, ok)

	hidden, err := rows[1].Text()
	require.NoError(t, err)
	assert.Empty(t, hidden)

	html, err := rows[2].(*element).HTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(html, `<li class="row" data-state="ready">`))
}

func TestVisibility(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	tests := []struct {
		loc     browser.Locator
		visible bool
	}{
		{browser.ByName("q"), true},
		{browser.ByName("token"), false},
		{browser.ByID("go"), true},
		{browser.ByCSS("li.row:nth-child(2)"), false},
		{browser.ByCSS("li.row span"), false},
		{browser.ByID("ghost"), false},
		{browser.ByTag("title"), false},
		{browser.ByTag("style"), false},
	}
	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			el, err := doc.FindElement(ctx, tt.loc)
			require.NoError(t, err)
			got, err := el.IsDisplayed()
			require.NoError(t, err)
			assert.Equal(t, tt.visible, got)
			matched, err := browser.IsVisible(el)
			require.NoError(t, err)
			assert.Equal(t, tt.visible, matched)
		})
	}
}

func TestParseStyle(t *testing.T) {
	got := parseStyle(" Display : NONE !important; color: red;; bogus")
	assert.Equal(t, map[string]string{"display": "none", "color": "red"}, got)
}

func TestEnabled(t *testing.T) {
	doc := mustParse(t, `<form>
		<input id="a"><input id="b" disabled>
		<fieldset disabled><div><select id="c"></select></div></fieldset>
		<div disabled><button id="d">x</button></div>
	</form>`)
	ctx := context.Background()

	for id, want := range map[string]bool{"a": true, "b": false, "c": false, "d": true} {
		el, err := doc.FindElement(ctx, browser.ByID(id))
		require.NoError(t, err, id)
		got, err := el.IsEnabled()
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestSubtreeSearch(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	ul, err := doc.FindElement(ctx, browser.ByCSS("ul.results"))
	require.NoError(t, err)
	sub, ok := ul.(browser.Subtree)
	require.True(t, ok)

	rows, err := sub.FindElements(ctx, browser.ByTag("li"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = sub.FindElement(ctx, browser.ByName("q"))
	assert.ErrorIs(t, err, browser.ErrNoSuchElement, "search is scoped to descendants")
}

func TestReloadMakesElementsStale(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	el, err := doc.FindElement(ctx, browser.ByID("go"))
	require.NoError(t, err)

	require.NoError(t, doc.SetHTML(`<button id="go">Again</button>`))
	assert.Equal(t, uint64(2), doc.Generation())

	_, err = el.Text()
	assert.ErrorIs(t, err, browser.ErrStaleElement)
	_, err = el.(browser.Subtree).FindElements(ctx, browser.ByTag("span"))
	assert.ErrorIs(t, err, browser.ErrStaleElement)
	_, err = browser.IsVisible(el)
	assert.ErrorIs(t, err, browser.ErrStaleElement)

	fresh, err := doc.FindElement(ctx, browser.ByID("go"))
	require.NoError(t, err)
	text, err := fresh.Text()
	require.NoError(t, err)
	assert.Equal(t, "Again", text)
}

func TestClose(t *testing.T) {
	doc := mustParse(t, page)
	el, err := doc.FindElement(context.Background(), browser.ByID("go"))
	require.NoError(t, err)

	require.NoError(t, doc.Close())
	_, err = doc.FindElements(context.Background(), browser.ByTag("li"))
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	_, err = el.TagName()
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	assert.ErrorIs(t, doc.SetHTML("<p></p>"), browser.ErrSessionClosed)
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			assert.Contains(t, r.Header.Get("User-Agent"), "crescent")
			fmt.Fprint(w, `<html><head><title>Orders</title></head><body><li class="row">1</li></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	doc, err := Fetch(context.Background(), server.Client(), server.URL+"/orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders", doc.Title())
	rows, err := doc.FindElements(context.Background(), browser.ByCSS(".row"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = Fetch(context.Background(), server.Client(), server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = Fetch(context.Background(), nil, "not a url")
	require.Error(t, err)

	require.NoError(t, doc.Refresh(context.Background(), server.Client(), server.URL+"/orders"))
	assert.Equal(t, uint64(2), doc.Generation())
}

// renderClock swaps the document on every sleep, simulating an application
// that re-renders between polls.
type renderClock struct {
	now    time.Time
	doc    *Document
	frames []string
	frame  int
}

func (c *renderClock) Now() time.Time { return c.now }

func (c *renderClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	if c.frame < len(c.frames) {
		_ = c.doc.SetHTML(c.frames[c.frame])
		c.frame++
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func list(n int) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<li class="row">%d</li>`, i)
	}
	b.WriteString("</ul>")
	return b.String()
}

func TestFinderOverReRenderingDocument(t *testing.T) {
	doc := mustParse(t, list(0))
	clk := &renderClock{
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		doc:    doc,
		frames: []string{list(1), list(3), list(3), list(3)},
	}
	f := finder.New(nil, finder.WithClock(clk))
	policy := wait.New(10 * time.Second).WithInterval(100 * time.Millisecond).WithMinStable(200 * time.Millisecond)

	found, err := f.FindStableSet(context.Background(), doc, browser.ByCSS("li.row"), policy)
	require.NoError(t, err)
	require.Len(t, found, 3)

	text, err := found[2].Text()
	require.NoError(t, err)
	assert.Equal(t, "2", text)

	require.NoError(t, doc.SetHTML(list(0)))
	assert.NoError(t, f.AwaitAbsence(context.Background(), doc, browser.ByCSS("li.row"), policy))
	_, err = found[0].Text()
	assert.ErrorIs(t, err, browser.ErrStaleElement)
}
