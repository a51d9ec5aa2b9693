package dom

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/crescent/pkg/browser"
)

func TestWatchFile_ReloadsOnWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<ul><li class="row">a</li></ul>`), 0o644))

	doc, err := WatchFile(ctx, path)
	require.NoError(t, err)
	defer doc.Close()

	rows, err := doc.FindElements(ctx, browser.ByCSS("li.row"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	first := rows[0]

	require.NoError(t, os.WriteFile(path, []byte(`<ul><li class="row">a</li><li class="row">b</li></ul>`), 0o644))

	require.Eventually(t, func() bool {
		rows, err := doc.FindElements(ctx, browser.ByCSS("li.row"))
		return err == nil && len(rows) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, doc.Generation(), uint64(2))

	_, err = first.Text()
	assert.ErrorIs(t, err, browser.ErrStaleElement)
}

func TestWatchFile_ReloadsOnReplace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<p class="spinner">loading</p>`), 0o644))

	doc, err := WatchFile(ctx, path)
	require.NoError(t, err)
	defer doc.Close()

	tmp := filepath.Join(dir, "page.html.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`<p class="done">ok</p>`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		found, err := doc.FindElements(ctx, browser.ByCSS(".spinner"))
		return err == nil && len(found) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchFile_Missing(t *testing.T) {
	_, err := WatchFile(context.Background(), filepath.Join(t.TempDir(), "none.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
