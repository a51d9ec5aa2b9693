package dom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
)

// reloadDebounce coalesces the burst of events a single save produces.
const reloadDebounce = 25 * time.Millisecond

// WatchFile loads the HTML file at path and reloads it whenever the file is
// written or replaced, until ctx ends or the document is closed. Each reload
// makes previously found elements stale.
func WatchFile(ctx context.Context, path string, opts ...Option) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	d := &Document{source: path}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.loadFile(abs); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: editors and generators often replace the file by
	// rename, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	go d.watch(ctx, watcher, abs)
	return d, nil
}

func (d *Document) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return d.Load(f)
}

func (d *Document) watch(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	debounce := time.NewTimer(0)
	<-debounce.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounce.Reset(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			_ = d.logger.Warn(logging.CategoryAdapter, "dom.watch_error", err.Error(), map[string]any{"source": d.source})
		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			err := d.loadFile(path)
			switch {
			case errors.Is(err, browser.ErrSessionClosed):
				return
			case errors.Is(err, os.ErrNotExist):
				// Mid-replace; the following create triggers another reload.
			case err != nil:
				_ = d.logger.Warn(logging.CategoryAdapter, "dom.reload_failed", err.Error(), map[string]any{"source": d.source})
			}
		}
	}
}
