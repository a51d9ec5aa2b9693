// Package cdp implements browser.SearchContext over the Chrome DevTools
// Protocol with chromedp, for running finders against a live page.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	cdpnode "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
)

// runner is the slice of DevTools traffic the adapter depends on.
type runner interface {
	// query returns the nodes matching sel, under from when it is non-nil.
	query(ctx context.Context, sel string, xpath bool, from *cdpnode.Node) ([]*cdpnode.Node, error)
	// call invokes fn with this bound to node and returns the JSON result.
	call(ctx context.Context, node *cdpnode.Node, fn string, args ...any) ([]byte, error)
	navigate(ctx context.Context, url string) error
	title(ctx context.Context) (string, error)
}

// Session is a Chrome tab. It is safe for concurrent use.
type Session struct {
	cfg    Config
	run    runner
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
	tabCtx context.Context
	close  func() error
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Connect launches Chrome, or attaches to cfg.RemoteURL, and opens a tab.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chrome config: %w", err)
	}
	s := &Session{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logf(logging.LevelDebug)),
		chromedp.WithErrorf(s.logf(logging.LevelWarn)),
	)

	// The first Run starts the browser; its context must outlive the
	// connect timeout, so the timeout cancels the tab instead.
	timer := time.AfterFunc(cfg.ConnectTimeout, tabCancel)
	err := chromedp.Run(tabCtx)
	if !timer.Stop() && err == nil {
		err = context.DeadlineExceeded
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	s.tabCtx = tabCtx
	s.run = chromeRunner{}
	s.close = func() error {
		err := chromedp.Cancel(tabCtx)
		allocCancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	s.logger.Info(logging.CategoryAdapter, "cdp.connected", "chrome session ready", map[string]any{
		"remote":   cfg.RemoteURL != "",
		"headless": !cfg.Headful,
	})
	return s, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	for name, value := range cfg.Flags {
		opts = append(opts, chromedp.Flag(name, flagValue(value)))
	}
	return opts
}

// flagValue turns "true"/"false" into booleans so chromedp can add or drop
// a bare switch.
func flagValue(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

func (s *Session) logf(level logging.Level) func(string, ...any) {
	return func(format string, args ...any) {
		s.logger.Log(logging.Event{
			Level:     level,
			Category:  logging.CategoryAdapter,
			EventType: "cdp.log",
			Message:   fmt.Sprintf(format, args...),
		})
	}
}

// Navigate loads url in the tab and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, cancel, err := s.operation(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := s.run.navigate(ctx, url); err != nil {
		return s.mapError(ctx, "navigate", err)
	}
	s.logger.Debug(logging.CategoryAdapter, "cdp.navigated", "page loaded", map[string]any{"url": url})
	return nil
}

// Title returns the current page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	ctx, cancel, err := s.operation(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	title, err := s.run.title(ctx)
	if err != nil {
		return "", s.mapError(ctx, "title", err)
	}
	return title, nil
}

// FindElement returns the first element at loc in the page.
func (s *Session) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	return s.findFirst(ctx, loc, nil)
}

// FindElements returns every element at loc in the page.
func (s *Session) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return s.findAll(ctx, loc, nil)
}

// Close closes the tab and, when it was launched by Connect, the browser.
// Calling it more than once is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closeFn := s.close
	s.mu.Unlock()

	if closeFn == nil {
		return nil
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	s.logger.Info(logging.CategoryAdapter, "cdp.closed", "chrome session closed", nil)
	return nil
}

func (s *Session) findFirst(ctx context.Context, loc browser.Locator, from *element) (browser.Element, error) {
	found, err := s.findAll(ctx, loc, from)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, loc)
	}
	return found[0], nil
}

func (s *Session) findAll(ctx context.Context, loc browser.Locator, from *element) ([]browser.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	sel, xpath, err := selector(loc)
	if err != nil {
		return nil, err
	}
	if xpath && from != nil {
		return nil, fmt.Errorf("%w: xpath is not supported below an element", browser.ErrUnsupportedLocator)
	}

	ctx, cancel, err := s.operation(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var scope *cdpnode.Node
	if from != nil {
		scope = from.node
	}
	nodes, err := s.run.query(ctx, sel, xpath, scope)
	if err != nil {
		return nil, s.mapError(ctx, "find "+loc.String(), err)
	}
	found := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		found = append(found, &element{session: s, node: n})
	}
	return found, nil
}

func selector(loc browser.Locator) (string, bool, error) {
	if loc.Strategy == browser.StrategyXPath {
		return loc.Value, true, nil
	}
	css, err := loc.CSS()
	return css, false, err
}

// operation derives a context that runs on the tab, ends with ctx and is
// bounded by the operation timeout.
func (s *Session) operation(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	tabCtx := s.tabCtx
	s.mu.Unlock()
	if closed {
		return nil, nil, browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if tabCtx == nil {
		tabCtx = context.Background()
	}

	opCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	if s.cfg.OperationTimeout > 0 {
		var timeoutCancel context.CancelFunc
		opCtx, timeoutCancel = context.WithTimeout(opCtx, s.cfg.OperationTimeout)
		return opCtx, func() { timeoutCancel(); stop(); cancel() }, nil
	}
	return opCtx, func() { stop(); cancel() }, nil
}

// mapError classifies a DevTools failure. The caller's cancellation is
// reported as-is; a dead tab becomes ErrSessionClosed.
func (s *Session) mapError(opCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()
	if tabCtx != nil && tabCtx.Err() != nil {
		return fmt.Errorf("%s: %w", op, browser.ErrSessionClosed)
	}
	if errors.Is(err, context.DeadlineExceeded) && opCtx.Err() != nil {
		return browser.WrapDriverError("timeout", op+" timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return classify(op, err)
}
