// Package site holds per-session state shared by finders: the application
// URI, the default search root, the maximum time the application is allowed
// to take to update the page, and the driver latency factor applied to every
// wait duration.
package site

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/telemetry"
	"github.com/odvcencio/crescent/pkg/wait"
)

const (
	DefaultMaxAppWait    = 2000 * time.Millisecond
	DefaultLatencyFactor = 1.0
)

var (
	ErrNegativeLatency = errors.New("latency factor must be zero or positive")
	ErrNegativeWait    = errors.New("max app wait must be zero or positive")
	ErrInvalidURI      = errors.New("invalid site uri")
)

// Site is safe for concurrent use. Finders read the latency factor each time
// they scale a policy, so a change applies to the next invocation.
type Site struct {
	sessionID string
	uri       *url.URL

	mu         sync.RWMutex
	maxAppWait time.Duration
	latency    float64
	root       browser.SearchContext

	hub    *telemetry.Hub
	logger *logging.Logger
}

// Option configures a Site.
type Option func(*Site)

// WithMaxAppWait sets the application update timeout.
func WithMaxAppWait(d time.Duration) Option {
	return func(s *Site) { s.maxAppWait = d }
}

// WithLatencyFactor sets the initial latency factor.
func WithLatencyFactor(f float64) Option {
	return func(s *Site) { s.latency = f }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Site) { s.sessionID = id }
}

func WithTelemetry(hub *telemetry.Hub) Option {
	return func(s *Site) { s.hub = hub }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Site) { s.logger = logger }
}

// New creates a site for rawURI. An empty URI is allowed for sites that serve
// local documents.
func New(rawURI string, opts ...Option) (*Site, error) {
	s := &Site{
		sessionID:  uuid.NewString(),
		maxAppWait: DefaultMaxAppWait,
		latency:    DefaultLatencyFactor,
	}
	if rawURI != "" {
		u, err := url.Parse(rawURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		s.uri = u
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.latency < 0 {
		return nil, fmt.Errorf("%w, got %v", ErrNegativeLatency, s.latency)
	}
	if s.maxAppWait < 0 {
		return nil, fmt.Errorf("%w, got %s", ErrNegativeWait, s.maxAppWait)
	}
	return s, nil
}

// URI returns a copy of the site URI, or nil.
func (s *Site) URI() *url.URL {
	if s.uri == nil {
		return nil
	}
	u := *s.uri
	return &u
}

func (s *Site) SessionID() string { return s.sessionID }

func (s *Site) MaxAppWait() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxAppWait
}

// SetMaxAppWait changes the application update timeout.
func (s *Site) SetMaxAppWait(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w, got %s", ErrNegativeWait, d)
	}
	s.mu.Lock()
	s.maxAppWait = d
	s.mu.Unlock()
	return nil
}

// LatencyFactor returns the relative driver latency. 1.0 means test, browser
// and application share a host.
func (s *Site) LatencyFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latency
}

// SetLatencyFactor changes the latency factor for subsequent waits.
func (s *Site) SetLatencyFactor(f float64) error {
	if f < 0 {
		return fmt.Errorf("%w, got %v", ErrNegativeLatency, f)
	}
	s.mu.Lock()
	previous := s.latency
	s.latency = f
	s.mu.Unlock()

	if previous != f {
		s.hub.Publish(telemetry.Event{
			Type:      telemetry.EventLatencyChanged,
			SessionID: s.sessionID,
			Data:      map[string]any{"previous": previous, "latency": f},
		})
		_ = s.logger.Info(logging.CategorySite, string(telemetry.EventLatencyChanged), "latency factor changed",
			map[string]any{"previous": previous, "latency": f})
	}
	return nil
}

// RequestWait returns the effective duration of d for requests to this site:
// round(ms × latency) milliseconds.
func (s *Site) RequestWait(d time.Duration) time.Duration {
	return wait.ScaleDuration(d, s.LatencyFactor())
}

// DefaultPolicy returns a wait policy bounded by the max app wait.
func (s *Site) DefaultPolicy() wait.Policy {
	return wait.New(s.MaxAppWait())
}

// Enter makes root the default search context. Any previous root is replaced
// without being closed.
func (s *Site) Enter(root browser.SearchContext) {
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()

	s.hub.Publish(telemetry.Event{Type: telemetry.EventSiteEntered, SessionID: s.sessionID})
	_ = s.logger.Debug(logging.CategorySite, string(telemetry.EventSiteEntered), "site entered", s.details())
}

// Root returns the current default search context, or nil outside a session.
func (s *Site) Root() browser.SearchContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Exit ends access to the site. A root implementing io.Closer is closed; the
// root is cleared even when Close fails.
func (s *Site) Exit() error {
	s.mu.Lock()
	root := s.root
	s.root = nil
	s.mu.Unlock()

	if root == nil {
		return nil
	}
	s.hub.Publish(telemetry.Event{Type: telemetry.EventSiteExited, SessionID: s.sessionID})
	_ = s.logger.Debug(logging.CategorySite, string(telemetry.EventSiteExited), "site exited", s.details())

	if c, ok := root.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close site root: %w", err)
		}
	}
	return nil
}

func (s *Site) details() map[string]any {
	d := map[string]any{
		"max_app_wait": s.MaxAppWait().String(),
		"latency":      s.LatencyFactor(),
	}
	if s.uri != nil {
		d["uri"] = s.uri.String()
	}
	return d
}

func (s *Site) String() string {
	uri := ""
	if s.uri != nil {
		uri = s.uri.String()
	}
	return fmt.Sprintf("Site[uri=%s, maxAppWait=%s, latency=%.2f]", uri, s.MaxAppWait(), s.LatencyFactor())
}
