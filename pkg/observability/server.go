package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig configures the telemetry listener.
type ServerConfig struct {
	Addr        string
	MetricsPath string // defaults to /metrics
	Gatherer    prometheus.Gatherer
	Hub         *telemetry.Hub
	Logger      *logging.Logger
}

// Server exposes /metrics, /healthz and, with a hub, /events.
type Server struct {
	cfg      ServerConfig
	router   chi.Router
	events   *EventStream
	listener net.Listener
	http     *http.Server
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get(cfg.MetricsPath, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Hub != nil {
		s.events = NewEventStream(cfg.Hub, cfg.Logger)
		router.Get("/events", s.events.HandleWebSocket)
	}
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address. Addr returns the bound address afterwards,
// which matters for ":0".
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Serve runs until ctx ends, then shuts down gracefully. Start is called if
// it has not been.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Start(); err != nil {
			return err
		}
	}
	s.cfg.Logger.Info(logging.CategoryCLI, "telemetry.listening", "telemetry server listening", map[string]any{"addr": s.Addr()})

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.http.Serve(s.listener) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telemetry server: %w", err)
	case <-ctx.Done():
	}

	if s.events != nil {
		s.events.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("telemetry server shutdown: %w", err)
	}
	return nil
}
