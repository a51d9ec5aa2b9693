package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/browser/adapters/cdp"
	"github.com/odvcencio/crescent/pkg/browser/adapters/dom"
	"github.com/odvcencio/crescent/pkg/config"
	"github.com/odvcencio/crescent/pkg/finder"
	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/observability"
	"github.com/odvcencio/crescent/pkg/site"
	"github.com/odvcencio/crescent/pkg/telemetry"
)

const instrumentationName = "github.com/odvcencio/crescent/cmd/crescent"

// session wires one command run: the site and its root, the finder, and the
// logging, metrics and tracing around them.
type session struct {
	cfg     *config.Config
	site    *site.Site
	finder  *finder.Finder
	logger  *logging.Logger
	hub     *telemetry.Hub
	metrics *finder.Metrics
	server  *observability.Server
	tracer  *observability.TracerProvider

	nats      *nats.Conn
	forwarder *telemetry.Forwarder
}

func (c *cli) newSession(ctx context.Context, cfg *config.Config, withSource bool, o *commonOptions) (*session, error) {
	s := &session{cfg: cfg, hub: telemetry.NewHub()}
	sessionID := uuid.NewString()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, usageError(err)
	}
	if dir := config.ResolveLogDir(cfg); dir != "" {
		logger, err := logging.NewLogger(dir, sessionID)
		if err != nil {
			return nil, err
		}
		s.logger = logger
	} else {
		s.logger = logging.NewWriterLogger(c.stderr)
	}
	s.logger.SetSessionID(sessionID)
	s.logger.SetMinLevel(level)

	opts := append(cfg.SiteOptions(),
		site.WithSessionID(sessionID),
		site.WithTelemetry(s.hub),
		site.WithLogger(s.logger),
	)
	s.site, err = site.New(cfg.Site.URI, opts...)
	if err != nil {
		s.close()
		return nil, usageError(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = finder.NewMetrics(reg)
	if addr := strings.TrimSpace(cfg.Telemetry.MetricsAddr); addr != "" {
		s.server = observability.NewServer(observability.ServerConfig{
			Addr:        addr,
			MetricsPath: cfg.Telemetry.MetricsPath,
			Gatherer:    reg,
			Hub:         s.hub,
			Logger:      s.logger,
		})
	}

	if cfg.Telemetry.NATS.URL != "" {
		s.nats, err = telemetry.ConnectNATS(cfg.Telemetry.NATS)
		if err != nil {
			s.close()
			return nil, err
		}
		s.forwarder = telemetry.NewForwarder(s.hub, s.nats, cfg.Telemetry.NATS.SubjectPrefix, func(e telemetry.Event, err error) {
			_ = s.logger.Warn(logging.CategoryCLI, "nats.publish_failed", err.Error(), map[string]any{"event": string(e.Type)})
		})
	}

	finderOpts := []finder.Option{
		finder.WithTelemetry(s.hub),
		finder.WithLogger(s.logger),
		finder.WithMetrics(s.metrics),
	}
	if cfg.Telemetry.Tracing {
		s.tracer, err = observability.NewTracerProvider("crescent", version, c.stderr, false)
		if err != nil {
			s.close()
			return nil, err
		}
		finderOpts = append(finderOpts, finder.WithTracer(s.tracer.Tracer(instrumentationName)))
	}
	s.finder = finder.New(s.site, finderOpts...)

	if withSource {
		root, err := c.openSource(ctx, cfg, o, s.logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.site.Enter(root)
	}
	return s, nil
}

// openSource builds the search root named by the source flags.
func (c *cli) openSource(ctx context.Context, cfg *config.Config, o *commonOptions, logger *logging.Logger) (browser.SearchContext, error) {
	target := strings.TrimSpace(cfg.Site.URI)
	switch {
	case o.chrome:
		sess, err := cdp.Connect(ctx, cfg.Chrome.CDP(), cdp.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if target != "" {
			if err := sess.Navigate(ctx, target); err != nil {
				_ = sess.Close()
				return nil, fmt.Errorf("navigate %s: %w", target, err)
			}
		}
		return sess, nil
	case o.file == "-":
		return dom.NewDocument(os.Stdin, dom.WithSource("stdin"), dom.WithLogger(logger))
	case o.watch:
		doc, err := dom.WatchFile(ctx, o.file, dom.WithLogger(logger))
		if err != nil {
			return nil, usageError(err)
		}
		return doc, nil
	case o.file != "":
		f, err := os.Open(o.file)
		if err != nil {
			return nil, usageError(err)
		}
		defer f.Close()
		return dom.NewDocument(f, dom.WithSource(o.file), dom.WithLogger(logger))
	case target != "":
		return dom.Fetch(ctx, nil, target, dom.WithLogger(logger))
	default:
		return nil, usageError(errors.New("one of --file, --url or --chrome is required"))
	}
}

// run executes fn, serving and exporting telemetry alongside it when
// configured. Both stop once fn returns.
func (s *session) run(ctx context.Context, fn func(context.Context) error) error {
	if s.server == nil && s.forwarder == nil {
		return fn(ctx)
	}
	if s.server != nil {
		if err := s.server.Start(); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	cmdCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	if s.server != nil {
		g.Go(func() error { return s.server.Serve(cmdCtx) })
	}
	if s.forwarder != nil {
		g.Go(func() error { return s.forwarder.Run(cmdCtx) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(cmdCtx)
	})
	return g.Wait()
}

func (s *session) close() error {
	var errs []error
	if s.site != nil {
		if err := s.site.Exit(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	s.hub.Close()
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	if err := s.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
