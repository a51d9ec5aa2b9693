package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/config"
	"github.com/odvcencio/crescent/pkg/wait"
)

// commonOptions are the flags shared by every lookup command.
type commonOptions struct {
	configPath string

	file   string
	url    string
	chrome bool
	watch  bool

	by        string
	timeout   time.Duration
	interval  time.Duration
	minStable time.Duration
	latency   float64
	when      string

	logDir      string
	logLevel    string
	metricsAddr string
	natsURL     string
	trace       bool
	json        bool
	text        bool

	set map[string]bool
}

func bindCommonFlags(fs *flag.FlagSet, withSource bool) *commonOptions {
	opts := &commonOptions{}
	fs.StringVar(&opts.configPath, "config", "", "Config file (default ~/.crescent/config.yaml then ./.crescent.yaml)")
	if withSource {
		fs.StringVar(&opts.file, "file", "", "Read HTML from a file, or - for stdin")
		fs.StringVar(&opts.url, "url", "", "Fetch the page over HTTP, or navigate to it with --chrome")
		fs.BoolVar(&opts.chrome, "chrome", false, "Query a live Chrome tab over the DevTools protocol")
		fs.BoolVar(&opts.watch, "watch", false, "Reload --file whenever it changes on disk")
		fs.StringVar(&opts.by, "by", "css", "Locator strategy: css, id, name, tag or xpath")
		fs.StringVar(&opts.when, "when", "", `Predicate expression, e.g. 'visible() && hasClass("ready")'`)
		fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /events on this address while running")
		fs.BoolVar(&opts.trace, "trace", false, "Write OpenTelemetry spans to stderr")
		fs.StringVar(&opts.natsURL, "nats-url", "", "Publish poll events to this NATS server")
	}
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall timeout before latency scaling (default site max_app_wait)")
	fs.DurationVar(&opts.interval, "interval", 0, "Polling interval (default min(timeout/4, 500ms))")
	fs.DurationVar(&opts.minStable, "min-stable", 0, "Stability window (default 2x interval)")
	fs.Float64Var(&opts.latency, "latency", 0, "Latency factor applied to every duration")
	fs.StringVar(&opts.logDir, "log-dir", "", "Write JSONL logs under this directory instead of stderr")
	fs.StringVar(&opts.logLevel, "log-level", "", "Minimum log level: debug, info, warn or error")
	fs.BoolVar(&opts.json, "json", false, "Force JSON output")
	fs.BoolVar(&opts.text, "text", false, "Force text output")
	return opts
}

// parse parses args and records which flags were given explicitly.
func (o *commonOptions) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError(err)
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if o.json && o.text {
		return usageError(errors.New("--json and --text are mutually exclusive"))
	}
	if o.file != "" && o.url != "" && !o.chrome {
		return usageError(errors.New("--file and --url are mutually exclusive"))
	}
	if o.file != "" && o.chrome {
		return usageError(errors.New("--file cannot be combined with --chrome"))
	}
	if o.watch && (o.file == "" || o.file == "-") {
		return usageError(errors.New("--watch requires --file with a path"))
	}
	return nil
}

// loadConfig loads the config file and folds the flags into it.
func (o *commonOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.set["timeout"] && o.timeout != 0 {
		cfg.Wait.Timeout = o.timeout
	}
	if o.set["interval"] {
		cfg.Wait.Interval = o.interval
	}
	if o.set["min-stable"] {
		cfg.Wait.MinStable = o.minStable
	}
	if o.set["latency"] {
		cfg.Site.LatencyFactor = o.latency
	}
	if o.set["when"] {
		cfg.Wait.Predicate = o.when
	}
	if o.set["log-dir"] {
		cfg.Logging.Dir = o.logDir
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
	if o.set["metrics-addr"] {
		cfg.Telemetry.MetricsAddr = o.metricsAddr
	}
	if o.set["nats-url"] {
		cfg.Telemetry.NATS.URL = o.natsURL
	}
	if o.set["trace"] {
		cfg.Telemetry.Tracing = o.trace
	}
	if o.url != "" {
		cfg.Site.URI = o.url
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// policy builds the wait policy. An explicit --timeout=0 means a single
// attempt regardless of max_app_wait.
func (o *commonOptions) policy(cfg *config.Config) (wait.Policy, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return wait.Policy{}, usageError(err)
	}
	if o.set["timeout"] && o.timeout == 0 {
		policy = policy.WithTimeout(0).WithMinStable(0)
	}
	if err := policy.Validate(); err != nil {
		return wait.Policy{}, usageError(fmt.Errorf("invalid wait policy: %w", err))
	}
	return policy, nil
}

func (o *commonOptions) locator(fs *flag.FlagSet) (browser.Locator, error) {
	if fs.NArg() != 1 {
		return browser.Locator{}, usageError(fmt.Errorf("%s requires exactly one locator argument", fs.Name()))
	}
	loc, err := browser.ParseLocator(o.by, fs.Arg(0))
	if err != nil {
		return browser.Locator{}, usageError(err)
	}
	return loc, nil
}

func (c *cli) jsonOutput(o *commonOptions) bool {
	switch {
	case o.json:
		return true
	case o.text:
		return false
	default:
		return c.isTTY == nil || !c.isTTY()
	}
}
