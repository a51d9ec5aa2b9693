package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/browser/adapters/cdp"
	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/site"
	"github.com/odvcencio/crescent/pkg/telemetry"
	"github.com/odvcencio/crescent/pkg/wait"
)

// Default configuration values exported for documentation and validation
const (
	DefaultMaxAppWait    = site.DefaultMaxAppWait
	DefaultLatencyFactor = site.DefaultLatencyFactor
	DefaultLogLevel      = logging.LevelWarn
	DefaultMetricsPath   = "/metrics"

	userConfigDir     = ".crescent"
	userConfigFile    = "config.yaml"
	projectConfigFile = ".crescent.yaml"
)

// Config represents the complete crescent configuration
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Wait      WaitConfig      `yaml:"wait"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Chrome    ChromeConfig    `yaml:"chrome"`
}

// SiteConfig describes the application under test.
type SiteConfig struct {
	URI           string        `yaml:"uri"`
	MaxAppWait    time.Duration `yaml:"max_app_wait"`
	LatencyFactor float64       `yaml:"latency_factor"`
}

// WaitConfig holds the default policy. Zero durations fall back to the
// derived defaults; a zero timeout means the site's max_app_wait.
type WaitConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Interval  time.Duration `yaml:"interval"`
	MinStable time.Duration `yaml:"min_stable"`
	Predicate string        `yaml:"predicate"` // expression, see browser.CompilePredicate
}

// TelemetryConfig controls metrics and tracing export.
type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics listener
	MetricsPath string `yaml:"metrics_path"`
	Tracing     bool   `yaml:"tracing"`

	NATS telemetry.NATSConfig `yaml:"nats"` // empty url disables event export
}

// LoggingConfig controls the JSONL logger. An empty dir logs to stderr.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// ChromeConfig controls the live browser adapter.
type ChromeConfig struct {
	ExecPath         string            `yaml:"exec_path"`
	RemoteURL        string            `yaml:"remote_url"`
	Headless         bool              `yaml:"headless"`
	UserDataDir      string            `yaml:"user_data_dir"`
	ConnectTimeout   time.Duration     `yaml:"connect_timeout"`
	OperationTimeout time.Duration     `yaml:"operation_timeout"`
	Flags            map[string]string `yaml:"flags"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	chrome := cdp.DefaultConfig()
	return &Config{
		Site: SiteConfig{
			MaxAppWait:    DefaultMaxAppWait,
			LatencyFactor: DefaultLatencyFactor,
		},
		Telemetry: TelemetryConfig{
			MetricsPath: DefaultMetricsPath,
		},
		Logging: LoggingConfig{
			Level: string(DefaultLogLevel),
		},
		Chrome: ChromeConfig{
			Headless:         true,
			ConnectTimeout:   chrome.ConnectTimeout,
			OperationTimeout: chrome.OperationTimeout,
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.crescent/config.yaml, ./.crescent.yaml, then environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, userConfigDir, userConfigFile)
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	if err := loadAndMerge(cfg, filepath.Join(".", projectConfigFile)); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, expandHomeDir(path)); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("CRESCENT_LATENCY_FACTOR")); v != "" {
		factor, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CRESCENT_LATENCY_FACTOR: %w", err)
		}
		cfg.Site.LatencyFactor = factor
	}
	if v := strings.TrimSpace(os.Getenv("CRESCENT_MAX_APP_WAIT")); v != "" {
		d, err := parseMillisOrDuration(v)
		if err != nil {
			return fmt.Errorf("CRESCENT_MAX_APP_WAIT: %w", err)
		}
		cfg.Site.MaxAppWait = d
	}
	if v := os.Getenv("CRESCENT_SITE_URI"); v != "" {
		cfg.Site.URI = v
	}
	if v := os.Getenv("CRESCENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRESCENT_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("CRESCENT_METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("CRESCENT_NATS_URL"); v != "" {
		cfg.Telemetry.NATS.URL = v
	}
	if val, ok := envBool("CRESCENT_TRACING"); ok {
		cfg.Telemetry.Tracing = val
	}
	if v := os.Getenv("CRESCENT_CHROME_PATH"); v != "" {
		cfg.Chrome.ExecPath = v
	}
	if v := os.Getenv("CRESCENT_CHROME_REMOTE_URL"); v != "" {
		cfg.Chrome.RemoteURL = v
	}
	if val, ok := envBool("CRESCENT_CHROME_HEADLESS"); ok {
		cfg.Chrome.Headless = val
	}
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds, otherwise a
// Go duration string.
func parseMillisOrDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks the configuration for values no component can use.
func (c *Config) Validate() error {
	var errs []error

	if c.Site.URI != "" {
		if _, err := url.Parse(c.Site.URI); err != nil {
			errs = append(errs, fmt.Errorf("site.uri: %w", err))
		}
	}
	if c.Site.MaxAppWait < 0 {
		errs = append(errs, fmt.Errorf("site.max_app_wait must be zero or positive, got %s", c.Site.MaxAppWait))
	}
	if c.Site.LatencyFactor < 0 {
		errs = append(errs, fmt.Errorf("site.latency_factor must be zero or positive, got %g", c.Site.LatencyFactor))
	}

	if c.Wait.Timeout < 0 || c.Wait.Interval < 0 || c.Wait.MinStable < 0 {
		errs = append(errs, errors.New("wait durations must be zero or positive"))
	}
	if strings.TrimSpace(c.Wait.Predicate) != "" {
		if _, err := browser.CompilePredicate(c.Wait.Predicate); err != nil {
			errs = append(errs, fmt.Errorf("wait.predicate: %w", err))
		}
	}

	if addr := strings.TrimSpace(c.Telemetry.MetricsAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.metrics_addr: %w", err))
		}
	}
	if p := c.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path must start with /, got %q", p))
	}

	if u := strings.TrimSpace(c.Telemetry.NATS.URL); u != "" {
		if parsed, err := url.Parse(u); err != nil || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry.nats.url must be a server URL such as nats://host:4222, got %q", u))
		}
	}
	if c.Telemetry.NATS.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("telemetry.nats.connect_timeout must be zero or positive"))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if err := c.Chrome.CDP().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chrome: %w", err))
	}
	return errors.Join(errs...)
}

// Policy builds the default wait policy. A zero wait.timeout uses the site's
// max_app_wait; a zero interval or min_stable is derived from the one above
// it.
func (c *Config) Policy() (wait.Policy, error) {
	timeout := c.Wait.Timeout
	if timeout == 0 {
		timeout = c.Site.MaxAppWait
	}
	interval := c.Wait.Interval
	if interval == 0 {
		interval = wait.DefaultInterval(timeout)
	}
	minStable := c.Wait.MinStable
	if minStable == 0 {
		minStable = wait.DefaultMinStable(interval)
	}
	policy := wait.New(timeout).WithInterval(interval).WithMinStable(minStable)
	if strings.TrimSpace(c.Wait.Predicate) != "" {
		pred, err := browser.CompilePredicate(c.Wait.Predicate)
		if err != nil {
			return wait.Policy{}, fmt.Errorf("wait.predicate: %w", err)
		}
		policy = policy.WithPredicate(pred)
	}
	return policy, nil
}

// SiteOptions returns the site options implied by the configuration.
func (c *Config) SiteOptions() []site.Option {
	return []site.Option{
		site.WithMaxAppWait(c.Site.MaxAppWait),
		site.WithLatencyFactor(c.Site.LatencyFactor),
	}
}

// CDP converts the chrome section into adapter configuration.
func (c ChromeConfig) CDP() cdp.Config {
	cfg := cdp.DefaultConfig()
	cfg.ExecPath = expandHomeDir(c.ExecPath)
	cfg.RemoteURL = strings.TrimSpace(c.RemoteURL)
	cfg.Headful = !c.Headless
	cfg.UserDataDir = expandHomeDir(c.UserDataDir)
	cfg.Flags = c.Flags
	if c.ConnectTimeout != 0 {
		cfg.ConnectTimeout = c.ConnectTimeout
	}
	if c.OperationTimeout != 0 {
		cfg.OperationTimeout = c.OperationTimeout
	}
	return cfg
}
