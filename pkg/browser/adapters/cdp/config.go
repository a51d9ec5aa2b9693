package cdp

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config controls how the adapter launches or attaches to Chrome.
type Config struct {
	// ExecPath overrides the Chrome binary. Empty lets chromedp search PATH.
	ExecPath string `yaml:"exec_path"`
	// RemoteURL attaches to a running browser's DevTools websocket instead
	// of launching one.
	RemoteURL string `yaml:"remote_url"`
	// Headful shows the browser window.
	Headful          bool              `yaml:"headful"`
	UserDataDir      string            `yaml:"user_data_dir"`
	WindowWidth      int               `yaml:"window_width"`
	WindowHeight     int               `yaml:"window_height"`
	ConnectTimeout   time.Duration     `yaml:"connect_timeout"`
	OperationTimeout time.Duration     `yaml:"operation_timeout"`
	Flags            map[string]string `yaml:"flags"`
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		WindowWidth:      1280,
		WindowHeight:     800,
		ConnectTimeout:   15 * time.Second,
		OperationTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	defaults.ExecPath = strings.TrimSpace(c.ExecPath)
	defaults.RemoteURL = strings.TrimSpace(c.RemoteURL)
	defaults.Headful = c.Headful
	defaults.UserDataDir = strings.TrimSpace(c.UserDataDir)
	defaults.Flags = c.Flags
	if c.WindowWidth != 0 {
		defaults.WindowWidth = c.WindowWidth
	}
	if c.WindowHeight != 0 {
		defaults.WindowHeight = c.WindowHeight
	}
	if c.ConnectTimeout != 0 {
		defaults.ConnectTimeout = c.ConnectTimeout
	}
	if c.OperationTimeout != 0 {
		defaults.OperationTimeout = c.OperationTimeout
	}
	return defaults
}

// Validate checks whether the config is usable.
func (c Config) Validate() error {
	if c.RemoteURL != "" {
		u, err := url.Parse(c.RemoteURL)
		if err != nil {
			return errors.New("remote_url is not a valid URL")
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return errors.New("remote_url must use ws, wss, http or https")
		}
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return errors.New("window size must be greater than zero")
	}
	if c.ConnectTimeout < 0 {
		return errors.New("connect_timeout must be zero or positive")
	}
	if c.OperationTimeout < 0 {
		return errors.New("operation_timeout must be zero or positive")
	}
	return nil
}
