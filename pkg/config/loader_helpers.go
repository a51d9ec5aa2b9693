package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values keep the base value
// except where raw shows the key was written explicitly.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if strings.TrimSpace(override.Site.URI) != "" {
		base.Site.URI = strings.TrimSpace(override.Site.URI)
	}
	if fieldSet(raw, "site", "max_app_wait") {
		base.Site.MaxAppWait = override.Site.MaxAppWait
	}
	if fieldSet(raw, "site", "latency_factor") {
		base.Site.LatencyFactor = override.Site.LatencyFactor
	}

	if override.Wait.Timeout != 0 {
		base.Wait.Timeout = override.Wait.Timeout
	}
	if override.Wait.Interval != 0 {
		base.Wait.Interval = override.Wait.Interval
	}
	if override.Wait.MinStable != 0 {
		base.Wait.MinStable = override.Wait.MinStable
	}
	if fieldSet(raw, "wait", "predicate") {
		base.Wait.Predicate = override.Wait.Predicate
	}

	if fieldSet(raw, "telemetry", "metrics_addr") {
		base.Telemetry.MetricsAddr = override.Telemetry.MetricsAddr
	}
	if override.Telemetry.MetricsPath != "" {
		base.Telemetry.MetricsPath = override.Telemetry.MetricsPath
	}
	if fieldSet(raw, "telemetry", "tracing") {
		base.Telemetry.Tracing = override.Telemetry.Tracing
	}
	if fieldSet(raw, "telemetry", "nats", "url") {
		base.Telemetry.NATS.URL = override.Telemetry.NATS.URL
	}
	if override.Telemetry.NATS.SubjectPrefix != "" {
		base.Telemetry.NATS.SubjectPrefix = override.Telemetry.NATS.SubjectPrefix
	}
	if override.Telemetry.NATS.ConnectTimeout != 0 {
		base.Telemetry.NATS.ConnectTimeout = override.Telemetry.NATS.ConnectTimeout
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Chrome.ExecPath != "" {
		base.Chrome.ExecPath = override.Chrome.ExecPath
	}
	if fieldSet(raw, "chrome", "remote_url") {
		base.Chrome.RemoteURL = override.Chrome.RemoteURL
	}
	if fieldSet(raw, "chrome", "headless") {
		base.Chrome.Headless = override.Chrome.Headless
	}
	if override.Chrome.UserDataDir != "" {
		base.Chrome.UserDataDir = override.Chrome.UserDataDir
	}
	if override.Chrome.ConnectTimeout != 0 {
		base.Chrome.ConnectTimeout = override.Chrome.ConnectTimeout
	}
	if override.Chrome.OperationTimeout != 0 {
		base.Chrome.OperationTimeout = override.Chrome.OperationTimeout
	}
	if len(override.Chrome.Flags) > 0 {
		if base.Chrome.Flags == nil {
			base.Chrome.Flags = make(map[string]string, len(override.Chrome.Flags))
		}
		for name, value := range override.Chrome.Flags {
			base.Chrome.Flags[name] = value
		}
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
