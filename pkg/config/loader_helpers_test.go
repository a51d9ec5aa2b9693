package config

import "testing"

func TestMergeConfigsPreservesDefaults(t *testing.T) {
	base := DefaultConfig()
	override := &Config{Site: SiteConfig{URI: "https://app.example.com"}}
	raw := map[string]any{
		"site": map[string]any{"uri": "https://app.example.com"},
	}

	mergeConfigs(base, override, raw)

	if base.Site.URI != "https://app.example.com" {
		t.Fatalf("expected uri to be overridden")
	}
	if base.Site.LatencyFactor != DefaultLatencyFactor || base.Site.MaxAppWait != DefaultMaxAppWait {
		t.Fatalf("unset site fields should keep defaults: %+v", base.Site)
	}
	if !base.Chrome.Headless {
		t.Fatalf("headless should remain true when not overridden")
	}
}

func TestMergeConfigsRespectsExplicitZeroes(t *testing.T) {
	base := DefaultConfig()
	base.Telemetry.MetricsAddr = "127.0.0.1:9464"
	override := &Config{}
	raw := map[string]any{
		"site":      map[string]any{"latency_factor": 0, "max_app_wait": "0s"},
		"chrome":    map[string]any{"headless": false},
		"telemetry": map[string]any{"metrics_addr": ""},
	}

	mergeConfigs(base, override, raw)

	if base.Site.LatencyFactor != 0 || base.Site.MaxAppWait != 0 {
		t.Fatalf("explicit zero site values should apply: %+v", base.Site)
	}
	if base.Chrome.Headless {
		t.Fatalf("explicit headless: false should apply")
	}
	if base.Telemetry.MetricsAddr != "" {
		t.Fatalf("explicit empty metrics_addr should disable the listener")
	}
}

func TestMergeConfigsMergesFlags(t *testing.T) {
	base := DefaultConfig()
	base.Chrome.Flags = map[string]string{"mute-audio": "true"}
	override := &Config{Chrome: ChromeConfig{Flags: map[string]string{"lang": "en-US"}}}

	mergeConfigs(base, override, nil)

	if len(base.Chrome.Flags) != 2 || base.Chrome.Flags["lang"] != "en-US" {
		t.Fatalf("unexpected flags: %v", base.Chrome.Flags)
	}
}

func TestFieldSet(t *testing.T) {
	raw := map[string]any{"a": map[string]any{"b": false}}
	if !fieldSet(raw, "a", "b") {
		t.Fatalf("expected a.b to be set")
	}
	if fieldSet(raw, "a", "c") || fieldSet(raw, "a", "b", "c") || fieldSet(nil, "a") || fieldSet(raw) {
		t.Fatalf("unexpected field reported as set")
	}
}
