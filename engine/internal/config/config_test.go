package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/health"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
engine:
  http_port: 9090
  cycle_interval: 30s
  sample_ttl: 12h
  collectors:
    - id: node-exporter
      endpoint: "http://node042:9100/metrics"
      entity_label: instance
      poll_interval: 15s
  alerts:
    rules:
      - id: scratch-fill
        metric: disk_used_pct
        warning_threshold: 80
        critical_threshold: 95
        cooldown: 10m
        min_severity: warning
`
	cfg := loadFromString(t, yaml)

	e := cfg.Engine
	if e.HTTPPort != 9090 {
		t.Errorf("http_port: got %d", e.HTTPPort)
	}
	if e.CycleInterval != 30*time.Second {
		t.Errorf("cycle_interval: got %v", e.CycleInterval)
	}
	if e.SampleTTL != 12*time.Hour {
		t.Errorf("sample_ttl: got %v", e.SampleTTL)
	}
	if len(e.Collectors) != 1 {
		t.Fatalf("collectors: got %d, want 1", len(e.Collectors))
	}
	c := e.Collectors[0]
	if c.ID != "node-exporter" || c.EntityLabel != "instance" {
		t.Errorf("collector: got %+v", c)
	}
	if len(e.Alerts.Rules) != 1 {
		t.Fatalf("rules: got %d, want 1", len(e.Alerts.Rules))
	}
	if e.Alerts.Rules[0].Cooldown != 10*time.Minute {
		t.Errorf("rule cooldown: got %v", e.Alerts.Rules[0].Cooldown)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "engine: {}\n")

	e := cfg.Engine
	if e.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", e.HTTPPort, DefaultHTTPPort)
	}
	if e.CycleInterval != DefaultCycleInterval {
		t.Errorf("default cycle_interval: got %v, want %v", e.CycleInterval, DefaultCycleInterval)
	}
	if e.SampleTTL != DefaultSampleTTL {
		t.Errorf("default sample_ttl: got %v, want %v", e.SampleTTL, DefaultSampleTTL)
	}
	if e.Features.Normalization != "minmax" {
		t.Errorf("default normalization: got %q", e.Features.Normalization)
	}
	if e.Similarity.Threshold != 0.7 {
		t.Errorf("default similarity threshold: got %v", e.Similarity.Threshold)
	}
	if e.Health.Weights != health.DefaultWeights() {
		t.Errorf("default weights: got %+v", e.Health.Weights)
	}
	if e.Layout.Iterations != 300 {
		t.Errorf("default layout iterations: got %d", e.Layout.Iterations)
	}
}

func TestLoad_RejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"inverted thresholds", `
engine:
  alerts:
    rules:
      - id: r
        metric: m
        warning_threshold: 95
        critical_threshold: 80
`},
		{"unknown severity", `
engine:
  alerts:
    rules:
      - id: r
        metric: m
        warning_threshold: 1
        critical_threshold: 2
        min_severity: catastrophic
`},
		{"rule without metric", `
engine:
  alerts:
    rules:
      - id: r
        warning_threshold: 1
        critical_threshold: 2
`},
		{"port out of range", "engine:\n  http_port: 70000\n"},
		{"zero cycle interval", "engine:\n  cycle_interval: 0s\n"},
		{"unknown normalization", "engine:\n  features:\n    normalization: quantile\n"},
		{"weights not summing to 1", `
engine:
  health:
    weights: {cpu: 0.5, memory: 0.5, time: 0.5, io: 0, gpu: 0}
`},
		{"threshold out of range", "engine:\n  similarity:\n    threshold: 1.5\n"},
		{"cooling out of range", "engine:\n  layout:\n    cooling: 1.0\n"},
		{"collector without endpoint", `
engine:
  collectors:
    - id: c
`},
		{"unknown collector auth", `
engine:
  collectors:
    - id: c
      endpoint: "http://localhost:9100/metrics"
      auth:
        mode: magictoken
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestRules_ConvertsSeverity(t *testing.T) {
	yaml := `
engine:
  alerts:
    rules:
      - id: a
        metric: m
        warning_threshold: 1
        critical_threshold: 2
        min_severity: critical
      - id: b
        metric: m
        warning_threshold: 1
        critical_threshold: 2
`
	cfg := loadFromString(t, yaml)
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(rules))
	}
	if rules[0].MinSeverity != alerts.SeverityCritical {
		t.Errorf("rule a min severity: got %v", rules[0].MinSeverity)
	}
	if rules[1].MinSeverity != alerts.SeverityInfo {
		t.Errorf("rule b min severity: got %v, want info default", rules[1].MinSeverity)
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_EffectiveHeader(t *testing.T) {
	if got := (AuthConfig{}).EffectiveHeader(); got != "x-api-key" {
		t.Errorf("default header: got %q", got)
	}
	if got := (AuthConfig{Header: "x-kestrel-key"}).EffectiveHeader(); got != "x-kestrel-key" {
		t.Errorf("configured header: got %q", got)
	}
}

func TestClientAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := ClientAuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
