package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/features"
	"github.com/kestrelhpc/kestrel/engine/internal/health"
	"github.com/kestrelhpc/kestrel/engine/internal/layout"
	"github.com/kestrelhpc/kestrel/engine/internal/simgraph"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort      = 8080
	DefaultCycleInterval = 60 * time.Second
	DefaultSampleTTL     = 24 * time.Hour
	DefaultPollInterval  = 30 * time.Second
)

// Config is the top-level configuration, parsed from the `engine:` section
// of config.yaml. Fields map 1:1 to config.example.yaml.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig holds all engine-side settings.
type EngineConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// CycleInterval controls how often the batch pass runs.
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// SampleTTL is how long a series or job snapshot stays in the store
	// after its last update.
	SampleTTL time.Duration `yaml:"sample_ttl"`

	// Auth configures how the engine authenticates incoming REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Collectors is the list of exposition endpoints polled for samples.
	Collectors []Collector `yaml:"collectors"`

	// Alerts holds the alert rule definitions.
	Alerts AlertsConfig `yaml:"alerts"`

	// Features tunes the feature vector builder.
	Features FeaturesConfig `yaml:"features"`

	// Health tunes the composite health score.
	Health HealthConfig `yaml:"health"`

	// Derive tunes the derivative analyzer.
	Derive DeriveConfig `yaml:"derive"`

	// Similarity tunes the similarity graph builder.
	Similarity SimilarityConfig `yaml:"similarity"`

	// Layout tunes the 3D layout run.
	Layout LayoutConfig `yaml:"layout"`
}

// Collector describes one polled metrics endpoint.
type Collector struct {
	// ID is a unique, human-readable identifier for this collector.
	ID string `yaml:"id"`

	// Endpoint is the full URL of the collector's text exposition endpoint.
	Endpoint string `yaml:"endpoint"`

	// EntityLabel is the exposition label carrying the monitored entity
	// (filesystem path, node hostname, queue name). Defaults to "entity".
	EntityLabel string `yaml:"entity_label"`

	// PollInterval controls how often this endpoint is polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Auth configures how the engine authenticates to this collector.
	Auth ClientAuthConfig `yaml:"auth"`
}

// ClientAuthConfig specifies the authentication mode for an outbound poll.
type ClientAuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in (apikey mode).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the
	// bearer token (bearer mode).
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a ClientAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a ClientAuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// AuthConfig controls client authentication on the engine's own API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the
	// expected API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AlertsConfig holds all alert rule definitions.
type AlertsConfig struct {
	Rules []AlertRule `yaml:"rules"`
}

// AlertRule defines one threshold/derivative alert condition.
type AlertRule struct {
	// ID is the human-readable alert identifier, used as part of the
	// deduplication key.
	ID string `yaml:"id"`

	// Metric is the sample source this rule evaluates, e.g. "disk_used_pct".
	Metric string `yaml:"metric"`

	// WarningThreshold and CriticalThreshold are value thresholds in the
	// metric's own unit. Warning must be strictly below critical.
	WarningThreshold  float64 `yaml:"warning_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// DerivativeSensitivity is the minimum second derivative (units/sec²)
	// at which an accelerating trend fires on its own. Zero disables it.
	DerivativeSensitivity float64 `yaml:"derivative_sensitivity"`

	// Cooldown suppresses re-fires for this duration after a notification.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	// MinSeverity is one of: info | warning | critical. Violations below it
	// never notify. Defaults to info (everything notifies).
	MinSeverity string `yaml:"min_severity"`
}

// FeaturesConfig tunes the feature vector builder.
type FeaturesConfig struct {
	// Normalization is one of: minmax | zscore. Defaults to minmax.
	Normalization string `yaml:"normalization"`

	// MinSources is the minimum number of present source categories for a
	// job to enter the comparison population.
	MinSources int `yaml:"min_sources"`
}

// HealthConfig tunes the composite health score.
type HealthConfig struct {
	// Weights per scored dimension; they must sum to 1.
	Weights health.Weights `yaml:"weights"`
}

// DeriveConfig tunes the derivative analyzer.
type DeriveConfig struct {
	// Window is the number of most recent samples the estimate is fit over.
	Window int `yaml:"window"`

	// NoiseFloor is the |d²| below which a trend counts as stable, in the
	// metric's units per second squared.
	NoiseFloor float64 `yaml:"noise_floor"`
}

// SimilarityConfig tunes the similarity graph builder.
type SimilarityConfig struct {
	// Threshold is the minimum cosine similarity for an edge, in [-1, 1].
	Threshold float64 `yaml:"threshold"`
}

// LayoutConfig tunes the 3D force-directed layout run.
type LayoutConfig struct {
	Iterations  int           `yaml:"iterations"`
	Cooling     float64       `yaml:"cooling"`
	Bound       float64       `yaml:"bound"`
	Epsilon     float64       `yaml:"epsilon"`
	MaxDuration time.Duration `yaml:"max_duration"`
	Workers     int           `yaml:"workers"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			HTTPPort:      DefaultHTTPPort,
			CycleInterval: DefaultCycleInterval,
			SampleTTL:     DefaultSampleTTL,
			Features: FeaturesConfig{
				Normalization: string(features.NormMinMax),
				MinSources:    features.DefaultMinSources,
			},
			Health: HealthConfig{
				Weights: health.DefaultWeights(),
			},
			Similarity: SimilarityConfig{
				Threshold: simgraph.DefaultThreshold,
			},
			Layout: LayoutConfig{
				Iterations: layout.DefaultIterations,
				Cooling:    layout.DefaultCooling,
				Bound:      layout.DefaultBound,
				Epsilon:    layout.DefaultEpsilon,
			},
		},
	}
}

// Rules converts the configured alert rules into engine rules. Severity
// strings were already validated at load time.
func (c *Config) Rules() ([]alerts.Rule, error) {
	out := make([]alerts.Rule, 0, len(c.Engine.Alerts.Rules))
	for _, r := range c.Engine.Alerts.Rules {
		min := alerts.SeverityInfo
		if r.MinSeverity != "" {
			var err error
			if min, err = alerts.ParseSeverity(r.MinSeverity); err != nil {
				return nil, fmt.Errorf("config: alert rule %q: %w", r.ID, err)
			}
		}
		out = append(out, alerts.Rule{
			ID:                    r.ID,
			Metric:                r.Metric,
			WarningThreshold:      r.WarningThreshold,
			CriticalThreshold:     r.CriticalThreshold,
			DerivativeSensitivity: r.DerivativeSensitivity,
			Cooldown:              r.Cooldown,
			MinSeverity:           min,
		})
	}
	return out, nil
}

// validate checks structural constraints on the parsed configuration.
// Any violation here is fatal at startup; nothing is discovered mid-pass.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.HTTPPort <= 0 || e.HTTPPort > 65535 {
		return fmt.Errorf("engine.http_port %d is out of range [1, 65535]", e.HTTPPort)
	}
	if e.CycleInterval <= 0 {
		return fmt.Errorf("engine.cycle_interval must be positive")
	}
	if e.SampleTTL <= 0 {
		return fmt.Errorf("engine.sample_ttl must be positive")
	}
	switch e.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("engine.auth.mode %q unknown: want apikey|none", e.Auth.Mode)
	}

	for i, c := range e.Collectors {
		if c.ID == "" {
			return fmt.Errorf("collectors[%d]: id is required", i)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("collectors[%d] %q: endpoint is required", i, c.ID)
		}
		if c.PollInterval < 0 {
			return fmt.Errorf("collectors[%d] %q: negative poll_interval", i, c.ID)
		}
		switch c.Auth.Mode {
		case "apikey", "bearer", "none", "":
		default:
			return fmt.Errorf("collectors[%d] %q: unknown auth mode %q", i, c.ID, c.Auth.Mode)
		}
	}

	for i, r := range e.Alerts.Rules {
		min := alerts.SeverityInfo
		if r.MinSeverity != "" {
			var err error
			if min, err = alerts.ParseSeverity(r.MinSeverity); err != nil {
				return fmt.Errorf("alerts.rules[%d]: %w", i, err)
			}
		}
		rule := alerts.Rule{
			ID:                    r.ID,
			Metric:                r.Metric,
			WarningThreshold:      r.WarningThreshold,
			CriticalThreshold:     r.CriticalThreshold,
			DerivativeSensitivity: r.DerivativeSensitivity,
			Cooldown:              r.Cooldown,
			MinSeverity:           min,
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("alerts.rules[%d]: %w", i, err)
		}
	}

	switch features.Normalization(e.Features.Normalization) {
	case features.NormMinMax, features.NormZScore, "":
	default:
		return fmt.Errorf("features.normalization %q unknown: want minmax|zscore", e.Features.Normalization)
	}
	if e.Features.MinSources < 0 {
		return fmt.Errorf("features.min_sources must not be negative")
	}

	if err := e.Health.Weights.Validate(); err != nil {
		return err
	}

	if e.Derive.Window < 0 {
		return fmt.Errorf("derive.window must not be negative")
	}
	if e.Derive.NoiseFloor < 0 {
		return fmt.Errorf("derive.noise_floor must not be negative")
	}

	if e.Similarity.Threshold < -1 || e.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold %v is out of range [-1, 1]", e.Similarity.Threshold)
	}

	l := e.Layout
	if l.Iterations <= 0 {
		return fmt.Errorf("layout.iterations must be positive")
	}
	if l.Cooling <= 0 || l.Cooling >= 1 {
		return fmt.Errorf("layout.cooling %v is out of range (0, 1)", l.Cooling)
	}
	if l.Bound <= 0 {
		return fmt.Errorf("layout.bound must be positive")
	}
	if l.Epsilon < 0 {
		return fmt.Errorf("layout.epsilon must not be negative")
	}
	if l.MaxDuration < 0 {
		return fmt.Errorf("layout.max_duration must not be negative")
	}
	if l.Workers < 0 {
		return fmt.Errorf("layout.workers must not be negative")
	}
	return nil
}
