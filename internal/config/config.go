// Package config loads and validates aggregator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Hub       HubConfig       `mapstructure:"hub"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Simulate  SimulateConfig  `mapstructure:"simulate"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TrackerConfig sets the defaults applied to every aggregate tracker.
type TrackerConfig struct {
	TotalQuota     int `mapstructure:"total_quota"`
	InitialDelayMS int `mapstructure:"initial_delay_ms"`
}

// HubConfig controls event buffering between trackers and sinks.
type HubConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMS int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMS  int `mapstructure:"sink_timeout_ms"`
}

// SinksConfig toggles the optional event sinks. Store and Pub/Sub sinks are
// enabled by configuring db and pubsub respectively.
type SinksConfig struct {
	Log                bool `mapstructure:"log"`
	Prometheus         bool `mapstructure:"prometheus"`
	PubSubContributors bool `mapstructure:"pubsub_contributors"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SimulateConfig shapes the synthetic jobs run by the simulate command and
// the simulations endpoint.
type SimulateConfig struct {
	Name         string `mapstructure:"name"`
	Contributors int    `mapstructure:"contributors"`
	Steps        int    `mapstructure:"steps"`
	StepDelayMS  int    `mapstructure:"step_delay_ms"`
	StaggerMS    int    `mapstructure:"stagger_ms"`
}

// RateLimitConfig throttles POST /v1/simulations per API key or client
// address. A non-positive rate disables throttling.
type RateLimitConfig struct {
	SimulationsRPS   float64 `mapstructure:"simulations_rps"`
	SimulationsBurst int     `mapstructure:"simulations_burst"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGGREGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("tracker.total_quota", 10000)
	v.SetDefault("tracker.initial_delay_ms", 0)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait_ms", 250)
	v.SetDefault("hub.sink_timeout_ms", 5000)
	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.prometheus", true)
	v.SetDefault("sinks.pubsub_contributors", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", false)
	v.SetDefault("simulate.name", "simulated job")
	v.SetDefault("simulate.contributors", 4)
	v.SetDefault("simulate.steps", 20)
	v.SetDefault("simulate.step_delay_ms", 50)
	v.SetDefault("simulate.stagger_ms", 100)
	v.SetDefault("ratelimit.simulations_rps", 1.0)
	v.SetDefault("ratelimit.simulations_burst", 5)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "progress-aggregator")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracker.TotalQuota <= 0 {
		return fmt.Errorf("tracker.total_quota must be > 0")
	}
	if c.Tracker.InitialDelayMS < 0 {
		return fmt.Errorf("tracker.initial_delay_ms must be >= 0")
	}
	if c.Hub.BufferSize < 0 || c.Hub.MaxBatchEvents < 0 {
		return fmt.Errorf("hub.buffer_size and hub.max_batch_events must be >= 0")
	}
	if c.Simulate.Contributors <= 0 {
		return fmt.Errorf("simulate.contributors must be > 0")
	}
	if c.Simulate.Steps < 0 {
		return fmt.Errorf("simulate.steps must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.RateLimit.SimulationsBurst < 0 {
		return fmt.Errorf("ratelimit.simulations_burst must be >= 0")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// InitialDelay converts tracker.initial_delay_ms to a duration.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.Tracker.InitialDelayMS) * time.Millisecond
}

// ShutdownTimeout bounds graceful HTTP shutdown and hub draining.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// StepDelay converts simulate.step_delay_ms to a duration.
func (c SimulateConfig) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMS) * time.Millisecond
}

// Stagger converts simulate.stagger_ms to a duration.
func (c SimulateConfig) Stagger() time.Duration {
	return time.Duration(c.StaggerMS) * time.Millisecond
}

// MaxBatchWait converts hub.max_batch_wait_ms to a duration.
func (c HubConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMS) * time.Millisecond
}

// SinkTimeout converts hub.sink_timeout_ms to a duration.
func (c HubConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutMS) * time.Millisecond
}
