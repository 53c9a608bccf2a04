// Package config loads prodflow settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RoomConfig is a room seeded at startup. Next names the following room by code.
type RoomConfig struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
	Next string `mapstructure:"next"`
}

// OperatorConfig is an operator seeded at startup.
type OperatorConfig struct {
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

// RolesConfig names the rooms that play a special part in the lifecycle.
type RolesConfig struct {
	EntryRoom        string `mapstructure:"entry_room"`
	ShadowTargetRoom string `mapstructure:"shadow_target_room"`
}

// Config holds all configuration values for the application.
type Config struct {
	// "postgres" or "memory"
	StorageDriver string `mapstructure:"storage_driver"`
	DatabaseURL   string `mapstructure:"database_url"`

	HTTPPort     int    `mapstructure:"http_port"`
	LogLevel     string `mapstructure:"log_level"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Fraction of lifecycle traces exported, 0..1.
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`

	// Per-client request rate and burst; zero rate disables limiting.
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	SweepMaxBackoff      time.Duration `mapstructure:"sweep_max_backoff"`
	SweepBatchSize       int           `mapstructure:"sweep_batch_size"`
	IdempotencyRetention time.Duration `mapstructure:"idempotency_retention"`

	AutoAdvance bool `mapstructure:"auto_advance"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	Rooms             []RoomConfig     `mapstructure:"rooms"`
	Operators         []OperatorConfig `mapstructure:"operators"`
	Roles             RolesConfig      `mapstructure:"roles"`
	GateKinds         []string         `mapstructure:"gate_kinds"`
	ShadowSourceKinds []string         `mapstructure:"shadow_source_kinds"`
	PackagingKinds    []string         `mapstructure:"packaging_kinds"`
}

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "prodflow.yaml"

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"storage_driver":        "STORAGE_DRIVER",
	"database_url":          "DATABASE_URL",
	"http_port":             "PORT",
	"log_level":             "LOG_LEVEL",
	"otel_endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"trace_sample_ratio":    "OTEL_TRACES_SAMPLER_ARG",
	"rate_limit":            "RATE_LIMIT",
	"rate_limit_burst":      "RATE_LIMIT_BURST",
	"sweep_interval":        "SWEEP_INTERVAL",
	"sweep_max_backoff":     "SWEEP_MAX_BACKOFF",
	"sweep_batch_size":      "SWEEP_BATCH_SIZE",
	"idempotency_retention": "IDEMPOTENCY_RETENTION",
	"auto_advance":          "AUTO_ADVANCE",
	"kafka_brokers":         "KAFKA_BROKERS",
	"kafka_topic":           "KAFKA_TOPIC",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage_driver", "postgres")
	v.SetDefault("http_port", 6161)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("trace_sample_ratio", 1.0)
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("sweep_max_backoff", "1m")
	v.SetDefault("sweep_batch_size", 100)
	v.SetDefault("idempotency_retention", "24h")
	v.SetDefault("auto_advance", true)
	v.SetDefault("kafka_topic", "prodflow.batch-events")
	v.SetDefault("gate_kinds", []string{"processing"})
	v.SetDefault("shadow_source_kinds", []string{"filling"})
	v.SetDefault("packaging_kinds", []string{"labelling"})
}

// Load reads configuration from path (or prodflow.yaml in the working directory
// when path is empty and the file exists), then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList flattens comma separated entries, as produced by KAFKA_BROKERS=a:9092,b:9092.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required (env: DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage_driver %q: must be postgres or memory", c.StorageDriver)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.SweepMaxBackoff < c.SweepInterval {
		return fmt.Errorf("sweep_max_backoff (%s) must not be below sweep_interval (%s)", c.SweepMaxBackoff, c.SweepInterval)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep_batch_size must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	codes := make(map[string]bool, len(c.Rooms))
	for i, r := range c.Rooms {
		if r.Code == "" || r.Kind == "" {
			return fmt.Errorf("rooms[%d]: code and kind are required", i)
		}
		if codes[r.Code] {
			return fmt.Errorf("rooms[%d]: duplicate code %q", i, r.Code)
		}
		codes[r.Code] = true
	}
	for i, r := range c.Rooms {
		if r.Next != "" && !codes[r.Next] {
			return fmt.Errorf("rooms[%d]: next room %q is not defined", i, r.Next)
		}
	}
	for i, op := range c.Operators {
		if op.Name == "" {
			return fmt.Errorf("operators[%d]: name is required", i)
		}
	}
	return nil
}
