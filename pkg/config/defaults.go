package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sekuba/dvnstats-sub001/internal/telemetry"
	"github.com/sekuba/dvnstats-sub001/pkg/store/postgres"
)

var validate = validator.New()

// ApplyDefaults fills unset fields with sensible defaults after loading
// from file/environment. Zero values are replaced; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	cfg.Database.ApplyDefaults()

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *telemetry.Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dvnstats"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config with all defaults applied, used when
// no config file is found.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: postgres.Config{
			Host:     "localhost",
			Port:     5432,
			Database: "dvnstats",
			User:     "dvnstats",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// Validate checks cfg for obvious mistakes before the indexer starts.
// Structural checks (required fields, oneof sets, chain_id uniqueness)
// run against the `validate:"..."` struct tags declared on Config and its
// nested types. The Metrics/API port bounds and the telemetry sample-rate
// range are only meaningful while their feature is enabled, so those stay
// hand-written conditional checks rather than unconditional struct tags;
// the nested Database config's own validation is layered on top too.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", cfg.Metrics.Port)
	}
	if cfg.API.Enabled && (cfg.API.Port < 1 || cfg.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.Telemetry.Enabled && (cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1) {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", cfg.Telemetry.SampleRate)
	}
	if err := cfg.Database.Validate(); err != nil {
		return err
	}
	return nil
}
