// Package config loads service configuration from the environment.
//
// Values are decoded from process environment variables into tagged structs,
// optionally seeded from a .env file in the working directory. Durations are
// kept as strings and parsed by the Get...Duration helpers so that Validate can
// report every bad value up front.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config is the root configuration for the service.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Database  DatabaseConfig
	Bridge    BridgeConfig
	Session   SessionConfig
	Batch     BatchConfig
	Monitor   MonitorConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
	Shutdown  ShutdownConfig

	// loadErr holds decoding failures (malformed numbers or booleans).
	// Validate reports it with everything else.
	loadErr error
}

type ServiceConfig struct {
	Name    string `env:"SERVICE_NAME" default:"group-admin-service"`
	Version string `env:"SERVICE_VERSION" default:"dev"`
	Env     string `env:"ENV" default:"development"`
	Port    string `env:"PORT" default:"3000"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" default:"info"`
}

type TracingConfig struct {
	Enabled    bool    `env:"TRACING_ENABLED" default:"false"`
	Endpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4318"`
	SampleRate float64 `env:"OTEL_SAMPLE_RATE" default:"0.1"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"PROFILING_ENABLED" default:"false"`
	Endpoint string `env:"PYROSCOPE_ENDPOINT" default:"http://localhost:4040"`
}

// DatabaseConfig configures the optional batch run audit log.
// An empty URL disables it.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// BridgeConfig points at the messaging bridge that speaks the platform protocol.
type BridgeConfig struct {
	URL     string `env:"MESSENGER_BRIDGE_URL" default:"http://localhost:8090"`
	Timeout string `env:"MESSENGER_BRIDGE_TIMEOUT" default:"30s"`
}

type SessionConfig struct {
	IdleTimeout   string `env:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SweepInterval string `env:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

type BatchConfig struct {
	CallDelay   string `env:"BATCH_CALL_DELAY" default:"1s"`
	CallTimeout string `env:"BATCH_CALL_TIMEOUT" default:"30s"`
}

type MonitorConfig struct {
	Interval string `env:"MONITOR_INTERVAL" default:"1m"`
}

// RateLimitConfig defaults to 100 requests per 15 minutes per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" default:"0.1111111111111111"`
	Burst             int     `env:"RATE_LIMIT_BURST" default:"100"`
}

type UploadConfig struct {
	MaxAppStateBytes int64 `env:"MAX_APPSTATE_BYTES" default:"5242880"`
}

type ShutdownConfig struct {
	Timeout             string `env:"SHUTDOWN_TIMEOUT" default:"10s"`
	ReadinessDrainDelay string `env:"READINESS_DRAIN_DELAY" default:"0s"`
}

// Load reads configuration from .env (if present) and the environment.
// Values that cannot be decoded are reported by Validate.
func Load() *Config {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	var errs []error
	for _, section := range []any{
		&cfg.Service, &cfg.Logging, &cfg.Tracing, &cfg.Profiling,
		&cfg.Database, &cfg.Bridge, &cfg.Session, &cfg.Batch,
		&cfg.Monitor, &cfg.RateLimit, &cfg.Upload, &cfg.Shutdown,
	} {
		if err := env.Load(section, nil); err != nil {
			errs = append(errs, fmt.Errorf("load environment variables: %w", err))
		}
	}
	cfg.loadErr = errors.Join(errs...)
	return &cfg
}

// Validate checks that every value can be used as configured.
func (c *Config) Validate() error {
	var errs []error
	if c.loadErr != nil {
		errs = append(errs, c.loadErr)
	}

	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Bridge.URL == "" {
		errs = append(errs, errors.New("MESSENGER_BRIDGE_URL is required"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.Tracing.SampleRate))
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be at least 1"))
	}
	if c.Upload.MaxAppStateBytes <= 0 {
		errs = append(errs, errors.New("MAX_APPSTATE_BYTES must be positive"))
	}

	positive := map[string]string{
		"MESSENGER_BRIDGE_TIMEOUT": c.Bridge.Timeout,
		"SESSION_IDLE_TIMEOUT":     c.Session.IdleTimeout,
		"SESSION_SWEEP_INTERVAL":   c.Session.SweepInterval,
		"BATCH_CALL_TIMEOUT":       c.Batch.CallTimeout,
		"MONITOR_INTERVAL":         c.Monitor.Interval,
		"SHUTDOWN_TIMEOUT":         c.Shutdown.Timeout,
	}
	for name, value := range positive {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, value))
		}
	}

	nonNegative := map[string]string{
		"BATCH_CALL_DELAY":      c.Batch.CallDelay,
		"READINESS_DRAIN_DELAY": c.Shutdown.ReadinessDrainDelay,
	}
	for name, value := range nonNegative {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, value))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) GetBridgeTimeoutDuration() time.Duration {
	return parseDuration(c.Bridge.Timeout, 30*time.Second)
}

func (c *Config) GetSessionIdleTimeoutDuration() time.Duration {
	return parseDuration(c.Session.IdleTimeout, 30*time.Minute)
}

func (c *Config) GetSessionSweepIntervalDuration() time.Duration {
	return parseDuration(c.Session.SweepInterval, 5*time.Minute)
}

func (c *Config) GetBatchCallDelayDuration() time.Duration {
	return parseDuration(c.Batch.CallDelay, time.Second)
}

func (c *Config) GetBatchCallTimeoutDuration() time.Duration {
	return parseDuration(c.Batch.CallTimeout, 30*time.Second)
}

func (c *Config) GetMonitorIntervalDuration() time.Duration {
	return parseDuration(c.Monitor.Interval, time.Minute)
}

func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Shutdown.Timeout, 10*time.Second)
}

func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Shutdown.ReadinessDrainDelay, 0)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
