// Package config loads and validates the sec360 configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/0x6d61/sec360/internal/scoring"
)

// ErrInvalidConfig is returned when the configuration cannot be decoded or
// fails validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the complete runtime configuration.
type Config struct {
	DatabasePath string      `yaml:"database_path" validate:"required"`
	CatalogPath  string      `yaml:"catalog_path"`
	ListenAddr   string      `yaml:"listen_addr" validate:"required"`
	LogLevel     string      `yaml:"log_level" validate:"oneof=debug info warn error"`
	Session      Session     `yaml:"session"`
	Scoring      Scoring     `yaml:"scoring"`
	Persistence  Persistence `yaml:"persistence"`
	API          API         `yaml:"api"`
	Leaderboard  Leaderboard `yaml:"leaderboard"`
}

// Session controls the session lifecycle.
type Session struct {
	IdleThresholdSeconds int `yaml:"idle_threshold_seconds" validate:"gt=0"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" validate:"gt=0"`
}

// Scoring holds the risk bands and line normalization.
type Scoring struct {
	Thresholds    scoring.Thresholds    `yaml:"thresholds"`
	Normalization scoring.Normalization `yaml:"normalization"`
}

// Persistence bounds how long record writes may take.
type Persistence struct {
	AttemptTimeoutMillis int     `yaml:"attempt_timeout_ms" validate:"gt=0"`
	MaxAttempts          int     `yaml:"max_attempts" validate:"gte=1,lte=20"`
	InitialBackoffMillis int     `yaml:"initial_backoff_ms" validate:"gt=0"`
	BackoffFactor        float64 `yaml:"backoff_factor" validate:"gte=1"`
	MaxBackoffMillis     int     `yaml:"max_backoff_ms" validate:"gtefield=InitialBackoffMillis"`
}

// API configures the HTTP surface.
type API struct {
	SubmitRatePerSecond float64 `yaml:"submit_rate_per_second" validate:"gt=0"`
	SubmitBurst         int     `yaml:"submit_burst" validate:"gte=1"`
	MaxCodeBytes        int     `yaml:"max_code_bytes" validate:"gt=0"`
}

// Leaderboard configures ranking.
type Leaderboard struct {
	MinSessions int `yaml:"min_sessions" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabasePath: "sec360.db",
		ListenAddr:   "127.0.0.1:8360",
		LogLevel:     "info",
		Session: Session{
			IdleThresholdSeconds: 300,
			SweepIntervalSeconds: 30,
		},
		Scoring: Scoring{
			Thresholds:    scoring.DefaultThresholds(),
			Normalization: scoring.DefaultNormalization(),
		},
		Persistence: Persistence{
			AttemptTimeoutMillis: 2000,
			MaxAttempts:          4,
			InitialBackoffMillis: 100,
			BackoffFactor:        2,
			MaxBackoffMillis:     2000,
		},
		API: API{
			SubmitRatePerSecond: 2,
			SubmitBurst:         5,
			MaxCodeBytes:        1 << 20,
		},
		Leaderboard: Leaderboard{
			MinSessions: 3,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, path, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SEC360_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("SEC360_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("SEC360_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SEC360_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SEC360_IDLE_THRESHOLD_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Session.IdleThresholdSeconds = i
		}
	}
}

// Validate checks struct tags and the cross-field scoring constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Normalization.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// IdleThreshold returns the session idle timeout.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Session.IdleThresholdSeconds) * time.Second
}

// SweepInterval returns how often idle sessions are checked.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalSeconds) * time.Second
}

// AttemptTimeout returns the deadline for a single record write.
func (p Persistence) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutMillis) * time.Millisecond
}

// InitialBackoff returns the wait before the second write attempt.
func (p Persistence) InitialBackoff() time.Duration {
	return time.Duration(p.InitialBackoffMillis) * time.Millisecond
}

// MaxBackoff caps the wait between write attempts.
func (p Persistence) MaxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffMillis) * time.Millisecond
}
