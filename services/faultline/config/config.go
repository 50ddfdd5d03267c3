// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Faultline service configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// environment overrides, and are validated last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables that override file values.
const (
	EnvPort         = "PORT"
	EnvAddr         = "FAULTLINE_ADDR"
	EnvDeadline     = "FAULTLINE_DEADLINE"
	EnvIsolation    = "FAULTLINE_ISOLATION"
	EnvOtelExporter = "FAULTLINE_OTEL_EXPORTER"
	EnvOtelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvRulesFile    = "FAULTLINE_RULES_FILE"
)

// MaxConfigFileSize bounds the config file read.
const MaxConfigFileSize = 1 << 20

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Host      HostConfig      `yaml:"host" validate:"required"`
	Telemetry TelemetryConfig `yaml:"telemetry" validate:"required"`
	Rules     RulesConfig     `yaml:"rules"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string          `yaml:"addr" validate:"required"`
	BodyLimitBytes int64           `yaml:"body_limit_bytes" validate:"gt=0"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	CORSOrigins    []string        `yaml:"cors_origins"`
	Debug          bool            `yaml:"debug"`
}

// RateLimitConfig bounds /analyze. RPS of zero disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// HostConfig configures the execution host.
type HostConfig struct {
	Deadline      time.Duration `yaml:"deadline" validate:"gt=0"`
	Isolation     string        `yaml:"isolation" validate:"oneof=process inprocess"`
	WorkerCommand []string      `yaml:"worker_command"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Exporter    string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	ServiceName string `yaml:"service_name" validate:"required"`
}

// RulesConfig extends the built-in type-inference rules.
type RulesConfig struct {
	ExtraFile string `yaml:"extra_file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3001",
			BodyLimitBytes: 1 << 20,
			RateLimit:      RateLimitConfig{RPS: 20, Burst: 40},
			CORSOrigins:    []string{"*"},
		},
		Host: HostConfig{
			Deadline:  2000 * time.Millisecond,
			Isolation: "process",
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			ServiceName: "faultline",
		},
	}
}

// Load builds the configuration.
//
// Description:
//
//	Starts from DefaultConfig, overlays the YAML file at path when path is
//	non-empty, applies environment overrides and validates the result.
//
// Inputs:
//
//	path - Optional YAML file path. Empty means defaults plus environment.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error   - File, parse or validation failure. Validation failures wrap
//	          ErrInvalidConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if info.Size() > MaxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		slog.Debug("loaded config file", slog.String("path", path))
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// applyEnv overlays environment overrides. PORT is honored for platforms
// that assign the listening port; FAULTLINE_ADDR wins over it.
func applyEnv(cfg *Config) error {
	if port := os.Getenv(EnvPort); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, EnvPort, port)
		}
		cfg.Server.Addr = ":" + port
	}
	if addr := os.Getenv(EnvAddr); addr != "" {
		cfg.Server.Addr = addr
	}
	if d := os.Getenv(EnvDeadline); d != "" {
		parsed, err := parseDuration(d)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvDeadline, err)
		}
		cfg.Host.Deadline = parsed
	}
	if iso := os.Getenv(EnvIsolation); iso != "" {
		cfg.Host.Isolation = strings.ToLower(strings.TrimSpace(iso))
	}
	if exp := os.Getenv(EnvOtelExporter); exp != "" {
		cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(exp))
	}
	if ep := os.Getenv(EnvOtelEndpoint); ep != "" {
		cfg.Telemetry.Endpoint = ep
	}
	if rules := os.Getenv(EnvRulesFile); rules != "" {
		cfg.Rules.ExtraFile = rules
	}
	return nil
}

// parseDuration accepts Go durations ("2s") and bare milliseconds ("2000").
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
