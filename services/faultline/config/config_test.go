// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvPort, EnvAddr, EnvDeadline, EnvIsolation, EnvOtelExporter, EnvOtelEndpoint, EnvRulesFile} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":3001" {
		t.Errorf("addr = %q, want :3001", cfg.Server.Addr)
	}
	if cfg.Server.BodyLimitBytes != 1<<20 {
		t.Errorf("body limit = %d, want 1MiB", cfg.Server.BodyLimitBytes)
	}
	if cfg.Host.Deadline != 2000*time.Millisecond {
		t.Errorf("deadline = %s, want 2s", cfg.Host.Deadline)
	}
	if cfg.Host.Isolation != "process" {
		t.Errorf("isolation = %q, want process", cfg.Host.Isolation)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("exporter = %q, want none", cfg.Telemetry.Exporter)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  debug: true
  rate_limit:
    rps: 5
    burst: 10
host:
  deadline: 500ms
  isolation: inprocess
rules:
  extra_file: /etc/faultline/rules.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || !cfg.Server.Debug {
		t.Errorf("server not overlaid: %+v", cfg.Server)
	}
	if cfg.Server.RateLimit.RPS != 5 || cfg.Server.RateLimit.Burst != 10 {
		t.Errorf("rate limit not overlaid: %+v", cfg.Server.RateLimit)
	}
	if cfg.Host.Deadline != 500*time.Millisecond || cfg.Host.Isolation != "inprocess" {
		t.Errorf("host not overlaid: %+v", cfg.Host)
	}
	if cfg.Rules.ExtraFile != "/etc/faultline/rules.yaml" {
		t.Errorf("rules file = %q", cfg.Rules.ExtraFile)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.BodyLimitBytes != 1<<20 || cfg.Telemetry.ServiceName != "faultline" {
		t.Errorf("defaults lost: %+v %+v", cfg.Server, cfg.Telemetry)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvDeadline, "1500")
	t.Setenv(EnvIsolation, "InProcess")
	t.Setenv(EnvOtelExporter, "stdout")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Host.Deadline != 1500*time.Millisecond {
		t.Errorf("deadline = %s", cfg.Host.Deadline)
	}
	if cfg.Host.Isolation != "inprocess" {
		t.Errorf("isolation = %q", cfg.Host.Isolation)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("exporter = %q", cfg.Telemetry.Exporter)
	}

	t.Setenv(EnvAddr, "0.0.0.0:7000")
	t.Setenv(EnvDeadline, "3s")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:7000" {
		t.Errorf("FAULTLINE_ADDR should win over PORT, got %q", cfg.Server.Addr)
	}
	if cfg.Host.Deadline != 3*time.Second {
		t.Errorf("deadline = %s", cfg.Host.Deadline)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad isolation", file: "host:\n  isolation: thread\n"},
		{name: "bad exporter", file: "telemetry:\n  exporter: jaeger\n"},
		{name: "otlp without endpoint", file: "telemetry:\n  exporter: otlp\n"},
		{name: "zero body limit", file: "server:\n  body_limit_bytes: 0\n"},
		{name: "negative rps", file: "server:\n  rate_limit:\n    rps: -1\n"},
		{name: "bad port", env: map[string]string{EnvPort: "http"}},
		{name: "bad deadline", env: map[string]string{EnvDeadline: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad_OTLPWithEndpoint(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOtelExporter, "otlp")
	t.Setenv(EnvOtelEndpoint, "localhost:4317")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("endpoint = %q", cfg.Telemetry.Endpoint)
	}
}
