// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/faultline/services/faultline/config"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestInitTracing_None(t *testing.T) {
	resetGlobal(t)
	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected non-nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected the no-op provider to stay installed, got %T", otel.GetTracerProvider())
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	resetGlobal(t)
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(),
		config.TelemetryConfig{Exporter: ExporterStdout, ServiceName: "faultline-test"},
		WithWriter(&buf),
	)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("faultline.test").Start(context.Background(), "unit-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "unit-span") {
		t.Errorf("expected span in stdout export, got %q", out)
	}
	if !strings.Contains(out, "faultline-test") {
		t.Errorf("expected service name in resource, got %q", out)
	}
}

func TestInitTracing_Unknown(t *testing.T) {
	resetGlobal(t)
	if _, err := InitTracing(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
