// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host runs one analysis per request in an isolated worker bounded
// by a deadline. Every outcome (result, worker error, timeout, caller
// cancellation) is normalized into an Outcome, and the worker is terminated
// on every path.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/faultline/services/faultline/analyzer"
)

// DefaultDeadline is the fixed analysis deadline.
const DefaultDeadline = 2000 * time.Millisecond

// Outcome error strings.
const (
	ErrMsgTimedOut    = "Analyzer timed out"
	ErrMsgWorkerError = "Analyzer worker error"
	ErrMsgCanceled    = "Analyzer canceled"
)

// ErrWorkerExited is wrapped when a worker process exits without a result.
var ErrWorkerExited = errors.New("worker exited without a result")

var tracer = otel.Tracer("faultline.host")

// Request is what a worker analyzes.
type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Outcome is the host contract: {findings, meta} on success, plus
// {error, details} on timeout, crash or cancellation.
type Outcome struct {
	Findings []analyzer.Finding `json:"findings"`
	Error    string             `json:"error,omitempty"`
	Details  string             `json:"details,omitempty"`
	Meta     analyzer.Meta      `json:"meta"`
}

// Failed reports whether the host settled on a failure path. An analysis
// that completed with Meta.Error (e.g. an unsupported language) is not a
// host failure.
func (o Outcome) Failed() bool { return o.Error != "" }

func failure(msg, details string, durationMs int64) Outcome {
	m := msg
	return Outcome{
		Findings: make([]analyzer.Finding, 0),
		Error:    msg,
		Details:  details,
		Meta:     analyzer.Meta{DurationMs: durationMs, Error: &m},
	}
}

// =============================================================================
// Workers
// =============================================================================

// Worker is one in-flight analysis.
//
// Description:
//
//	A worker delivers at most one value on Results or Errors. Both channels
//	are buffered so the worker never blocks on a reader that has already
//	settled. Done is closed once the worker has fully stopped.
type Worker interface {
	Results() <-chan analyzer.Result
	Errors() <-chan error
	Done() <-chan struct{}

	// Terminate stops the worker. It is idempotent and safe to call after
	// the worker finished on its own.
	Terminate() error
}

// Spawner starts a worker for one request.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Worker, error)
}

// =============================================================================
// Host
// =============================================================================

// Option configures a Host.
type Option func(*Host)

// WithDeadline sets the analysis deadline.
func WithDeadline(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.deadline = d
		}
	}
}

// Host is the Execution Host.
//
// Description:
//
//	Submit spawns a fresh worker for every request. There is no pooling or
//	reuse, so no state crosses requests.
//
// Thread Safety:
//
//	Host is safe for concurrent use. Concurrent submissions are independent.
type Host struct {
	spawner  Spawner
	deadline time.Duration
	mode     string
}

// New creates a Host over spawner.
func New(spawner Spawner, opts ...Option) *Host {
	h := &Host{spawner: spawner, deadline: DefaultDeadline, mode: modeOf(spawner)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deadline returns the configured deadline.
func (h *Host) Deadline() time.Duration { return h.deadline }

// Submit runs one analysis under the deadline.
//
// Description:
//
//	Waits for the first of: the worker's result, the worker's error, the
//	deadline timer, or ctx cancellation. The select settles the request
//	exactly once. The worker is terminated on every path before Submit
//	returns.
//
// Inputs:
//
//	ctx      - Caller context. Cancellation settles with "Analyzer canceled".
//	code     - Source text.
//	language - Language name, passed through to the analyzer.
//
// Outputs:
//
//	Outcome - Always well formed; never an error return.
//
// Thread Safety: Safe for concurrent use.
func (h *Host) Submit(ctx context.Context, code, language string) Outcome {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "host.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", h.mode),
		attribute.String("language", language),
		attribute.Int64("deadline_ms", h.deadline.Milliseconds()),
	)

	activeWorkers.Inc()
	defer activeWorkers.Dec()

	worker, err := h.spawner.Spawn(ctx, Request{Code: code, Language: language})
	if err != nil {
		slog.Error("failed to spawn analysis worker", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		recordSubmission(h.mode, outcomeSpawnError, time.Since(start))
		return failure(ErrMsgWorkerError, err.Error(), time.Since(start).Milliseconds())
	}
	defer func() {
		if err := worker.Terminate(); err != nil {
			slog.Warn("worker termination failed", slog.String("error", err.Error()))
		}
	}()

	timer := time.NewTimer(h.deadline)
	defer timer.Stop()

	var out Outcome
	var label string

	select {
	case res := <-worker.Results():
		if res.Findings == nil {
			res.Findings = make([]analyzer.Finding, 0)
		}
		out = Outcome{Findings: res.Findings, Meta: res.Meta}
		label = outcomeSuccess

	case werr := <-worker.Errors():
		slog.Warn("analysis worker failed", slog.String("error", werr.Error()))
		span.RecordError(werr)
		out = failure(ErrMsgWorkerError, werr.Error(), time.Since(start).Milliseconds())
		label = outcomeWorkerError

	case <-timer.C:
		ms := h.deadline.Milliseconds()
		slog.Warn("analysis timed out", slog.Int64("deadline_ms", ms))
		out = failure(ErrMsgTimedOut, fmt.Sprintf("Analysis exceeded %dms", ms), ms)
		label = outcomeTimeout

	case <-ctx.Done():
		out = failure(ErrMsgCanceled, ctx.Err().Error(), time.Since(start).Milliseconds())
		label = outcomeCanceled
	}

	if out.Failed() {
		span.SetStatus(codes.Error, out.Error)
	}
	span.SetAttributes(attribute.String("outcome", label), attribute.Int("findings", len(out.Findings)))
	recordSubmission(h.mode, label, time.Since(start))
	return out
}

func modeOf(s Spawner) string {
	switch s.(type) {
	case *ProcessSpawner:
		return ModeProcess
	case *InProcessSpawner:
		return ModeInProcess
	default:
		return "custom"
	}
}
