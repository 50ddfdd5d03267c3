// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer is the engine boundary used by the CLI, the HTTP surface
// and the worker process. Analyze never returns an error and never panics:
// every failure is encoded in Result.Meta.Error.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/faultline/services/faultline/ast"
	"github.com/AleutianAI/faultline/services/faultline/infer"
)

// Error strings surfaced in Meta.Error.
const (
	ErrMsgFailed      = "Analyzer failed"
	ErrMsgCanceled    = "Analyzer canceled"
	ErrMsgTooLarge    = "Source exceeds maximum size"
	unsupportedPrefix = "Unsupported language: "
)

var tracer = otel.Tracer("faultline.analyzer")

// Finding is one issue as reported to callers.
type Finding struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     *int   `json:"line"`
	RuleID   string `json:"ruleId,omitempty"`
}

// Meta describes how the analysis went.
type Meta struct {
	DurationMs int64   `json:"durationMs"`
	Error      *string `json:"error"`
}

// Result is the engine call contract: findings plus meta. Findings is never
// nil and is empty whenever Meta.Error is set.
type Result struct {
	Findings []Finding `json:"findings"`
	Meta     Meta      `json:"meta"`
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool { return r.Meta.Error != nil }

// ErrorMessage returns Meta.Error or "".
func (r Result) ErrorMessage() string {
	if r.Meta.Error == nil {
		return ""
	}
	return *r.Meta.Error
}

// FailedResult returns an empty-findings result carrying msg.
func FailedResult(msg string, duration time.Duration) Result {
	m := msg
	return Result{
		Findings: make([]Finding, 0),
		Meta:     Meta{DurationMs: duration.Milliseconds(), Error: &m},
	}
}

// UnsupportedLanguageMessage returns the Meta.Error text for language.
func UnsupportedLanguageMessage(language string) string {
	return unsupportedPrefix + language
}

// =============================================================================
// Analyzer
// =============================================================================

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxSourceSize bounds the source size handed to the projections.
func WithMaxSourceSize(bytes int) Option {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxSourceSize = bytes
		}
	}
}

// Analyzer ties the projections to the inference engine.
//
// Description:
//
//	An Analyzer holds an immutable rule table and a source size bound.
//	Projectors are created per call.
//
// Thread Safety:
//
//	Analyzer is safe for concurrent use.
type Analyzer struct {
	engine        *infer.Engine
	maxSourceSize int
}

// New creates an Analyzer over table.
func New(table *infer.RuleTable, opts ...Option) *Analyzer {
	a := &Analyzer{
		engine:        infer.NewEngine(table),
		maxSourceSize: ast.DefaultMaxSourceSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	defaultOnce     sync.Once
	defaultAnalyzer *Analyzer
	defaultErr      error
)

// Default returns the process-wide Analyzer built over the cached rule table.
func Default(ctx context.Context) (*Analyzer, error) {
	defaultOnce.Do(func() {
		table, err := infer.GetRuleTable(ctx)
		if err != nil {
			defaultErr = fmt.Errorf("loading rule table: %w", err)
			return
		}
		defaultAnalyzer = New(table)
	})
	return defaultAnalyzer, defaultErr
}

// Analyze runs the default Analyzer. See (*Analyzer).Analyze.
func Analyze(ctx context.Context, code, language string) Result {
	start := time.Now()
	a, err := Default(ctx)
	if err != nil {
		slog.Error("analyzer unavailable", slog.String("error", err.Error()))
		recordAnalysis("unknown", outcomeError, time.Since(start), 0)
		return FailedResult(ErrMsgFailed, time.Since(start))
	}
	return a.Analyze(ctx, code, language)
}

// Report runs projection and inference and returns the full report,
// including assumptions.
//
// Inputs:
//
//	ctx  - Context for cancellation and tracing.
//	code - Source text.
//	lang - Parsed language.
//
// Outputs:
//
//	*infer.Report - Never nil when error is nil.
//	error         - Projection errors (cancellation, oversized input).
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) Report(ctx context.Context, code string, lang ast.Language) (*infer.Report, error) {
	ctx, span := tracer.Start(ctx, "analyzer.Report")
	defer span.End()
	span.SetAttributes(attribute.String("language", lang.String()))

	if strings.TrimSpace(code) == "" {
		return &infer.Report{Assumptions: make([]infer.Assumption, 0), Issues: make([]infer.Issue, 0)}, nil
	}

	projector, err := a.projector(lang)
	if err != nil {
		return nil, err
	}
	unit, err := projector.Project(ctx, []byte(code))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "projection failed")
		return nil, err
	}

	report := a.engine.Infer(unit)
	span.SetAttributes(
		attribute.String("function", unit.Name),
		attribute.Int("assumptions", len(report.Assumptions)),
		attribute.Int("issues", len(report.Issues)),
	)
	return report, nil
}

func (a *Analyzer) projector(lang ast.Language) (ast.Projector, error) {
	switch lang {
	case ast.LanguageJavaScript:
		return ast.NewJavaScriptProjector(ast.WithJSMaxSourceSize(a.maxSourceSize)), nil
	case ast.LanguagePython:
		return ast.NewPythonProjector(ast.WithPythonMaxSourceSize(a.maxSourceSize)), nil
	default:
		return ast.ProjectorFor(lang)
	}
}

// Analyze is the engine call contract.
//
// Description:
//
//	Accepts "js", "javascript", "python" and "py" in any letter case; an
//	empty language means JavaScript. Empty or whitespace-only code yields
//	no findings and no error. Findings are the ranked issues, reported as
//	{severity, message: title, line}.
//
// Inputs:
//
//	ctx      - Context for cancellation and tracing.
//	code     - Source text.
//	language - Language name as sent by the caller.
//
// Outputs:
//
//	Result - Always well formed. Meta.Error is set for unsupported languages,
//	         cancellation, oversized input and internal failures.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) Analyze(ctx context.Context, code, language string) (result Result) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "analyzer.Analyze")
	defer span.End()

	langLabel := "unknown"
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("analysis panicked",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			span.SetStatus(codes.Error, "panic")
			recordAnalysis(langLabel, outcomePanic, time.Since(start), 0)
			result = FailedResult(ErrMsgFailed, time.Since(start))
		}
	}()

	if strings.TrimSpace(code) == "" {
		recordAnalysis(langLabel, outcomeSuccess, time.Since(start), 0)
		return Result{Findings: make([]Finding, 0), Meta: Meta{DurationMs: time.Since(start).Milliseconds()}}
	}

	name := language
	if strings.TrimSpace(name) == "" {
		name = ast.LanguageJavaScript.String()
	}
	lang, err := ast.ParseLanguage(name)
	if err != nil {
		span.SetStatus(codes.Error, "unsupported language")
		recordAnalysis(langLabel, outcomeUnsupported, time.Since(start), 0)
		return FailedResult(UnsupportedLanguageMessage(language), time.Since(start))
	}
	langLabel = lang.String()
	span.SetAttributes(attribute.String("language", langLabel), attribute.Int("code_bytes", len(code)))

	report, err := a.Report(ctx, code, lang)
	if err != nil {
		outcome, msg := classifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		slog.Debug("analysis failed", slog.String("language", langLabel), slog.String("error", err.Error()))
		recordAnalysis(langLabel, outcome, time.Since(start), 0)
		return FailedResult(msg, time.Since(start))
	}

	findings := FindingsFromIssues(report.Issues)
	recordAnalysis(langLabel, outcomeSuccess, time.Since(start), len(findings))
	for _, issue := range report.Issues {
		issuesTotal.WithLabelValues(issue.RuleID, string(issue.Severity)).Inc()
	}

	return Result{
		Findings: findings,
		Meta:     Meta{DurationMs: time.Since(start).Milliseconds()},
	}
}

// FindingsFromIssues converts ranked issues into findings, keeping order.
func FindingsFromIssues(issues []infer.Issue) []Finding {
	findings := make([]Finding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, Finding{
			Severity: string(issue.Severity),
			Message:  issue.Title,
			Line:     issue.Line,
			RuleID:   issue.RuleID,
		})
	}
	return findings
}

// classifyError maps a projection error to a metric outcome and the
// Meta.Error text.
func classifyError(err error) (string, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled, ErrMsgCanceled
	case errors.Is(err, ast.ErrSourceTooLarge):
		return outcomeTooLarge, ErrMsgTooLarge
	case errors.Is(err, ast.ErrUnsupportedLanguage):
		return outcomeUnsupported, ErrMsgFailed
	default:
		return outcomeError, ErrMsgFailed
	}
}
