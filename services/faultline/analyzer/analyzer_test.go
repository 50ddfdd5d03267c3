// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/faultline/services/faultline/ast"
	"github.com/AleutianAI/faultline/services/faultline/infer"
)

func TestAnalyze_Shape(t *testing.T) {
	inputs := []struct {
		name     string
		code     string
		language string
	}{
		{"javascript", "function f() { return 1; }", "JavaScript"},
		{"invalid javascript", "this is not valid js", "JavaScript"},
		{"python", "def f(d):\n    return d.get(\"x\")", "Python"},
		{"empty", "", "js"},
		{"whitespace", "   \n\t", "python"},
		{"garbage python", "))((", "py"},
		{"unsupported", "x", "ruby"},
	}
	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			res := Analyze(context.Background(), tt.code, tt.language)
			assert.NotNil(t, res.Findings)
			assert.GreaterOrEqual(t, res.Meta.DurationMs, int64(0))
			if res.Failed() {
				assert.Empty(t, res.Findings)
			}

			raw, err := json.Marshal(res)
			require.NoError(t, err)
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(raw, &decoded))
			assert.Contains(t, decoded, "findings")
			meta, ok := decoded["meta"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, meta, "durationMs")
			assert.Contains(t, meta, "error")
		})
	}
}

func TestAnalyze_EmptyCodeHasNoError(t *testing.T) {
	res := Analyze(context.Background(), "  ", "ruby")
	assert.False(t, res.Failed())
	assert.Empty(t, res.Findings)
}

func TestAnalyze_UnsupportedLanguage(t *testing.T) {
	res := Analyze(context.Background(), "x = 1", "go")
	require.True(t, res.Failed())
	assert.Equal(t, "Unsupported language: go", res.ErrorMessage())
	assert.Empty(t, res.Findings)
}

func TestAnalyze_DefaultsToJavaScript(t *testing.T) {
	res := Analyze(context.Background(), "function f(obj) { return obj.a.b; }", "")
	require.False(t, res.Failed(), res.ErrorMessage())
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "high", res.Findings[0].Severity)
	assert.Equal(t, "js:unsafe-property-access", res.Findings[0].RuleID)
	require.NotNil(t, res.Findings[0].Line)
	assert.Equal(t, 1, *res.Findings[0].Line)
}

func TestAnalyze_FindingsMirrorIssues(t *testing.T) {
	res := Analyze(context.Background(), "function f(api){ fetch('/x').then(res=>res.json()); }", "js")
	require.False(t, res.Failed())
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "js:fetch-response-json", res.Findings[0].RuleID)
	assert.Contains(t, res.Findings[0].Message, "fetch")
}

func TestAnalyze_Python(t *testing.T) {
	res := Analyze(context.Background(), "def f(d):\n    return d.get(\"x\")", "Python")
	require.False(t, res.Failed())
	require.NotEmpty(t, res.Findings)
	assert.True(t, strings.HasPrefix(res.Findings[0].RuleID, "py:"))
}

func TestAnalyze_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Analyze(ctx, "function f(o) { return o.a; }", "js")
	require.True(t, res.Failed())
	assert.Equal(t, ErrMsgCanceled, res.ErrorMessage())
}

func TestAnalyze_SourceTooLarge(t *testing.T) {
	table, err := infer.GetRuleTable(context.Background())
	require.NoError(t, err)
	a := New(table, WithMaxSourceSize(8))

	res := a.Analyze(context.Background(), "function f(o) { return o.a; }", "js")
	require.True(t, res.Failed())
	assert.Equal(t, ErrMsgTooLarge, res.ErrorMessage())
}

func TestAnalyze_RecoversFromPanic(t *testing.T) {
	// A nil engine table panics inside inference; the boundary must absorb it.
	a := &Analyzer{engine: infer.NewEngine(nil), maxSourceSize: ast.DefaultMaxSourceSize}
	res := a.Analyze(context.Background(), "function f(arr) { return arr.map(x => x); }", "js")
	require.True(t, res.Failed())
	assert.Equal(t, ErrMsgFailed, res.ErrorMessage())
	assert.Empty(t, res.Findings)
}

func TestReport_IncludesAssumptions(t *testing.T) {
	a, err := Default(context.Background())
	require.NoError(t, err)

	report, err := a.Report(context.Background(), "function f(obj) { return obj.a.b; }", ast.LanguageJavaScript)
	require.NoError(t, err)
	assert.Contains(t, report.Assumptions, infer.Assumption{Text: "obj.a.b exists", Confidence: infer.ConfidenceHigh})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err     error
		outcome string
		msg     string
	}{
		{context.Canceled, outcomeCanceled, ErrMsgCanceled},
		{context.DeadlineExceeded, outcomeCanceled, ErrMsgCanceled},
		{ast.ErrSourceTooLarge, outcomeTooLarge, ErrMsgTooLarge},
		{errors.New("boom"), outcomeError, ErrMsgFailed},
	}
	for _, tt := range tests {
		outcome, msg := classifyError(tt.err)
		assert.Equal(t, tt.outcome, outcome, tt.err.Error())
		assert.Equal(t, tt.msg, msg, tt.err.Error())
	}
}
