// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Statements
// =============================================================================

// Statement is one analyzed statement of a function body.
type Statement interface {
	// Target returns the expression the statement evaluates. May be nil for
	// a bare `return;`.
	Target() Node

	// Line returns the 1-based statement line, or 0 when unknown.
	Line() int

	statementNode()
}

// ReturnStatement is `return argument`. The Python projection lowers
// assignments to implicit returns when a body has no explicit return.
type ReturnStatement struct {
	Span
	Argument Node
}

// Target implements Statement.
func (s *ReturnStatement) Target() Node { return s.Argument }

func (*ReturnStatement) statementNode() {}

// ExpressionStatement is an expression evaluated for its effect, such as
// `x.trim();` in a JavaScript body.
type ExpressionStatement struct {
	Span
	Expression Node
}

// Target implements Statement.
func (s *ExpressionStatement) Target() Node { return s.Expression }

func (*ExpressionStatement) statementNode() {}

// =============================================================================
// Function unit
// =============================================================================

// FunctionUnit is the single function a projection extracted from source.
//
// Description:
//
//	Name is "anon" when the projection found no named function and fell back
//	to top-level statements. An empty Body is valid and means "no findings".
//
// Thread Safety:
//
//	Built fresh per analysis and never mutated afterwards.
type FunctionUnit struct {
	Name     string
	Params   []*Identifier
	Body     []Statement
	Language Language
}

// AnonymousFunctionName is used when no function declaration was found.
const AnonymousFunctionName = "anon"

// NewFunctionUnit returns an empty unit for lang.
func NewFunctionUnit(lang Language) *FunctionUnit {
	return &FunctionUnit{
		Name:     AnonymousFunctionName,
		Params:   make([]*Identifier, 0),
		Body:     make([]Statement, 0),
		Language: lang,
	}
}

// ParamNames returns the parameter names in declaration order.
func (f *FunctionUnit) ParamNames() []string {
	names := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		names = append(names, p.Name)
	}
	return names
}

// =============================================================================
// Languages
// =============================================================================

// Language is a supported source language.
type Language string

const (
	// LanguageJavaScript is projected through tree-sitter.
	LanguageJavaScript Language = "javascript"

	// LanguagePython is projected through the regex extractor.
	LanguagePython Language = "python"
)

// ErrUnsupportedLanguage is returned for language names outside the MVP set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ParseLanguage normalizes a language name.
//
// Description:
//
//	Accepts "js", "javascript", "python" and "py" in any letter case, with
//	surrounding whitespace ignored. The UI sends "JavaScript" and "Python".
//
// Outputs:
//
//	Language - The canonical language.
//	error    - Wraps ErrUnsupportedLanguage for anything else.
func ParseLanguage(name string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "js", "javascript":
		return LanguageJavaScript, nil
	case "py", "python":
		return LanguagePython, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
	}
}

// RulePrefix returns the namespace rule ids are reported under.
func (l Language) RulePrefix() string {
	switch l {
	case LanguagePython:
		return "py"
	default:
		return "js"
	}
}

// String returns the canonical name.
func (l Language) String() string { return string(l) }
