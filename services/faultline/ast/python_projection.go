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
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var (
	pyDefPattern    = regexp.MustCompile(`def\s+([A-Za-z0-9_]+)\s*\(([^)]*)\)\s*(?:->[^:\n]*)?:`)
	pyReturnPattern = regexp.MustCompile(`\breturn[ \t]+([^\n]+)`)
	pyAssignPattern = regexp.MustCompile(`(?m)^[ \t]*([A-Za-z_][A-Za-z0-9_]*)[ \t]*=[ \t]*([^=\n][^\n]*)$`)
	pyTokenPattern  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\d+|'[^']*'|"[^"]*"|[.()\[\]]`)
	pyNamePattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pyNumberPattern = regexp.MustCompile(`^\d+$`)
)

// pyPrefixKeywords are dropped when they lead an expression so that
// `return not user.active` still roots the chain at `user`.
var pyPrefixKeywords = map[string]bool{
	"not":    true,
	"await":  true,
	"yield":  true,
	"lambda": true,
}

// PythonProjectorOption configures a PythonProjector.
type PythonProjectorOption func(*PythonProjector)

// WithPythonMaxSourceSize sets the maximum source size the projector accepts.
func WithPythonMaxSourceSize(bytes int) PythonProjectorOption {
	return func(p *PythonProjector) {
		if bytes > 0 {
			p.maxSourceSize = bytes
		}
	}
}

// PythonProjector is the deterministic, regex-driven Python front end.
//
// Description:
//
//	Locates the first `def name(params):`, takes the first `return <expr>`
//	line of its body (splitting top-level `or` operands into separate
//	returns), and falls back to `name = <expr>` assignment lines when the
//	body has no return. Each expression is tokenized and folded left to
//	right into the canonical tree.
//
//	This is a stand-in for a grammar-correct parser. Anything behind the
//	Projector interface can replace it without touching the inference engine.
//
// Thread Safety:
//
//	PythonProjector is stateless after construction and safe for concurrent use.
type PythonProjector struct {
	maxSourceSize int
}

// NewPythonProjector creates a PythonProjector.
func NewPythonProjector(opts ...PythonProjectorOption) *PythonProjector {
	p := &PythonProjector{maxSourceSize: DefaultMaxSourceSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language implements Projector.
func (p *PythonProjector) Language() Language { return LanguagePython }

// Project implements Projector.
//
// Outputs:
//
//	*FunctionUnit - Never nil when error is nil. Empty body when nothing matched.
//	error         - Only for cancellation or oversized input.
func (p *PythonProjector) Project(ctx context.Context, source []byte) (*FunctionUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("python projection canceled: %w", err)
	}
	if len(source) > p.maxSourceSize {
		return nil, ErrSourceTooLarge
	}

	_, span := tracer.Start(ctx, "PythonProjector.Project")
	defer span.End()

	unit := p.Extract(string(source))

	span.SetAttributes(
		attribute.String("function", unit.Name),
		attribute.Int("params", len(unit.Params)),
		attribute.Int("statements", len(unit.Body)),
	)
	return unit, nil
}

// Extract projects source into a FunctionUnit. It never panics: any failure
// yields a unit with an empty body.
func (p *PythonProjector) Extract(source string) (unit *FunctionUnit) {
	unit = NewFunctionUnit(LanguagePython)

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Warn("python projection recovered from panic",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			unit = NewFunctionUnit(LanguagePython)
		}
	}()

	m := pyDefPattern.FindStringSubmatchIndex(source)
	if m == nil {
		// No function: treat the whole source as top-level statements.
		p.appendAssignments(unit, source, 0, source)
		return unit
	}

	unit.Name = source[m[2]:m[3]]
	unit.Params = parsePythonParams(source[m[4]:m[5]], lineAt(source, m[0]))

	bodyStart := m[1]
	body := functionBody(source[bodyStart:])

	if r := pyReturnPattern.FindStringSubmatchIndex(body); r != nil {
		line := lineAt(source, bodyStart+r[0])
		expr := strings.TrimSpace(stripPythonComment(body[r[2]:r[3]]))
		for _, operand := range splitTopLevelOr(expr) {
			if node := foldPythonExpression(operand, line); node != nil {
				unit.Body = append(unit.Body, &ReturnStatement{Span: Span{StartLine: line}, Argument: node})
			}
		}
	}

	if len(unit.Body) == 0 {
		p.appendAssignments(unit, body, bodyStart, source)
	}
	return unit
}

// appendAssignments lowers every `name = <expr>` line in text to an implicit
// return, in source order. offset is text's position inside full.
func (p *PythonProjector) appendAssignments(unit *FunctionUnit, text string, offset int, full string) {
	for _, am := range pyAssignPattern.FindAllStringSubmatchIndex(text, -1) {
		rhs := strings.TrimSpace(stripPythonComment(text[am[4]:am[5]]))
		if rhs == "" {
			continue
		}
		line := lineAt(full, offset+am[2])
		if node := foldPythonExpression(rhs, line); node != nil {
			unit.Body = append(unit.Body, &ReturnStatement{Span: Span{StartLine: line}, Argument: node})
		}
	}
}

// parsePythonParams returns bare parameter names. Defaults, annotations and
// star prefixes are dropped.
func parsePythonParams(list string, line int) []*Identifier {
	params := make([]*Identifier, 0, 4)
	for _, raw := range strings.Split(list, ",") {
		name := strings.TrimSpace(raw)
		if i := strings.IndexAny(name, ":="); i >= 0 {
			name = strings.TrimSpace(name[:i])
		}
		name = strings.TrimLeft(name, "*")
		if name == "" || name == "/" {
			continue
		}
		params = append(params, &Identifier{Span: Span{StartLine: line}, Name: name})
	}
	return params
}

// functionBody cuts rest (the text after `def ...:`) at the first
// non-indented line, keeping a one-line body on the def line itself.
func functionBody(rest string) string {
	lines := strings.SplitAfter(rest, "\n")
	if len(lines) == 0 {
		return rest
	}
	end := len(lines[0])
	for _, ln := range lines[1:] {
		trimmed := strings.TrimSpace(ln)
		if trimmed != "" && ln[0] != ' ' && ln[0] != '\t' {
			break
		}
		end += len(ln)
	}
	return rest[:end]
}

// splitTopLevelOr splits expr on `or` operators outside brackets and quotes.
func splitTopLevelOr(expr string) []string {
	parts := make([]string, 0, 2)
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == 'o' && i > 0 && isPySpace(expr[i-1]) &&
			i+2 < len(expr) && expr[i+1] == 'r' && isPySpace(expr[i+2]):
			parts = appendTrimmed(parts, expr[start:i])
			start = i + 2
			i++
		}
	}
	return appendTrimmed(parts, expr[start:])
}

func appendTrimmed(parts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func isPySpace(c byte) bool { return c == ' ' || c == '\t' }

// stripPythonComment drops a trailing `# ...` that is not inside a string.
func stripPythonComment(s string) string {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return s[:i]
		}
	}
	return s
}

// lineAt returns the 1-based line of byte offset in s.
func lineAt(s string, offset int) int {
	if offset > len(s) {
		offset = len(s)
	}
	return strings.Count(s[:offset], "\n") + 1
}

// =============================================================================
// Expression folding
// =============================================================================

// tokenizePython splits an expression into names, integers, quoted strings
// and the punctuation `. ( ) [ ]`. Everything else is dropped.
func tokenizePython(expr string) []string {
	return pyTokenPattern.FindAllString(expr, -1)
}

// pyFolder folds a token stream into a canonical node in one left-to-right pass.
type pyFolder struct {
	tokens []string
	pos    int
	line   int
}

// foldPythonExpression tokenizes expr and folds it. Returns nil when the
// expression has no usable primary.
func foldPythonExpression(expr string, line int) Node {
	f := &pyFolder{tokens: tokenizePython(expr), line: line}
	return f.fold()
}

func (f *pyFolder) next() string {
	if f.pos >= len(f.tokens) {
		return ""
	}
	tok := f.tokens[f.pos]
	f.pos++
	return tok
}

func (f *pyFolder) peek() string {
	if f.pos >= len(f.tokens) {
		return ""
	}
	return f.tokens[f.pos]
}

func (f *pyFolder) span() Span { return Span{StartLine: f.line} }

func (f *pyFolder) fold() Node {
	node := f.primary()
	if node == nil {
		return nil
	}

	for f.pos < len(f.tokens) {
		switch tok := f.next(); tok {
		case ".":
			prop := f.next()
			if !pyNamePattern.MatchString(prop) {
				continue
			}
			member := &MemberExpression{
				Span:     f.span(),
				Object:   node,
				Property: &Identifier{Span: f.span(), Name: prop},
			}
			if f.peek() == "(" {
				f.pos++
				node = &CallExpression{Span: f.span(), Callee: member, Arguments: f.arguments()}
			} else {
				node = member
			}
		case "[":
			key := f.literal(f.next())
			if f.peek() == "]" {
				f.pos++
			}
			if key == nil {
				continue
			}
			node = &MemberExpression{Span: f.span(), Object: node, Property: key, Computed: true}
		case "(":
			node = &CallExpression{Span: f.span(), Callee: node, Arguments: f.arguments()}
		default:
			// Operators and trailing operands are outside the MVP chain model.
		}
	}
	return node
}

// primary returns the chain start, skipping leading keywords and punctuation.
func (f *pyFolder) primary() Node {
	for f.pos < len(f.tokens) {
		tok := f.next()
		if pyPrefixKeywords[tok] {
			continue
		}
		if node := f.literal(tok); node != nil {
			return node
		}
	}
	return nil
}

// literal converts a single token into a leaf node, or nil for punctuation.
func (f *pyFolder) literal(tok string) Node {
	switch {
	case tok == "":
		return nil
	case tok[0] == '\'' || tok[0] == '"':
		return &StringLiteral{Span: f.span(), Value: tok[1 : len(tok)-1]}
	case pyNumberPattern.MatchString(tok):
		n := NewNumber(tok)
		n.StartLine = f.line
		return n
	case pyNamePattern.MatchString(tok):
		return &Identifier{Span: f.span(), Name: tok}
	default:
		return nil
	}
}

// arguments consumes tokens up to the matching `)`. Bare names, integers and
// strings become leaves; anything longer (nested calls, attribute access) is
// recorded as an Identifier holding its literal token text.
func (f *pyFolder) arguments() []Node {
	args := make([]Node, 0, 2)
	var current []string
	depth := 0

	flush := func() {
		switch len(current) {
		case 0:
		case 1:
			if node := f.literal(current[0]); node != nil {
				args = append(args, node)
			}
		default:
			args = append(args, &Identifier{Span: f.span(), Name: strings.Join(current, "")})
		}
		current = nil
	}

	for f.pos < len(f.tokens) {
		tok := f.next()
		switch tok {
		case "(", "[":
			depth++
			current = append(current, tok)
			continue
		case ")", "]":
			if depth == 0 {
				if tok == ")" {
					flush()
					return args
				}
				continue
			}
			depth--
			current = append(current, tok)
			continue
		}

		// A new leaf at depth 0 that does not follow a dot starts a new argument.
		if depth == 0 && tok != "." && len(current) > 0 && current[len(current)-1] != "." {
			flush()
		}
		current = append(current, tok)
	}
	flush()
	return args
}
