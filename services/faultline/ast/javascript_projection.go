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
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.opentelemetry.io/otel/attribute"
)

// tree-sitter-javascript node types the projection understands.
const (
	jsNodeProgram               = "program"
	jsNodeFunctionDeclaration   = "function_declaration"
	jsNodeGeneratorFunctionDecl = "generator_function_declaration"
	jsNodeFunctionExpression    = "function_expression"
	jsNodeFunction              = "function"
	jsNodeGeneratorFunction     = "generator_function"
	jsNodeArrowFunction         = "arrow_function"
	jsNodeMethodDefinition      = "method_definition"
	jsNodeFormalParameters      = "formal_parameters"
	jsNodeStatementBlock        = "statement_block"
	jsNodeReturnStatement       = "return_statement"
	jsNodeExpressionStatement   = "expression_statement"
	jsNodeThrowStatement        = "throw_statement"
	jsNodeLexicalDeclaration    = "lexical_declaration"
	jsNodeVariableDeclaration   = "variable_declaration"
	jsNodeVariableDeclarator    = "variable_declarator"
	jsNodeParenthesized         = "parenthesized_expression"
	jsNodeAwaitExpression       = "await_expression"
	jsNodeMemberExpression      = "member_expression"
	jsNodeSubscriptExpression   = "subscript_expression"
	jsNodeCallExpression        = "call_expression"
	jsNodeOptionalChain         = "optional_chain"
	jsNodeIdentifier            = "identifier"
	jsNodePropertyIdentifier    = "property_identifier"
	jsNodePrivatePropertyIdent  = "private_property_identifier"
	jsNodeShorthandPropertyID   = "shorthand_property_identifier"
	jsNodeThis                  = "this"
	jsNodeSuper                 = "super"
	jsNodeString                = "string"
	jsNodeTemplateString        = "template_string"
	jsNodeNumber                = "number"
	jsNodeAssignmentPattern     = "assignment_pattern"
	jsNodeRestPattern           = "rest_pattern"
	jsNodeComment               = "comment"
	jsNodeClassDeclaration      = "class_declaration"
)

// maxJSDepth bounds recursion on pathological nesting.
const maxJSDepth = 256

// JavaScriptProjectorOption configures a JavaScriptProjector.
type JavaScriptProjectorOption func(*JavaScriptProjector)

// WithJSMaxSourceSize sets the maximum source size the projector accepts.
func WithJSMaxSourceSize(bytes int) JavaScriptProjectorOption {
	return func(p *JavaScriptProjector) {
		if bytes > 0 {
			p.maxSourceSize = bytes
		}
	}
}

// JavaScriptProjector projects JavaScript source into the canonical tree.
//
// Description:
//
//	Uses tree-sitter to parse the source, then converts the first function
//	it finds (declaration, expression, arrow function or method) into a
//	FunctionUnit. When the source has no function, the program's top-level
//	statements are used as the body. tree-sitter is error tolerant, so
//	syntactically invalid source yields whatever statements survive.
//
// Thread Safety:
//
//	JavaScriptProjector is safe for concurrent use. Each Project call creates
//	its own tree-sitter parser instance.
//
// Example:
//
//	p := NewJavaScriptProjector()
//	unit, err := p.Project(ctx, []byte("function f(obj) { return obj.a.b; }"))
type JavaScriptProjector struct {
	maxSourceSize int
}

// NewJavaScriptProjector creates a JavaScriptProjector.
func NewJavaScriptProjector(opts ...JavaScriptProjectorOption) *JavaScriptProjector {
	p := &JavaScriptProjector{maxSourceSize: DefaultMaxSourceSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language implements Projector.
func (p *JavaScriptProjector) Language() Language { return LanguageJavaScript }

// Project implements Projector.
//
// Inputs:
//
//	ctx    - Context for cancellation. Checked before and after parsing.
//	source - Raw JavaScript source bytes.
//
// Outputs:
//
//	*FunctionUnit - Never nil when error is nil.
//	error         - Cancellation, oversized input, or a tree-sitter failure.
//
// Thread Safety: This method is safe for concurrent use.
func (p *JavaScriptProjector) Project(ctx context.Context, source []byte) (*FunctionUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("javascript projection canceled before start: %w", err)
	}
	if len(source) > p.maxSourceSize {
		return nil, ErrSourceTooLarge
	}

	ctx, span := tracer.Start(ctx, "JavaScriptProjector.Project")
	defer span.End()

	unit := NewFunctionUnit(LanguageJavaScript)
	if !utf8.Valid(source) {
		slog.Debug("javascript source is not valid UTF-8, skipping projection")
		return unit, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("javascript projection canceled after tree-sitter: %w", err)
	}

	c := &jsConverter{content: source}
	root := tree.RootNode()

	if fn := c.findFirstFunction(root, 0); fn != nil {
		unit.Name = c.functionName(fn)
		unit.Params = c.parameters(fn)
		unit.Body = c.functionBody(fn)
	} else {
		unit.Body = c.statements(root, 0)
	}

	span.SetAttributes(
		attribute.String("function", unit.Name),
		attribute.Int("params", len(unit.Params)),
		attribute.Int("statements", len(unit.Body)),
		attribute.Bool("has_error", root.HasError()),
	)
	return unit, nil
}

// jsConverter holds the source bytes while walking one tree.
type jsConverter struct {
	content []byte
}

func (c *jsConverter) text(n *sitter.Node) string {
	return n.Content(c.content)
}

func jsLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func isJSFunction(n *sitter.Node) bool {
	if !n.IsNamed() {
		return false
	}
	switch n.Type() {
	case jsNodeFunctionDeclaration, jsNodeGeneratorFunctionDecl, jsNodeFunctionExpression,
		jsNodeFunction, jsNodeGeneratorFunction, jsNodeArrowFunction, jsNodeMethodDefinition:
		return true
	}
	return false
}

// findFirstFunction returns the first function node in pre-order.
func (c *jsConverter) findFirstFunction(n *sitter.Node, depth int) *sitter.Node {
	if n == nil || depth > maxJSDepth {
		return nil
	}
	if isJSFunction(n) {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if fn := c.findFirstFunction(n.NamedChild(i), depth+1); fn != nil {
			return fn
		}
	}
	return nil
}

// functionName returns the declared name, the variable a function expression
// is bound to, or AnonymousFunctionName.
func (c *jsConverter) functionName(fn *sitter.Node) string {
	if name := fn.ChildByFieldName("name"); name != nil {
		return c.text(name)
	}
	if parent := fn.Parent(); parent != nil && parent.Type() == jsNodeVariableDeclarator {
		if name := parent.ChildByFieldName("name"); name != nil {
			return c.text(name)
		}
	}
	return AnonymousFunctionName
}

// parameters returns the bare parameter names of fn. Destructuring patterns
// have no single name and are skipped.
func (c *jsConverter) parameters(fn *sitter.Node) []*Identifier {
	params := make([]*Identifier, 0, 4)

	if single := fn.ChildByFieldName("parameter"); single != nil {
		return append(params, &Identifier{Span: Span{StartLine: jsLine(single)}, Name: c.text(single)})
	}

	list := fn.ChildByFieldName("parameters")
	if list == nil || list.Type() != jsNodeFormalParameters {
		return params
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case jsNodeIdentifier:
		case jsNodeAssignmentPattern:
			p = p.ChildByFieldName("left")
		case jsNodeRestPattern:
			p = p.NamedChild(0)
		default:
			p = nil
		}
		if p != nil && p.Type() == jsNodeIdentifier {
			params = append(params, &Identifier{Span: Span{StartLine: jsLine(p)}, Name: c.text(p)})
		}
	}
	return params
}

// functionBody converts the body of fn. Expression-bodied arrow functions
// become a single ReturnStatement.
func (c *jsConverter) functionBody(fn *sitter.Node) []Statement {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return make([]Statement, 0)
	}
	if body.Type() == jsNodeStatementBlock {
		return c.statements(body, 0)
	}
	if expr := c.expression(body, 0); expr != nil {
		return []Statement{&ReturnStatement{Span: Span{StartLine: jsLine(body)}, Argument: expr}}
	}
	return make([]Statement, 0)
}

// statements converts the statements under a block or program. Compound
// statements (if, for, try, ...) are flattened: their nested statements and
// any parenthesized conditions are collected in source order. Nested
// function and class declarations are separate functions and are skipped.
func (c *jsConverter) statements(block *sitter.Node, depth int) []Statement {
	out := make([]Statement, 0, int(block.NamedChildCount()))
	if depth > maxJSDepth {
		return out
	}

	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		switch stmt.Type() {
		case jsNodeComment, jsNodeFunctionDeclaration, jsNodeGeneratorFunctionDecl, jsNodeClassDeclaration:
			continue

		case jsNodeReturnStatement:
			ret := &ReturnStatement{Span: Span{StartLine: jsLine(stmt)}}
			if stmt.NamedChildCount() > 0 {
				ret.Argument = c.expression(stmt.NamedChild(0), depth+1)
			}
			out = append(out, ret)

		case jsNodeExpressionStatement:
			if stmt.NamedChildCount() == 0 {
				continue
			}
			if expr := c.expression(stmt.NamedChild(0), depth+1); expr != nil {
				out = append(out, &ExpressionStatement{Span: Span{StartLine: jsLine(stmt)}, Expression: expr})
			}

		case jsNodeLexicalDeclaration, jsNodeVariableDeclaration:
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				decl := stmt.NamedChild(j)
				if decl.Type() != jsNodeVariableDeclarator {
					continue
				}
				value := decl.ChildByFieldName("value")
				if value == nil {
					continue
				}
				if expr := c.expression(value, depth+1); expr != nil {
					out = append(out, &ExpressionStatement{Span: Span{StartLine: jsLine(decl)}, Expression: expr})
				}
			}

		case jsNodeParenthesized, jsNodeThrowStatement:
			if stmt.Type() == jsNodeThrowStatement {
				if stmt.NamedChildCount() == 0 {
					continue
				}
				stmt = stmt.NamedChild(0)
			}
			if expr := c.expression(stmt, depth+1); expr != nil {
				out = append(out, &ExpressionStatement{Span: Span{StartLine: jsLine(stmt)}, Expression: expr})
			}

		default:
			out = append(out, c.statements(stmt, depth+1)...)
		}
	}
	return out
}

// expression converts an expression node. Returns nil for nodes that carry
// no analyzable value (comments, punctuation-only nodes).
func (c *jsConverter) expression(n *sitter.Node, depth int) Node {
	if n == nil || depth > maxJSDepth {
		return nil
	}
	span := Span{StartLine: jsLine(n)}

	switch n.Type() {
	case jsNodeIdentifier, jsNodePropertyIdentifier, jsNodePrivatePropertyIdent,
		jsNodeShorthandPropertyID, jsNodeThis, jsNodeSuper:
		return &Identifier{Span: span, Name: c.text(n)}

	case jsNodeString:
		return &StringLiteral{Span: span, Value: unquoteJS(c.text(n))}

	case jsNodeTemplateString:
		if n.NamedChildCount() == 0 {
			return &StringLiteral{Span: span, Value: unquoteJS(c.text(n))}
		}
		return c.composite(n, span, depth)

	case jsNodeNumber:
		num := NewNumber(c.text(n))
		num.Span = span
		return num

	case jsNodeParenthesized, jsNodeAwaitExpression:
		if n.NamedChildCount() == 0 {
			return nil
		}
		return c.expression(n.NamedChild(0), depth+1)

	case jsNodeMemberExpression:
		return &MemberExpression{
			Span:     span,
			Object:   c.expression(n.ChildByFieldName("object"), depth+1),
			Property: c.expression(n.ChildByFieldName("property"), depth+1),
			Optional: hasOptionalChain(n),
		}

	case jsNodeSubscriptExpression:
		return &MemberExpression{
			Span:     span,
			Object:   c.expression(n.ChildByFieldName("object"), depth+1),
			Property: c.expression(n.ChildByFieldName("index"), depth+1),
			Computed: true,
			Optional: hasOptionalChain(n),
		}

	case jsNodeCallExpression:
		call := &CallExpression{
			Span:      span,
			Callee:    c.expression(n.ChildByFieldName("function"), depth+1),
			Arguments: make([]Node, 0, 2),
			Optional:  hasOptionalChain(n),
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				if arg := c.expression(args.NamedChild(i), depth+1); arg != nil {
					call.Arguments = append(call.Arguments, arg)
				}
			}
		}
		return call

	case jsNodeArrowFunction, jsNodeFunctionExpression, jsNodeFunction, jsNodeGeneratorFunction:
		if !n.IsNamed() {
			return nil
		}
		return &FunctionExpression{
			Span:   span,
			Params: c.parameters(n),
			Body:   c.functionBody(n),
		}

	case jsNodeComment:
		return nil

	default:
		return c.composite(n, span, depth)
	}
}

// composite wraps the named children of an unmodelled construct.
func (c *jsConverter) composite(n *sitter.Node, span Span, depth int) Node {
	comp := &CompositeExpression{Span: span, Operator: n.Type(), Operands: make([]Node, 0, int(n.NamedChildCount()))}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if operand := c.expression(n.NamedChild(i), depth+1); operand != nil {
			comp.Operands = append(comp.Operands, operand)
		}
	}
	return comp
}

// hasOptionalChain reports whether n contains a `?.` token directly.
func hasOptionalChain(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && child.Type() == jsNodeOptionalChain {
			return true
		}
	}
	return false
}

// unquoteJS strips the surrounding quote or backtick characters.
func unquoteJS(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return strings.Trim(s, "\"'`")
}
