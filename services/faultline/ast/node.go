// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast defines the canonical expression tree that every inference rule
// operates on, and the language projections that populate it.
//
// Both front ends (the tree-sitter JavaScript projection and the regex-driven
// Python projection) produce the same node shapes, so the inference engine
// never needs to know which language a tree came from beyond the rule
// namespace it reports under.
package ast

import "strconv"

// NodeKind identifies the variant of a canonical Node.
type NodeKind uint8

const (
	// NodeKindIdentifier is a bare name.
	NodeKindIdentifier NodeKind = iota + 1

	// NodeKindStringLiteral is a quoted string.
	NodeKindStringLiteral

	// NodeKindNumericLiteral is a number.
	NodeKindNumericLiteral

	// NodeKindMember is a property access (dotted or computed).
	NodeKindMember

	// NodeKindCall is an invocation.
	NodeKindCall

	// NodeKindFunction is an inline function (arrow function, lambda).
	NodeKindFunction

	// NodeKindComposite groups operands of any construct the model does not
	// represent directly (operators, literals, new expressions).
	NodeKindComposite
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case NodeKindIdentifier:
		return "Identifier"
	case NodeKindStringLiteral:
		return "StringLiteral"
	case NodeKindNumericLiteral:
		return "NumericLiteral"
	case NodeKindMember:
		return "MemberExpression"
	case NodeKindCall:
		return "CallExpression"
	case NodeKindFunction:
		return "FunctionExpression"
	case NodeKindComposite:
		return "CompositeExpression"
	default:
		return "Unknown"
	}
}

// Node is a canonical expression tree node.
//
// Description:
//
//	Nodes are immutable once built and form an acyclic tree: Object and Callee
//	chains are strictly nested and never shared between parents.
//
// Thread Safety:
//
//	Nodes are never mutated after projection and may be read concurrently.
type Node interface {
	// Kind returns the node variant.
	Kind() NodeKind

	// Line returns the 1-based source line, or 0 when unknown.
	Line() int
}

// Span records where a node starts in the source.
type Span struct {
	// StartLine is 1-based. Zero means the projection could not tell.
	StartLine int
}

// Line returns the 1-based start line.
func (s Span) Line() int { return s.StartLine }

// Identifier is a bare name such as `user` or `fetch`.
type Identifier struct {
	Span
	Name string
}

// Kind implements Node.
func (*Identifier) Kind() NodeKind { return NodeKindIdentifier }

// StringLiteral is a quoted string. Value holds the unquoted text.
type StringLiteral struct {
	Span
	Value string
}

// Kind implements Node.
func (*StringLiteral) Kind() NodeKind { return NodeKindStringLiteral }

// NumericLiteral is a number. Raw keeps the source spelling for display.
type NumericLiteral struct {
	Span
	Value float64
	Raw   string
}

// Kind implements Node.
func (*NumericLiteral) Kind() NodeKind { return NodeKindNumericLiteral }

// MemberExpression is `object.property`, `object[property]` or their
// optional-chaining forms.
type MemberExpression struct {
	Span
	Object   Node
	Property Node

	// Computed is true for bracket access. Property is then any expression;
	// otherwise it is an *Identifier.
	Computed bool

	// Optional is true for `?.` access.
	Optional bool
}

// Kind implements Node.
func (*MemberExpression) Kind() NodeKind { return NodeKindMember }

// CallExpression is `callee(arguments...)`.
type CallExpression struct {
	Span
	Callee    Node
	Arguments []Node

	// Optional is true for `callee?.()`.
	Optional bool
}

// Kind implements Node.
func (*CallExpression) Kind() NodeKind { return NodeKindCall }

// FunctionExpression is an inline callback such as `res => res.json()`.
// Expression bodies are lowered to a single ReturnStatement.
type FunctionExpression struct {
	Span
	Params []*Identifier
	Body   []Statement
}

// Kind implements Node.
func (*FunctionExpression) Kind() NodeKind { return NodeKindFunction }

// CompositeExpression wraps any construct whose operands may still contain
// chains, e.g. `arr[i] + obj[prop]`. Operator is informational only.
type CompositeExpression struct {
	Span
	Operator string
	Operands []Node
}

// Kind implements Node.
func (*CompositeExpression) Kind() NodeKind { return NodeKindComposite }

// =============================================================================
// Constructors
// =============================================================================

// NewIdentifier returns an Identifier with no line information.
func NewIdentifier(name string) *Identifier {
	return &Identifier{Name: name}
}

// NewString returns a StringLiteral.
func NewString(value string) *StringLiteral {
	return &StringLiteral{Value: value}
}

// NewNumber returns a NumericLiteral parsed from raw. Unparseable input keeps
// Value at zero but preserves Raw for display.
func NewNumber(raw string) *NumericLiteral {
	v, _ := strconv.ParseFloat(raw, 64)
	return &NumericLiteral{Value: v, Raw: raw}
}

// NewMember returns the dotted access `object.name`.
func NewMember(object Node, name string) *MemberExpression {
	return &MemberExpression{Object: object, Property: NewIdentifier(name)}
}

// NewOptionalMember returns the access `object?.name`.
func NewOptionalMember(object Node, name string) *MemberExpression {
	return &MemberExpression{Object: object, Property: NewIdentifier(name), Optional: true}
}

// NewIndex returns the computed access `object[key]`.
func NewIndex(object Node, key Node) *MemberExpression {
	return &MemberExpression{Object: object, Property: key, Computed: true}
}

// NewCall returns `callee(args...)`.
func NewCall(callee Node, args ...Node) *CallExpression {
	if args == nil {
		args = []Node{}
	}
	return &CallExpression{Callee: callee, Arguments: args}
}

// NewArrow returns an expression-bodied callback `(params) => body`.
func NewArrow(params []string, body Node) *FunctionExpression {
	fn := &FunctionExpression{Params: make([]*Identifier, 0, len(params))}
	for _, p := range params {
		fn.Params = append(fn.Params, NewIdentifier(p))
	}
	if body != nil {
		fn.Body = []Statement{&ReturnStatement{Argument: body}}
	}
	return fn
}
