// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain decomposes canonical expressions into a root identifier and
// the ordered member/call steps applied to it.
package chain

import (
	"strings"

	"github.com/AleutianAI/faultline/services/faultline/ast"
)

// LinkKind identifies one step of a chain.
type LinkKind uint8

const (
	// LinkMember is `.name` or `[key]`.
	LinkMember LinkKind = iota + 1

	// LinkMethod is `.name(args)`: a dotted member immediately invoked.
	LinkMethod

	// LinkCall is `(args)` applied to whatever the chain produced so far.
	LinkCall
)

// String returns the kind name.
func (k LinkKind) String() string {
	switch k {
	case LinkMember:
		return "member"
	case LinkMethod:
		return "method"
	case LinkCall:
		return "call"
	default:
		return "unknown"
	}
}

// Link is one step of a resolved chain.
type Link struct {
	Kind LinkKind

	// Name is the property or method name. Empty for computed members and
	// direct calls.
	Name string

	// Key is the computed member key. Nil unless Computed.
	Key      ast.Node
	Computed bool

	// Optional is true when the member part uses `?.`, or, for LinkCall,
	// when the call is `?.()`.
	Optional bool

	// OptionalCall is true for `x.m?.()`. Only set on LinkMethod.
	OptionalCall bool

	// Args holds call arguments for LinkMethod and LinkCall.
	Args []ast.Node

	// Line is the 1-based source line of the step, or 0 when unknown.
	Line int
}

// IsCall reports whether the step invokes something.
func (l Link) IsCall() bool { return l.Kind == LinkMethod || l.Kind == LinkCall }

// Chain is an expression decomposed into root + links in source order.
//
// Description:
//
//	Root is nil when the innermost node is not an identifier (a literal, an
//	inline function or an operator expression). Such chains produce no
//	facts of their own, but Base is kept so callers can still descend into
//	its operands.
type Chain struct {
	Root  *ast.Identifier
	Base  ast.Node
	Links []Link
}

// Analyzable reports whether the chain has an identifier root.
func (c Chain) Analyzable() bool { return c.Root != nil }

// Resolve decomposes expr.
//
// Description:
//
//	Walks Object/Callee from the outermost node inward, then reverses the
//	collected steps so that Links[0] is the step applied directly to the
//	root. A call whose callee is a dotted member becomes a single LinkMethod.
//
// Inputs:
//
//	expr - Any canonical node. Nil yields an empty, non-analyzable chain.
//
// Outputs:
//
//	Chain - Never shares Link slices with other chains.
func Resolve(expr ast.Node) Chain {
	var c Chain
	links := make([]Link, 0, 4)

	node := expr
walk:
	for node != nil {
		switch n := node.(type) {
		case *ast.Identifier:
			c.Root = n
			break walk

		case *ast.MemberExpression:
			links = append(links, memberLink(n))
			node = n.Object

		case *ast.CallExpression:
			if m, ok := n.Callee.(*ast.MemberExpression); ok && !m.Computed {
				if prop, ok := m.Property.(*ast.Identifier); ok {
					links = append(links, Link{
						Kind:         LinkMethod,
						Name:         prop.Name,
						Optional:     m.Optional,
						OptionalCall: n.Optional,
						Args:         n.Arguments,
						Line:         n.Line(),
					})
					node = m.Object
					continue
				}
			}
			links = append(links, Link{
				Kind:     LinkCall,
				Optional: n.Optional,
				Args:     n.Arguments,
				Line:     n.Line(),
			})
			node = n.Callee

		default:
			c.Base = node
			break walk
		}
	}

	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	c.Links = links
	return c
}

func memberLink(m *ast.MemberExpression) Link {
	link := Link{Kind: LinkMember, Optional: m.Optional, Line: m.Line()}
	if prop, ok := m.Property.(*ast.Identifier); ok && !m.Computed {
		link.Name = prop.Name
		return link
	}
	link.Computed = true
	link.Key = m.Property
	return link
}

// =============================================================================
// Display text
// =============================================================================

// RootName returns the root identifier name, or "" for non-analyzable chains.
func (c Chain) RootName() string {
	if c.Root == nil {
		return ""
	}
	return c.Root.Name
}

// Text renders the root plus the first n links, e.g. `user.profile.getName()`.
// Optional steps are rendered with plain dots. n is clamped to len(Links).
func (c Chain) Text(n int) string {
	return c.render(n, true)
}

// FullText renders the whole chain.
func (c Chain) FullText() string {
	return c.Text(len(c.Links))
}

// Signature renders the root plus the first n links with call arguments
// elided, e.g. `fetch().then()`. Identical chains written twice share a
// signature regardless of their arguments.
func (c Chain) Signature(n int) string {
	return c.render(n, false)
}

func (c Chain) render(n int, withArgs bool) string {
	if n > len(c.Links) {
		n = len(c.Links)
	}
	var b strings.Builder
	if c.Root != nil {
		b.WriteString(c.Root.Name)
	} else {
		b.WriteString(Text(c.Base))
	}
	for _, link := range c.Links[:n] {
		switch link.Kind {
		case LinkMember:
			if link.Computed {
				b.WriteByte('[')
				b.WriteString(KeyText(link.Key))
				b.WriteByte(']')
			} else {
				b.WriteByte('.')
				b.WriteString(link.Name)
			}
		case LinkMethod:
			b.WriteByte('.')
			b.WriteString(link.Name)
			writeArgs(&b, link.Args, withArgs)
		case LinkCall:
			writeArgs(&b, link.Args, withArgs)
		}
	}
	return b.String()
}

func writeArgs(b *strings.Builder, args []ast.Node, withArgs bool) {
	b.WriteByte('(')
	if withArgs {
		for i, arg := range args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Text(arg))
		}
	}
	b.WriteByte(')')
}

// KeyText renders a computed key: string keys double-quoted, identifiers by
// name, numbers as written, chains as their text.
func KeyText(key ast.Node) string {
	return Text(key)
}

// Text renders any node for display. Constructs without a compact form
// (inline functions, operators) render as "...".
func Text(node ast.Node) string {
	switch n := node.(type) {
	case nil:
		return ""
	case *ast.Identifier:
		return n.Name
	case *ast.StringLiteral:
		return `"` + n.Value + `"`
	case *ast.NumericLiteral:
		return n.Raw
	case *ast.MemberExpression, *ast.CallExpression:
		c := Resolve(n)
		if c.Root == nil {
			if _, ok := c.Base.(*ast.StringLiteral); !ok {
				return "..."
			}
		}
		return c.FullText()
	default:
		return "..."
	}
}
