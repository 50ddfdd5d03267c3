// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/faultline/services/faultline/ast"
)

func TestResolve_MemberChain(t *testing.T) {
	// obj.a.b
	expr := ast.NewMember(ast.NewMember(ast.NewIdentifier("obj"), "a"), "b")

	c := Resolve(expr)
	require.True(t, c.Analyzable())
	assert.Equal(t, "obj", c.RootName())
	require.Len(t, c.Links, 2)
	assert.Equal(t, LinkMember, c.Links[0].Kind)
	assert.Equal(t, "a", c.Links[0].Name)
	assert.Equal(t, "b", c.Links[1].Name)

	assert.Equal(t, "obj", c.Text(0))
	assert.Equal(t, "obj.a", c.Text(1))
	assert.Equal(t, "obj.a.b", c.FullText())
	assert.Equal(t, "obj.a.b", c.Text(99))
}

func TestResolve_MethodAndCallLinks(t *testing.T) {
	// user.profile.getName().toUpperCase()
	getName := ast.NewCall(ast.NewMember(ast.NewMember(ast.NewIdentifier("user"), "profile"), "getName"))
	expr := ast.NewCall(ast.NewMember(getName, "toUpperCase"))

	c := Resolve(expr)
	require.Len(t, c.Links, 3)
	assert.Equal(t, []LinkKind{LinkMember, LinkMethod, LinkMethod},
		[]LinkKind{c.Links[0].Kind, c.Links[1].Kind, c.Links[2].Kind})
	assert.True(t, c.Links[1].IsCall())
	assert.Equal(t, "user.profile.getName()", c.Text(2))
	assert.Equal(t, "user.profile.getName().toUpperCase()", c.FullText())
}

func TestResolve_DirectCall(t *testing.T) {
	// fetch('/x').then(res => res.json())
	cb := ast.NewArrow([]string{"res"}, ast.NewCall(ast.NewMember(ast.NewIdentifier("res"), "json")))
	expr := ast.NewCall(ast.NewMember(ast.NewCall(ast.NewIdentifier("fetch"), ast.NewString("/x")), "then"), cb)

	c := Resolve(expr)
	require.Len(t, c.Links, 2)
	assert.Equal(t, LinkCall, c.Links[0].Kind)
	assert.Equal(t, LinkMethod, c.Links[1].Kind)
	assert.Equal(t, `fetch("/x").then(...)`, c.FullText())
	assert.Equal(t, "fetch().then()", c.Signature(2))
}

func TestResolve_ComputedKeys(t *testing.T) {
	tests := []struct {
		name string
		key  ast.Node
		want string
	}{
		{"identifier", ast.NewIdentifier("i"), "arr[i]"},
		{"string", ast.NewString("foo"), `arr["foo"]`},
		{"number", ast.NewNumber("0"), "arr[0]"},
		{"chain", ast.NewMember(ast.NewIdentifier("k"), "id"), "arr[k.id]"},
		{"composite", &ast.CompositeExpression{Operator: "binary_expression"}, "arr[...]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Resolve(ast.NewIndex(ast.NewIdentifier("arr"), tt.key))
			require.Len(t, c.Links, 1)
			assert.True(t, c.Links[0].Computed)
			assert.Equal(t, tt.want, c.FullText())
		})
	}
}

func TestResolve_ComputedCallee(t *testing.T) {
	// obj[k]()
	c := Resolve(ast.NewCall(ast.NewIndex(ast.NewIdentifier("obj"), ast.NewIdentifier("k"))))
	require.Len(t, c.Links, 2)
	assert.Equal(t, LinkMember, c.Links[0].Kind)
	assert.Equal(t, LinkCall, c.Links[1].Kind)
	assert.Equal(t, "obj[k]()", c.FullText())
}

func TestResolve_OptionalFlags(t *testing.T) {
	// user?.name?.toUpperCase?.()
	member := ast.NewOptionalMember(ast.NewIdentifier("user"), "name")
	callee := ast.NewOptionalMember(member, "toUpperCase")
	call := ast.NewCall(callee)
	call.Optional = true

	c := Resolve(call)
	require.Len(t, c.Links, 2)
	assert.True(t, c.Links[0].Optional)
	assert.True(t, c.Links[1].Optional)
	assert.True(t, c.Links[1].OptionalCall)
	assert.Equal(t, "user.name.toUpperCase()", c.FullText())
}

func TestResolve_NonIdentifierRoots(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Node
	}{
		{"nil", nil},
		{"string literal", ast.NewCall(ast.NewMember(ast.NewString("abc"), "trim"))},
		{"number", ast.NewNumber("1")},
		{"function", ast.NewArrow([]string{"x"}, ast.NewIdentifier("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Resolve(tt.expr)
			assert.False(t, c.Analyzable())
			assert.Empty(t, c.RootName())
		})
	}
}

func TestResolve_BareIdentifier(t *testing.T) {
	c := Resolve(ast.NewIdentifier("x"))
	assert.True(t, c.Analyzable())
	assert.Empty(t, c.Links)
	assert.Equal(t, "x", c.FullText())
}

func TestSignature_ElidesArguments(t *testing.T) {
	a := Resolve(ast.NewCall(ast.NewMember(ast.NewIdentifier("d"), "get"), ast.NewString("a")))
	b := Resolve(ast.NewCall(ast.NewMember(ast.NewIdentifier("d"), "get"), ast.NewString("b")))
	assert.Equal(t, a.Signature(1), b.Signature(1))
	assert.NotEqual(t, a.FullText(), b.FullText())
}

func TestText_Arguments(t *testing.T) {
	expr := ast.NewCall(ast.NewIdentifier("f"),
		ast.NewIdentifier("a"), ast.NewString("s"), ast.NewNumber("2"),
		ast.NewMember(ast.NewIdentifier("b"), "c"))
	assert.Equal(t, `f(a, "s", 2, b.c)`, Text(expr))
}
