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
	"errors"
	"testing"
)

func TestPythonProjector_DictGetReturn(t *testing.T) {
	src := "def f(d):\n    return d.get('x').strip()\n"
	unit, err := NewPythonProjector().Project(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if unit.Name != "f" {
		t.Errorf("expected name f, got %q", unit.Name)
	}
	if got := unit.ParamNames(); len(got) != 1 || got[0] != "d" {
		t.Errorf("expected params [d], got %v", got)
	}
	if len(unit.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(unit.Body))
	}
	if unit.Body[0].Line() != 2 {
		t.Errorf("expected line 2, got %d", unit.Body[0].Line())
	}

	outer, ok := unit.Body[0].Target().(*CallExpression)
	if !ok {
		t.Fatalf("expected outer CallExpression, got %T", unit.Body[0].Target())
	}
	strip := outer.Callee.(*MemberExpression)
	if strip.Property.(*Identifier).Name != "strip" {
		t.Errorf("expected strip callee, got %#v", strip.Property)
	}
	inner, ok := strip.Object.(*CallExpression)
	if !ok {
		t.Fatalf("expected inner CallExpression, got %T", strip.Object)
	}
	if len(inner.Arguments) != 1 {
		t.Fatalf("expected 1 argument to get, got %d", len(inner.Arguments))
	}
	if s, ok := inner.Arguments[0].(*StringLiteral); !ok || s.Value != "x" {
		t.Errorf("expected string argument x, got %#v", inner.Arguments[0])
	}
	getter := inner.Callee.(*MemberExpression)
	if getter.Object.(*Identifier).Name != "d" {
		t.Errorf("expected receiver d, got %#v", getter.Object)
	}
}

func TestPythonProjector_Params(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"plain", "def f(a, b):\n    return a\n", []string{"a", "b"}},
		{"annotated", "def f(a: int, b: str = 'x') -> str:\n    return b\n", []string{"a", "b"}},
		{"star", "def f(*args, **kwargs):\n    return args\n", []string{"args", "kwargs"}},
		{"empty", "def f():\n    return 1\n", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := NewPythonProjector().Extract(tt.src)
			got := unit.ParamNames()
			if len(got) != len(tt.want) {
				t.Fatalf("params = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("param %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPythonProjector_OrSplitsReturn(t *testing.T) {
	unit := NewPythonProjector().Extract("def f(a, b):\n    return a.x or b.y\n")
	if len(unit.Body) != 2 {
		t.Fatalf("expected 2 return operands, got %d", len(unit.Body))
	}
	for i, want := range []string{"a", "b"} {
		m, ok := unit.Body[i].Target().(*MemberExpression)
		if !ok {
			t.Fatalf("operand %d: expected MemberExpression, got %T", i, unit.Body[i].Target())
		}
		if m.Object.(*Identifier).Name != want {
			t.Errorf("operand %d: root = %#v, want %s", i, m.Object, want)
		}
	}
}

func TestPythonProjector_AssignmentFallback(t *testing.T) {
	src := "def f(items, s):\n    items.append(1)\n    x = s.upper()\n    y = items[0]\n"
	unit := NewPythonProjector().Extract(src)
	if len(unit.Body) != 2 {
		t.Fatalf("expected 2 assignment statements, got %d", len(unit.Body))
	}
	if unit.Body[0].Line() != 3 || unit.Body[1].Line() != 4 {
		t.Errorf("unexpected lines %d, %d", unit.Body[0].Line(), unit.Body[1].Line())
	}
	idx, ok := unit.Body[1].Target().(*MemberExpression)
	if !ok || !idx.Computed {
		t.Fatalf("expected computed member, got %#v", unit.Body[1].Target())
	}
	if n, ok := idx.Property.(*NumericLiteral); !ok || n.Raw != "0" {
		t.Errorf("expected numeric key 0, got %#v", idx.Property)
	}
}

func TestPythonProjector_NoFunction(t *testing.T) {
	unit := NewPythonProjector().Extract("name = user.profile.name\n")
	if unit.Name != AnonymousFunctionName {
		t.Errorf("expected anon, got %q", unit.Name)
	}
	if len(unit.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(unit.Body))
	}
}

func TestPythonProjector_BodyStopsAtDedent(t *testing.T) {
	src := "def f(a):\n    pass\n\nresult = other.value\n"
	unit := NewPythonProjector().Extract(src)
	if len(unit.Body) != 0 {
		t.Errorf("expected empty body for dedented code, got %d statements", len(unit.Body))
	}
}

func TestPythonProjector_PrefixKeywordAndComment(t *testing.T) {
	unit := NewPythonProjector().Extract("def f(user):\n    return not user.active  # flag\n")
	if len(unit.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(unit.Body))
	}
	m, ok := unit.Body[0].Target().(*MemberExpression)
	if !ok {
		t.Fatalf("expected MemberExpression, got %T", unit.Body[0].Target())
	}
	if m.Object.(*Identifier).Name != "user" {
		t.Errorf("expected root user, got %#v", m.Object)
	}
}

func TestPythonProjector_MultiTokenArgument(t *testing.T) {
	unit := NewPythonProjector().Extract("def f(a, b):\n    return a.get(b.key, 0)\n")
	call := unit.Body[0].Target().(*CallExpression)
	if len(call.Arguments) != 2 {
		t.Fatalf("expected 2 arguments, got %d", len(call.Arguments))
	}
	if id, ok := call.Arguments[0].(*Identifier); !ok || id.Name != "b.key" {
		t.Errorf("expected joined argument b.key, got %#v", call.Arguments[0])
	}
}

func TestPythonProjector_GarbageInput(t *testing.T) {
	for _, src := range []string{"", "))))", "def (", "return", "x = "} {
		unit := NewPythonProjector().Extract(src)
		if unit == nil {
			t.Fatalf("Extract(%q) returned nil", src)
		}
	}
}

func TestPythonProjector_SourceTooLarge(t *testing.T) {
	p := NewPythonProjector(WithPythonMaxSourceSize(4))
	if _, err := p.Project(context.Background(), []byte("def f(): pass")); !errors.Is(err, ErrSourceTooLarge) {
		t.Fatalf("expected ErrSourceTooLarge, got %v", err)
	}
}
