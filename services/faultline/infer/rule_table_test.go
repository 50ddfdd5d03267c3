// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package infer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AleutianAI/faultline/services/faultline/ast"
)

func TestLoadRuleTable_EmbeddedDefaults(t *testing.T) {
	table, err := LoadRuleTable(context.Background(), defaultTypeRulesYAML)
	if err != nil {
		t.Fatalf("embedded rules failed to load: %v", err)
	}
	if len(table.Rules) == 0 {
		t.Fatal("expected embedded rules")
	}

	// Precedence order matters: dict.get first, date-like methods last.
	if table.Rules[0].ID != "dict-get-maybe-none" {
		t.Errorf("expected dict-get-maybe-none first, got %s", table.Rules[0].ID)
	}
	if last := table.Rules[len(table.Rules)-1]; last.Kind != KindDate || last.RaisesIssue() {
		t.Errorf("expected issue-free date rule last, got %s (%s)", last.ID, last.Kind)
	}

	wantOrder := []string{
		"dict-get-maybe-none",
		"promise-resolves-string",
		"fetch-response-json",
		"response-json",
		"assume-promise",
	}
	for i, id := range wantOrder {
		if table.Rules[i].ID != id {
			t.Errorf("rule %d = %s, want %s", i, table.Rules[i].ID, id)
		}
	}
}

func TestLoadRuleTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "rules:\n  - kind: array\n    languages: [js]\n    methods: [map]\n"},
		{"unknown kind", "rules:\n  - id: x\n    kind: widget\n    languages: [js]\n    methods: [map]\n"},
		{"no methods", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n"},
		{"no languages", "rules:\n  - id: x\n    kind: array\n    methods: [map]\n"},
		{"bad language", "rules:\n  - id: x\n    kind: array\n    languages: [cobol]\n    methods: [map]\n"},
		{"unknown pattern", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n    methods: [map]\n    pattern: nope\n"},
		{"bad severity", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n    methods: [map]\n    severity: fatal\n    title: t\n"},
		{"severity without title", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n    methods: [map]\n    severity: low\n"},
		{"bad receiver pattern", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n    methods: [map]\n    receiver_pattern: \"(\"\n"},
		{"bad fact", "rules:\n  - id: x\n    kind: array\n    languages: [js]\n    methods: [map]\n    facts:\n      - text: t\n        confidence: certain\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRuleTable(context.Background(), []byte(tt.yaml))
			if !errors.Is(err, ErrInvalidRuleTable) {
				t.Fatalf("expected ErrInvalidRuleTable, got %v", err)
			}
		})
	}
}

func TestLoadRuleTable_EmptyAndMalformed(t *testing.T) {
	if _, err := LoadRuleTable(context.Background(), nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := LoadRuleTable(context.Background(), []byte("rules: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestRuleTable_Extend(t *testing.T) {
	base, err := LoadRuleTable(context.Background(), defaultTypeRulesYAML)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	extra := []byte(`
rules:
  - id: assume-set
    kind: array
    languages: [javascript]
    methods: [has, add]
    severity: low
    facts:
      - text: "{receiver} is a Set"
        confidence: medium
    title: "Assumes {receiver} is a Set"
`)
	merged, err := base.Extend(context.Background(), extra)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if len(merged.Rules) != len(base.Rules)+1 {
		t.Fatalf("expected %d rules, got %d", len(base.Rules)+1, len(merged.Rules))
	}
	if merged.Rules[len(merged.Rules)-1].ID != "assume-set" {
		t.Errorf("expected extra rule appended last")
	}
	if len(base.Rules) == len(merged.Rules) {
		t.Error("base table must not be mutated")
	}

	unit, err := ast.NewJavaScriptProjector().Project(context.Background(), []byte("function f(s) { return s.has(1); }"))
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	report := NewEngine(merged).Infer(unit)
	if len(report.Issues) != 1 || report.Issues[0].RuleID != "js:assume-set" {
		t.Errorf("expected js:assume-set issue, got %+v", report.Issues)
	}
}

func TestLoadRuleTableWithExtras(t *testing.T) {
	ResetRuleTable()
	defer ResetRuleTable()

	base, err := LoadRuleTableWithExtras(context.Background(), "")
	if err != nil {
		t.Fatalf("no extras: %v", err)
	}
	cached, _ := GetRuleTable(context.Background())
	if base != cached {
		t.Error("expected the cached default table when no extra file is given")
	}

	path := filepath.Join(t.TempDir(), "extra.yaml")
	data := "rules:\n  - id: assume-map\n    kind: dict\n    languages: [js]\n    methods: [entries]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadRuleTableWithExtras(context.Background(), path)
	if err != nil {
		t.Fatalf("with extras: %v", err)
	}
	if len(table.Rules) != len(base.Rules)+1 {
		t.Errorf("expected one extra rule, got %d", len(table.Rules)-len(base.Rules))
	}

	if _, err := LoadRuleTableWithExtras(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetRuleTable_CachedAndConcurrent(t *testing.T) {
	ResetRuleTable()
	defer ResetRuleTable()

	var wg sync.WaitGroup
	tables := make([]*RuleTable, 16)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], _ = GetRuleTable(context.Background())
		}(i)
	}
	wg.Wait()

	for i, table := range tables {
		if table == nil {
			t.Fatalf("goroutine %d got nil table", i)
		}
		if table != tables[0] {
			t.Errorf("goroutine %d got a different table instance", i)
		}
	}
}

func TestSetRuleTable(t *testing.T) {
	ResetRuleTable()
	defer ResetRuleTable()

	custom := &RuleTable{Version: 7}
	SetRuleTable(custom)
	got, err := GetRuleTable(context.Background())
	if err != nil || got != custom {
		t.Fatalf("expected custom table, got %v (%v)", got, err)
	}
}

func TestMethodsOfKind(t *testing.T) {
	table, err := LoadRuleTable(context.Background(), defaultTypeRulesYAML)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	js := table.MethodsOfKind(ast.LanguageJavaScript, KindString)
	if !js["trim"] || js["strip"] {
		t.Errorf("unexpected javascript string methods: %v", js)
	}
	py := table.MethodsOfKind(ast.LanguagePython, KindString)
	if !py["strip"] || py["trim"] {
		t.Errorf("unexpected python string methods: %v", py)
	}
}
