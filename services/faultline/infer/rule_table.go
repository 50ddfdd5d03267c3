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
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/faultline/services/faultline/ast"
)

// =============================================================================
// Embedded Default Type Rules
// =============================================================================

//go:embed type_rules.yaml
var defaultTypeRulesYAML []byte

var tracer = otel.Tracer("faultline.infer")

// MaxRuleFileSize bounds rule YAML accepted from disk.
const MaxRuleFileSize = 1 << 20

// ErrInvalidRuleTable is wrapped by every validation failure.
var ErrInvalidRuleTable = errors.New("invalid rule table")

// =============================================================================
// Rule Table Types
// =============================================================================

// TypeKind is the library type a rule infers for a receiver.
type TypeKind string

const (
	KindDict     TypeKind = "dict"
	KindPromise  TypeKind = "promise"
	KindResponse TypeKind = "response"
	KindArray    TypeKind = "array"
	KindList     TypeKind = "list"
	KindString   TypeKind = "string"
	KindRegExp   TypeKind = "regexp"
	KindDate     TypeKind = "date"
)

var validKinds = map[TypeKind]bool{
	KindDict: true, KindPromise: true, KindResponse: true, KindArray: true,
	KindList: true, KindString: true, KindRegExp: true, KindDate: true,
}

// FactTemplate is an assumption emitted when a rule fires.
type FactTemplate struct {
	Text       string     `yaml:"text"`
	Confidence Confidence `yaml:"confidence"`
}

// TypeRule maps a method name on a receiver to an inferred type.
//
// Description:
//
//	A rule matches a method step when the language, the method name, the
//	optional receiver_pattern and the optional structural pattern all
//	match. Rules without a severity add facts only and never suppress the
//	generic unsafe-property-access issue.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type TypeRule struct {
	// ID is the rule id without its language namespace, e.g. "assume-array".
	ID string `yaml:"id"`

	// Kind is the type assigned to the receiver.
	Kind TypeKind `yaml:"kind"`

	// Languages lists the languages the rule applies to.
	Languages []string `yaml:"languages"`

	// Methods lists the method names that trigger the rule.
	Methods []string `yaml:"methods"`

	// Results maps a method to the type of its return value.
	Results map[string]TypeKind `yaml:"results"`

	// Pattern names a structural matcher (see patterns.go).
	Pattern string `yaml:"pattern"`

	// ReceiverPattern is a regex the receiver text must match.
	ReceiverPattern string `yaml:"receiver_pattern"`

	// Collapse stops every later step of the chain from raising issues.
	Collapse bool `yaml:"collapse"`

	// MemberExists also emits "<receiver>.<method> exists".
	MemberExists bool `yaml:"member_exists"`

	// Severity of the issue. Empty means the rule raises no issue.
	Severity Severity `yaml:"severity"`

	Facts           []FactTemplate `yaml:"facts"`
	CallResultFacts []FactTemplate `yaml:"call_result_facts"`
	Title           string         `yaml:"title"`
	CallResultTitle string         `yaml:"call_result_title"`
	Explanation     string         `yaml:"explanation"`
	Fix             string         `yaml:"fix"`

	languages  map[ast.Language]bool
	methods    map[string]bool
	receiverRe *regexp.Regexp
}

// RaisesIssue reports whether the rule produces an issue.
func (r *TypeRule) RaisesIssue() bool { return r.Severity != "" }

// ResultKind returns the type of method's return value, or "".
func (r *TypeRule) ResultKind(method string) TypeKind { return r.Results[method] }

// AppliesTo reports whether the rule covers lang.
func (r *TypeRule) AppliesTo(lang ast.Language) bool { return r.languages[lang] }

// HasMethod reports whether method triggers the rule.
func (r *TypeRule) HasMethod(method string) bool { return r.methods[method] }

// RuleTable is the ordered type-inference table.
//
// Description:
//
//	Rules are consulted in order; the first match wins. The table is built
//	once and never mutated, so it is shared across concurrent analyses
//	without locking. Extend returns a new table.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RuleTable struct {
	Version int        `yaml:"version"`
	Rules   []TypeRule `yaml:"rules"`
}

// MethodsOfKind returns every method of rules with kind k for lang.
func (t *RuleTable) MethodsOfKind(lang ast.Language, k TypeKind) map[string]bool {
	out := make(map[string]bool)
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.Kind != k || !r.AppliesTo(lang) {
			continue
		}
		for m := range r.methods {
			out[m] = true
		}
	}
	return out
}

// =============================================================================
// Singleton Rule Table
// =============================================================================

var (
	ruleTableMu      sync.RWMutex
	ruleTableOnce    sync.Once
	cachedRuleTable  *RuleTable
	ruleTableLoadErr error
)

// GetRuleTable returns the cached default rule table.
//
// Description:
//
//	Loads the embedded rules on first call and caches them for subsequent
//	calls. Uses sync.Once for thread-safe initialization.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*RuleTable - The loaded table. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetRuleTable(ctx context.Context) (*RuleTable, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRuleTable: ctx must not be nil")
	}

	ruleTableMu.RLock()
	if cachedRuleTable != nil || ruleTableLoadErr != nil {
		table, err := cachedRuleTable, ruleTableLoadErr
		ruleTableMu.RUnlock()
		return table, err
	}
	ruleTableMu.RUnlock()

	ruleTableMu.Lock()
	defer ruleTableMu.Unlock()

	if cachedRuleTable != nil || ruleTableLoadErr != nil {
		return cachedRuleTable, ruleTableLoadErr
	}

	ruleTableOnce.Do(func() {
		cachedRuleTable, ruleTableLoadErr = LoadRuleTable(ctx, defaultTypeRulesYAML)
	})

	return cachedRuleTable, ruleTableLoadErr
}

// SetRuleTable replaces the cached table. Intended for process start, when
// the service config names an extra rule file.
//
// Thread Safety: Safe for concurrent use.
func SetRuleTable(table *RuleTable) {
	ruleTableMu.Lock()
	defer ruleTableMu.Unlock()
	cachedRuleTable = table
	ruleTableLoadErr = nil
}

// ResetRuleTable resets the cached table for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetRuleTable() {
	ruleTableMu.Lock()
	defer ruleTableMu.Unlock()
	cachedRuleTable = nil
	ruleTableLoadErr = nil
	ruleTableOnce = sync.Once{}
}

// =============================================================================
// Loading
// =============================================================================

// LoadRuleTable parses and validates a RuleTable from YAML bytes.
//
// Description:
//
//	Parses the YAML, validates every rule (known kind, languages, methods,
//	severities, patterns, compilable receiver patterns) and builds the
//	lookup sets used during matching.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*RuleTable - The validated table.
//	error - Non-nil if parsing or validation fails. Wraps ErrInvalidRuleTable
//	        for validation failures.
func LoadRuleTable(ctx context.Context, data []byte) (*RuleTable, error) {
	_, span := tracer.Start(ctx, "infer.LoadRuleTable")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRuleTable: empty YAML data")
	}
	if len(data) > MaxRuleFileSize {
		return nil, fmt.Errorf("LoadRuleTable: YAML data exceeds maximum size (%d > %d)", len(data), MaxRuleFileSize)
	}

	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("LoadRuleTable: parsing YAML: %w", err)
	}
	if table.Version == 0 {
		table.Version = 1
	}

	if err := compileRules(table.Rules); err != nil {
		return nil, fmt.Errorf("LoadRuleTable: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("version", table.Version),
		attribute.Int("rules", len(table.Rules)),
	)
	slog.Debug("type rule table loaded",
		slog.Int("version", table.Version),
		slog.Int("rules", len(table.Rules)),
	)

	return &table, nil
}

// Extend returns a new table with the rules in data appended after t's
// rules, so they rank below every built-in rule.
func (t *RuleTable) Extend(ctx context.Context, data []byte) (*RuleTable, error) {
	extra, err := LoadRuleTable(ctx, data)
	if err != nil {
		return nil, err
	}
	merged := &RuleTable{
		Version: t.Version,
		Rules:   make([]TypeRule, 0, len(t.Rules)+len(extra.Rules)),
	}
	merged.Rules = append(merged.Rules, t.Rules...)
	merged.Rules = append(merged.Rules, extra.Rules...)
	return merged, nil
}

// LoadRuleTableWithExtras returns the default table extended with the rules
// in path. An empty path returns the default table.
func LoadRuleTableWithExtras(ctx context.Context, path string) (*RuleTable, error) {
	base, err := GetRuleTable(ctx)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading extra rules: %w", err)
	}
	if info.Size() > MaxRuleFileSize {
		return nil, fmt.Errorf("extra rules file %s exceeds maximum size (%d > %d)", path, info.Size(), MaxRuleFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extra rules: %w", err)
	}

	table, err := base.Extend(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extra rules %s: %w", path, err)
	}
	slog.Info("extra type rules loaded",
		slog.String("path", path),
		slog.Int("rules", len(table.Rules)-len(base.Rules)),
	)
	return table, nil
}

// compileRules validates rules and fills their lookup sets in place.
func compileRules(rules []TypeRule) error {
	for i := range rules {
		r := &rules[i]
		if r.ID == "" {
			return fmt.Errorf("%w: rule[%d]: id must not be empty", ErrInvalidRuleTable, i)
		}
		if !validKinds[r.Kind] {
			return fmt.Errorf("%w: rule[%d] (%s): unknown kind %q", ErrInvalidRuleTable, i, r.ID, r.Kind)
		}
		if len(r.Methods) == 0 {
			return fmt.Errorf("%w: rule[%d] (%s): methods must not be empty", ErrInvalidRuleTable, i, r.ID)
		}
		if len(r.Languages) == 0 {
			return fmt.Errorf("%w: rule[%d] (%s): languages must not be empty", ErrInvalidRuleTable, i, r.ID)
		}
		if r.Pattern != "" {
			if _, ok := patterns[r.Pattern]; !ok {
				return fmt.Errorf("%w: rule[%d] (%s): unknown pattern %q", ErrInvalidRuleTable, i, r.ID, r.Pattern)
			}
		}
		if r.Severity != "" {
			if !r.Severity.Valid() {
				return fmt.Errorf("%w: rule[%d] (%s): invalid severity %q", ErrInvalidRuleTable, i, r.ID, r.Severity)
			}
			if r.Title == "" {
				return fmt.Errorf("%w: rule[%d] (%s): title is required when severity is set", ErrInvalidRuleTable, i, r.ID)
			}
		}
		for _, f := range append(append([]FactTemplate{}, r.Facts...), r.CallResultFacts...) {
			if f.Text == "" || !f.Confidence.Valid() {
				return fmt.Errorf("%w: rule[%d] (%s): fact needs text and a valid confidence", ErrInvalidRuleTable, i, r.ID)
			}
		}
		for method, kind := range r.Results {
			if !validKinds[kind] {
				return fmt.Errorf("%w: rule[%d] (%s): result of %s has unknown kind %q", ErrInvalidRuleTable, i, r.ID, method, kind)
			}
		}

		r.languages = make(map[ast.Language]bool, len(r.Languages))
		for _, name := range r.Languages {
			lang, err := ast.ParseLanguage(name)
			if err != nil {
				return fmt.Errorf("%w: rule[%d] (%s): %v", ErrInvalidRuleTable, i, r.ID, err)
			}
			r.languages[lang] = true
		}

		r.methods = make(map[string]bool, len(r.Methods))
		for _, m := range r.Methods {
			if m = strings.TrimSpace(m); m != "" {
				r.methods[m] = true
			}
		}

		if r.ReceiverPattern != "" {
			re, err := regexp.Compile(r.ReceiverPattern)
			if err != nil {
				return fmt.Errorf("%w: rule[%d] (%s): receiver_pattern: %v", ErrInvalidRuleTable, i, r.ID, err)
			}
			r.receiverRe = re
		}
	}
	return nil
}
