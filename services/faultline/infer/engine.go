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
	"sort"
	"strings"

	"github.com/AleutianAI/faultline/services/faultline/ast"
	"github.com/AleutianAI/faultline/services/faultline/chain"
)

// UnsafePropertyAccessRule is the generic rule raised for plain member
// chains that no type rule classified.
const UnsafePropertyAccessRule = "unsafe-property-access"

// Engine runs inference over a FunctionUnit.
//
// Description:
//
//	For every statement the engine resolves the evaluated expression into
//	a chain and walks its links left to right, carrying the receiver text
//	and the receiver's known type. Each link yields facts (assumptions);
//	type rules and the generic unsafe-property-access rule yield issues.
//	Call arguments, computed keys and operator operands are walked as
//	independent chains. Inline function bodies are only inspected by rule
//	patterns, never walked.
//
// Thread Safety:
//
//	Engine holds only the immutable rule table and is safe for concurrent
//	use. Every Infer call builds its own state.
type Engine struct {
	table *RuleTable
}

// NewEngine creates an Engine over table.
func NewEngine(table *RuleTable) *Engine {
	return &Engine{table: table}
}

// Infer runs one pass over unit.
//
// Inputs:
//
//	unit - The projected function. Nil or an empty body yields an empty report.
//
// Outputs:
//
//	*Report - Never nil. Slices are non-nil.
func (e *Engine) Infer(unit *ast.FunctionUnit) *Report {
	p := newPass(e.table, unit)
	if unit != nil {
		for _, stmt := range unit.Body {
			p.visit(stmt.Target(), stmt.Line())
		}
	}
	return p.report()
}

// Assumptions returns only the assumption list of Infer.
func (e *Engine) Assumptions(unit *ast.FunctionUnit) []Assumption {
	return e.Infer(unit).Assumptions
}

// Issues returns only the ranked issue list of Infer.
func (e *Engine) Issues(unit *ast.FunctionUnit) []Issue {
	return e.Infer(unit).Issues
}

// =============================================================================
// Pass state
// =============================================================================

type issueKey struct {
	ruleID    string
	signature string
}

// pass holds the mutable state of one Infer call.
type pass struct {
	table  *RuleTable
	lang   ast.Language
	prefix string

	assumptions     []Assumption
	seenAssumptions map[Assumption]bool
	issues          []Issue
	seenIssues      map[issueKey]bool
}

func newPass(table *RuleTable, unit *ast.FunctionUnit) *pass {
	lang := ast.LanguageJavaScript
	if unit != nil && unit.Language != "" {
		lang = unit.Language
	}
	return &pass{
		table:           table,
		lang:            lang,
		prefix:          lang.RulePrefix(),
		assumptions:     make([]Assumption, 0, 16),
		seenAssumptions: make(map[Assumption]bool),
		issues:          make([]Issue, 0, 4),
		seenIssues:      make(map[issueKey]bool),
	}
}

func (p *pass) assume(text string, confidence Confidence) {
	a := Assumption{Text: text, Confidence: confidence}
	if p.seenAssumptions[a] {
		return
	}
	p.seenAssumptions[a] = true
	p.assumptions = append(p.assumptions, a)
}

func (p *pass) raise(ruleID, signature string, line int, severity Severity, title, explanation, fix string) {
	id := p.prefix + ":" + ruleID
	key := issueKey{ruleID: id, signature: signature}
	if p.seenIssues[key] {
		return
	}
	p.seenIssues[key] = true

	issue := Issue{
		RuleID:      id,
		Title:       title,
		Explanation: explanation,
		Severity:    severity,
		signature:   signature,
	}
	if line > 0 {
		l := line
		issue.Line = &l
	}
	if fix != "" {
		f := fix
		issue.SuggestedFix = &f
	}
	p.issues = append(p.issues, issue)
}

func (p *pass) report() *Report {
	sort.SliceStable(p.issues, func(i, j int) bool {
		return p.issues[i].Severity.rank() < p.issues[j].Severity.rank()
	})
	return &Report{Assumptions: p.assumptions, Issues: p.issues}
}

// =============================================================================
// Traversal
// =============================================================================

// visit dispatches on node and walks every chain it contains.
func (p *pass) visit(node ast.Node, line int) {
	switch n := node.(type) {
	case nil, *ast.Identifier, *ast.StringLiteral, *ast.NumericLiteral, *ast.FunctionExpression:
		return
	case *ast.CompositeExpression:
		for _, operand := range n.Operands {
			p.visit(operand, line)
		}
	default:
		c := chain.Resolve(node)
		if c.Analyzable() {
			p.walkChain(c, line)
			return
		}
		p.visit(c.Base, line)
		for _, link := range c.Links {
			p.visitOperands(link, lineOf(link, line))
		}
	}
}

// visitOperands walks the computed key or call arguments of link.
func (p *pass) visitOperands(link chain.Link, line int) {
	if link.Computed {
		if id, ok := link.Key.(*ast.Identifier); ok {
			p.assume(id.Name+" (computed key) is defined", ConfidenceLow)
		} else {
			p.visit(link.Key, line)
		}
	}
	for _, arg := range link.Args {
		p.visit(arg, line)
	}
}

// chainState is carried across the links of one chain.
type chainState struct {
	// known is the type of the current receiver, "" when unknown.
	known TypeKind

	// classified is set once a rule that raises an issue matched.
	classified bool

	// collapsed is set by collapsing rules; later steps raise no issues.
	collapsed bool

	// lastMember is the index of the last non-optional plain member step.
	lastMember int
	hops       int
}

// walkChain applies the per-link rules to c.
func (p *pass) walkChain(c chain.Chain, stmtLine int) {
	st := chainState{lastMember: -1}
	root := c.RootName()

	if len(c.Links) > 0 {
		if first := c.Links[0]; !first.Optional && first.Kind != chain.LinkCall {
			p.assume(root+" is not null or undefined", ConfidenceHigh)
		}
	}

	for i, link := range c.Links {
		receiver := c.Text(i)
		line := lineOf(link, stmtLine)
		fromCall := i > 0 && c.Links[i-1].IsCall()

		if fromCall && !link.Optional && st.known == "" {
			p.assume(receiver+" exists", ConfidenceHigh)
		}
		if link.Optional {
			p.assume("optional chaining used at "+receiver, ConfidenceLow)
		}

		var next TypeKind
		switch link.Kind {
		case chain.LinkMember:
			if !link.Optional {
				if st.known == "" {
					p.assume(c.Text(i+1)+" exists", ConfidenceHigh)
				}
				st.lastMember = i
				st.hops++
			}

		case chain.LinkMethod:
			if link.OptionalCall {
				p.assume("optional chaining used at "+receiver+"."+link.Name, ConfidenceLow)
			} else {
				p.assume(link.Name+" is a valid function", ConfidenceHigh)
			}
			next = p.applyTypeRule(c, i, line, fromCall, &st)

		case chain.LinkCall:
			if !link.Optional {
				p.assume(receiver+" is defined and is a function", ConfidenceHigh)
			}
		}

		p.visitOperands(link, line)
		st.known = next
	}

	if st.lastMember >= 0 && !st.classified && !st.collapsed {
		severity := SeverityMedium
		if st.hops >= 2 {
			severity = SeverityHigh
		}
		explanation, fix := p.unsafeAccessText(c, st.lastMember+1)
		p.raise(UnsafePropertyAccessRule,
			c.Signature(st.lastMember+1),
			lineOf(c.Links[st.lastMember], stmtLine),
			severity,
			"Unsafe property access: "+c.Text(st.lastMember+1),
			explanation,
			fix,
		)
	}
}

// applyTypeRule consults the rule table for method step i and returns the
// known type of the step's result.
func (p *pass) applyTypeRule(c chain.Chain, i, line int, fromCall bool, st *chainState) TypeKind {
	rule := p.table.match(p.lang, c, i)
	if rule == nil {
		return ""
	}

	link := c.Links[i]
	if rule.Kind != st.known {
		receiver := c.Text(i)
		vars := strings.NewReplacer(
			"{receiver}", receiver,
			"{method}", link.Name,
			"{call}", c.Text(i+1),
		)

		facts := rule.Facts
		title := rule.Title
		if fromCall {
			if len(rule.CallResultFacts) > 0 {
				facts = rule.CallResultFacts
			}
			if rule.CallResultTitle != "" {
				title = rule.CallResultTitle
			}
		}
		for _, f := range facts {
			p.assume(vars.Replace(f.Text), f.Confidence)
		}
		if rule.MemberExists {
			p.assume(receiver+"."+link.Name+" exists", ConfidenceHigh)
		}
		if rule.RaisesIssue() && !st.collapsed {
			p.raise(rule.ID,
				c.Signature(i+1),
				line,
				rule.Severity,
				vars.Replace(title),
				vars.Replace(rule.Explanation),
				vars.Replace(rule.Fix),
			)
		}
	}

	if rule.RaisesIssue() {
		st.classified = true
	}
	if rule.Collapse {
		st.collapsed = true
	}
	return rule.ResultKind(link.Name)
}

// match returns the first rule that matches method step i of c.
func (t *RuleTable) match(lang ast.Language, c chain.Chain, i int) *TypeRule {
	link := c.Links[i]
	if link.Kind != chain.LinkMethod {
		return nil
	}
	var receiver string
	for idx := range t.Rules {
		r := &t.Rules[idx]
		if !r.AppliesTo(lang) || !r.HasMethod(link.Name) {
			continue
		}
		if r.receiverRe != nil {
			if receiver == "" {
				receiver = c.Text(i)
			}
			if !r.receiverRe.MatchString(receiver) {
				continue
			}
		}
		if r.Pattern != "" && !patterns[r.Pattern](t, lang, c, i) {
			continue
		}
		return r
	}
	return nil
}

// unsafeAccessText returns the explanation and fix for an unguarded read of
// the first n links.
func (p *pass) unsafeAccessText(c chain.Chain, n int) (string, string) {
	text := c.Text(n)
	root := c.RootName()
	if p.lang == ast.LanguagePython {
		explanation := "Reading " + text + " raises AttributeError when " + root +
			" or any intermediate value is None or lacks the attribute."
		return explanation, "Check each step for None, or use getattr(obj, name, None) and dict.get with a default."
	}
	explanation := "Reading " + text + " throws a TypeError when " + root +
		" or any intermediate value is null or undefined."
	return explanation, "Use optional chaining (" + optionalText(c, n) + ") or check each step before reading it."
}

// lineOf returns the link's line, falling back to the statement line.
func lineOf(link chain.Link, fallback int) int {
	if link.Line > 0 {
		return link.Line
	}
	return fallback
}

// optionalText renders the first n links with `?.` on every member step,
// for suggested fixes.
func optionalText(c chain.Chain, n int) string {
	var b strings.Builder
	b.WriteString(c.RootName())
	for _, link := range c.Links[:n] {
		switch {
		case link.Kind == chain.LinkMember && link.Computed:
			b.WriteString("?.[")
			b.WriteString(chain.KeyText(link.Key))
			b.WriteByte(']')
		case link.Kind == chain.LinkMember:
			b.WriteString("?.")
			b.WriteString(link.Name)
		default:
			rest := chain.Chain{Links: []chain.Link{link}, Root: &ast.Identifier{}}
			b.WriteString(rest.FullText())
		}
	}
	return b.String()
}
