// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package infer derives runtime assumptions and ranked issues from the
// expression chains of one function.
package infer

// Confidence is how sure the engine is about an assumption.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the known levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Severity ranks issues.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// rank orders severities for sorting; lower sorts first.
func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Assumption is one inferred runtime precondition.
//
// Identity is the (Text, Confidence) pair. A Report never holds two
// assumptions with the same identity.
type Assumption struct {
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
}

// Issue is a deduplicated finding with remediation text.
//
// Identity is (RuleID, chain signature). A Report never holds two issues
// with the same identity.
type Issue struct {
	RuleID       string   `json:"ruleId"`
	Title        string   `json:"title"`
	Explanation  string   `json:"explanation"`
	Line         *int     `json:"line"`
	Severity     Severity `json:"severity"`
	SuggestedFix *string  `json:"suggestedFix"`

	// signature is the normalized chain the issue was raised for.
	signature string
}

// Signature returns the normalized chain signature, e.g. `user.profile.name`.
func (i Issue) Signature() string { return i.signature }

// Report is the result of one inference pass.
type Report struct {
	// Assumptions are in traversal order.
	Assumptions []Assumption `json:"assumptions"`

	// Issues are ranked high, medium, low; first-seen order within a level.
	Issues []Issue `json:"issues"`
}
