// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/faultline/services/faultline/infer"
)

var (
	colorHigh   = lipgloss.Color("#e53935")
	colorMedium = lipgloss.Color("#FFC107")
	colorLow    = lipgloss.Color("#2196F3")
)

// formatter renders reports as text. Styling applies only when the output
// is a terminal, so piped output stays plain.
type formatter struct {
	styled  bool
	heading lipgloss.Style
	levels  map[string]lipgloss.Style
}

func newFormatter(w io.Writer) *formatter {
	f, ok := w.(*os.File)
	styled := ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	return &formatter{
		styled:  styled,
		heading: lipgloss.NewStyle().Bold(true),
		levels: map[string]lipgloss.Style{
			"high":   lipgloss.NewStyle().Foreground(colorHigh),
			"medium": lipgloss.NewStyle().Foreground(colorMedium),
			"low":    lipgloss.NewStyle().Foreground(colorLow),
		},
	}
}

func (f *formatter) head(s string) string {
	if !f.styled {
		return s
	}
	return f.heading.Render(s)
}

func (f *formatter) level(level, s string) string {
	if !f.styled {
		return s
	}
	return f.levels[level].Render(s)
}

// Assumptions renders assumptions sorted by text.
func (f *formatter) Assumptions(assumptions []infer.Assumption) string {
	lines := []string{f.head("Assumptions:")}
	if len(assumptions) == 0 {
		return strings.Join(append(lines, "- (none found)"), "\n")
	}

	sorted := append([]infer.Assumption(nil), assumptions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Text < sorted[j].Text })
	for _, a := range sorted {
		conf := string(a.Confidence)
		lines = append(lines, fmt.Sprintf("- %s (%s)", a.Text, f.level(conf, conf+" confidence")))
	}
	return strings.Join(lines, "\n")
}

// Issues renders issues in rank order.
func (f *formatter) Issues(issues []infer.Issue) string {
	lines := []string{f.head("Issues:")}
	if len(issues) == 0 {
		return strings.Join(append(lines, "- (none found)"), "\n")
	}

	for _, issue := range issues {
		sev := string(issue.Severity)
		where := issue.RuleID
		if issue.Line != nil {
			where = fmt.Sprintf("line %d, %s", *issue.Line, issue.RuleID)
		}
		lines = append(lines, fmt.Sprintf("- %s %s (%s)", f.level(sev, "["+sev+"]"), issue.Title, where))
		if issue.SuggestedFix != nil {
			lines = append(lines, "    fix: "+*issue.SuggestedFix)
		}
	}
	return strings.Join(lines, "\n")
}
