// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeSuccess     = "success"
	outcomeUnsupported = "unsupported_language"
	outcomeCanceled    = "canceled"
	outcomeTooLarge    = "too_large"
	outcomePanic       = "panic"
	outcomeError       = "error"
)

// Package-level Prometheus metrics for analyses.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// analysesTotal counts analyses by language and outcome.
	//
	// Labels:
	//   - language: "javascript", "python", "unknown"
	//   - outcome: "success", "unsupported_language", "canceled", "too_large", "panic", "error"
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Subsystem: "analyzer",
			Name:      "analyses_total",
			Help:      "Total number of analyses.",
		},
		[]string{"language", "outcome"},
	)

	// analysisDuration measures analysis time, projection included.
	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Subsystem: "analyzer",
			Name:      "duration_seconds",
			Help:      "Duration of analyses in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"language"},
	)

	// findingsPerAnalysis tracks how many findings successful analyses return.
	findingsPerAnalysis = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Subsystem: "analyzer",
			Name:      "findings",
			Help:      "Number of findings per successful analysis.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"language"},
	)

	// issuesTotal counts raised issues. rule_id is bounded by the rule table.
	issuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Subsystem: "analyzer",
			Name:      "issues_total",
			Help:      "Total issues raised by rule and severity.",
		},
		[]string{"rule_id", "severity"},
	)
)

// recordAnalysis records metrics for one completed analysis.
//
// Thread Safety: Safe for concurrent use.
func recordAnalysis(language, outcome string, duration time.Duration, findings int) {
	analysesTotal.WithLabelValues(language, outcome).Inc()
	analysisDuration.WithLabelValues(language).Observe(duration.Seconds())
	if outcome == outcomeSuccess {
		findingsPerAnalysis.WithLabelValues(language).Observe(float64(findings))
	}
}
