// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcome label values.
const (
	outcomeSuccess     = "success"
	outcomeWorkerError = "worker_error"
	outcomeTimeout     = "timeout"
	outcomeCanceled    = "canceled"
	outcomeSpawnError  = "spawn_error"
)

var (
	// submissionsTotal counts host submissions.
	//
	// Labels:
	//   - mode: "process", "inprocess", "custom"
	//   - outcome: "success", "worker_error", "timeout", "canceled", "spawn_error"
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Subsystem: "host",
			Name:      "submissions_total",
			Help:      "Total analyses submitted to the execution host.",
		},
		[]string{"mode", "outcome"},
	)

	// submissionDuration measures wall time from spawn to settlement.
	submissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Subsystem: "host",
			Name:      "duration_seconds",
			Help:      "Duration of host submissions in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		},
		[]string{"mode"},
	)

	// activeWorkers is the number of submissions currently in flight.
	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "faultline",
			Subsystem: "host",
			Name:      "active_workers",
			Help:      "Number of analysis workers currently running.",
		},
	)
)

func recordSubmission(mode, outcome string, duration time.Duration) {
	submissionsTotal.WithLabelValues(mode, outcome).Inc()
	submissionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
