// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package metrics provides Prometheus instrumentation for the pipeline:
// source polling, play detection, queue processing, delivery, dead-letter
// retries, and notifications. Exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source polling
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_poll_cycles_total",
			Help: "Total poll cycles per source",
		},
		[]string{"source"},
	)

	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_poll_errors_total",
			Help: "Total poll errors per source and error class",
		},
		[]string{"source", "class"}, // "connectivity", "upstream"
	)

	PollInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_poll_interval_seconds",
			Help: "Current adaptive sleep interval per source",
		},
		[]string{"source"},
	)

	// Play detection
	PlaysDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_plays_discovered_total",
			Help: "Plays discovered per source (confirmed or from history)",
		},
		[]string{"source"},
	)

	DetectorCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "detector_candidates",
			Help: "Plays currently in the confirmation window per source",
		},
		[]string{"source"},
	)

	// Scrobble delivery
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobble_queue_depth",
			Help: "Queued scrobbles per client",
		},
		[]string{"client"},
	)

	ScrobblesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobbles_submitted_total",
			Help: "Successful scrobble submissions per client",
		},
		[]string{"client"},
	)

	ScrobblesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobbles_skipped_total",
			Help: "Scrobbles skipped per client and reason",
		},
		[]string{"client", "reason"}, // "duplicate", "timeframe", "invalid"
	)

	SubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrobble_submit_duration_seconds",
			Help:    "Submit call latency per client",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client"},
	)

	SubmitErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobble_submit_errors_total",
			Help: "Submit failures per client and classification",
		},
		[]string{"client", "class"}, // "fatal", "nonfatal", "connectivity"
	)

	// Dead letter
	DeadLetterSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dead_letter_scrobbles",
			Help: "Scrobbles currently in the dead-letter store per client",
		},
		[]string{"client"},
	)

	DeadLetterRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letter_retries_total",
			Help: "Dead-letter retry attempts per client and outcome",
		},
		[]string{"client", "outcome"}, // "success", "failure", "exhausted"
	)

	// Notifications
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries per notifier and outcome",
		},
		[]string{"notifier", "outcome"}, // "ok", "error"
	)

	// Event bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published to the in-process bus per topic",
		},
		[]string{"topic"},
	)
)
