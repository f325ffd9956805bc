// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package scrobble implements the per-client delivery engine: an ordered
// in-memory queue, a single worker loop with duplicate detection, and a
// bounded-retry dead-letter store. Queues are rebuilt from upstream history
// on restart; nothing here persists.
package scrobble

import (
	"context"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

// Client is the contract a vendor scrobble adapter implements. Adapters
// classify their errors: transport failures as *ConnectivityError, remote
// rejections as *UpstreamError with the ShowStopper flag set for conditions
// that make the client unusable.
type Client interface {
	// Name identifies the client in logs, metrics, and the status API.
	Name() string

	// RecentHistory returns up to limit recent plays the service knows of,
	// most recent first.
	RecentHistory(ctx context.Context, limit int) ([]models.Play, error)

	// Submit delivers one play and returns the service's confirmed view of
	// it.
	Submit(ctx context.Context, play models.Play) (models.Play, error)

	// TestAuth verifies credentials without submitting anything.
	TestAuth(ctx context.Context) error
}

// Options tunes one client's processor.
type Options struct {
	// CheckExistingScrobbles enables duplicate matching against the
	// client-reported recent history. Off means every queued play is
	// submitted.
	CheckExistingScrobbles bool

	// Tolerance is the close-bucket temporal tolerance for this client's
	// timestamps. Low-granularity services want a minute; default 10s.
	Tolerance time.Duration

	// ScrobbleDelay is the minimum spacing between submissions, respecting
	// upstream rate limits.
	ScrobbleDelay time.Duration

	// ScrobbleSleep is how long the worker sleeps between empty-queue
	// checks.
	ScrobbleSleep time.Duration

	// MaxProcessingRetries bounds loop restarts after fatal errors before
	// the processor stops permanently.
	MaxProcessingRetries int

	// RetryBackoff is the delay before a loop restart after a fatal error.
	RetryBackoff time.Duration

	// DeadLetterRetryCeiling bounds retries per dead-lettered item.
	DeadLetterRetryCeiling int

	// HistoryLimit is how many recent plays to fetch on a refresh.
	HistoryLimit int
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = 10 * time.Second
	}
	if o.ScrobbleSleep <= 0 {
		o.ScrobbleSleep = 10 * time.Second
	}
	if o.MaxProcessingRetries <= 0 {
		o.MaxProcessingRetries = 5
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 15 * time.Second
	}
	if o.DeadLetterRetryCeiling <= 0 {
		o.DeadLetterRetryCeiling = 3
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 20
	}
	return o
}

// submittedCap bounds the per-client memory of successful submissions used
// by the exact-match dedup path. Only recent submissions matter.
const submittedCap = 40
