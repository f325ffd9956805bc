// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package models

import (
	"time"

	"github.com/google/uuid"
)

// QueuedScrobble is one play waiting for delivery to one client.
// It exists from enqueue until successful delivery or permanent failure.
type QueuedScrobble struct {
	ID     string `json:"id"`
	// Source names the origin adapter, for logs and events.
	Source string `json:"source"`
	Play   Play   `json:"play"`
}

// NewQueuedScrobble wraps a play for queueing, assigning the queue id and
// stamping it into the play's meta as its in-flight PlayID.
func NewQueuedScrobble(source string, play Play) QueuedScrobble {
	id := uuid.NewString()
	play.Meta.PlayID = id
	return QueuedScrobble{ID: id, Source: source, Play: play}
}

// DeadLetterScrobble is a play whose delivery failed with a non-fatal
// upstream error. It is retried on a schedule outside the main queue.
type DeadLetterScrobble struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Play      Play      `json:"play"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
	LastRetry time.Time `json:"last_retry,omitempty"`
}

// ScrobbledPlay pairs what we sent with what the client confirmed.
// Kept in a small bounded list per client for the exact-match dedup path.
type ScrobbledPlay struct {
	// Play is the record as submitted.
	Play Play `json:"play"`
	// Scrobble is the client's returned/confirmed view of the record.
	Scrobble Play `json:"scrobble"`
}
