// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package scrobble

// Status is the client processor state machine:
//
//	NotInitialized -> Initializing -> {Ready -> Scrobbling -> {Scrobbling|Idle|Errored}} | InitFailed
//
// Scrobbling exits to Idle only via an acknowledged stop request or to
// Errored via an unrecoverable error.
type Status string

const (
	StatusNotInitialized Status = "not_initialized"
	StatusInitializing   Status = "initializing"
	StatusInitFailed     Status = "init_failed"
	StatusReady          Status = "ready"
	StatusScrobbling     Status = "scrobbling"
	StatusIdle           Status = "idle"
	StatusErrored        Status = "errored"
)

// Snapshot is the externally visible view of one client processor, served by
// the status API.
type Snapshot struct {
	Client      string `json:"client"`
	Status      Status `json:"status"`
	QueueDepth  int    `json:"queue_depth"`
	DeadLetters int    `json:"dead_letters"`
	Submitted   int    `json:"submitted"`
	LastError   string `json:"last_error,omitempty"`
}
