// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package source drives the polling side of the pipeline: adapters expose a
// remote service's recent or now-playing activity, and a Poller turns that
// into confirmed plays handed to every client queue.
package source

import (
	"context"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

// Source is the minimal adapter contract.
type Source interface {
	Name() string
	TestConnection(ctx context.Context) error
}

// HistorySource reports already-discrete finished plays, newest first or not;
// the poller only cares about playDate. These bypass the play detector.
type HistorySource interface {
	Source
	RecentPlays(ctx context.Context) ([]models.Play, error)
}

// SnapshotSource reports the current now-playing state of every active
// player. Snapshots carry no play boundary, so they run through the stateful
// detector before anything is handed off.
type SnapshotSource interface {
	Source
	NowPlaying(ctx context.Context) ([]models.Play, error)
}

// Status is the externally visible poller state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPolling  Status = "polling"
	StatusRetrying Status = "retrying"
	StatusStopped  Status = "stopped"
)

// Snapshot is the per-source view served by the status API.
type Snapshot struct {
	Source        string    `json:"source"`
	Status        Status    `json:"status"`
	LastPoll      time.Time `json:"lastPoll,omitempty"`
	LastActivity  time.Time `json:"lastActivity,omitempty"`
	LastKnownPlay time.Time `json:"lastKnownPlay,omitempty"`
	Interval      string    `json:"interval"`
	LastError     string    `json:"lastError,omitempty"`
}

// SinkFunc receives each confirmed new play, typically fanning it out to all
// client processors.
type SinkFunc func(source string, play models.Play)

// Options tunes one source's polling loop.
type Options struct {
	// Interval is the base sleep between poll cycles.
	Interval time.Duration
	// MaxInterval bounds the backed-off sleep during inactivity.
	MaxInterval time.Duration
	// CheckActiveFor is how long without new activity before the sleep
	// starts growing.
	CheckActiveFor time.Duration
	// MaxPollRetries bounds consecutive fetch failures before the loop
	// stops.
	MaxPollRetries int
	// RetryMultiplier scales the linear retry delay: attempt * multiplier.
	RetryMultiplier time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Minute
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	if o.CheckActiveFor <= 0 {
		o.CheckActiveFor = 5 * time.Minute
	}
	if o.MaxPollRetries <= 0 {
		o.MaxPollRetries = 5
	}
	if o.RetryMultiplier <= 0 {
		o.RetryMultiplier = time.Second
	}
	return o
}
