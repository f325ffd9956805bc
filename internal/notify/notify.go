// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package notify delivers operator notifications (poller died, client
// stopped, dead-letter growth). Delivery is fire-and-forget: a failing
// notifier is logged and counted, never allowed to affect pipeline control
// flow.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/metrics"
)

// Priority of a notification.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Event is one notification.
type Event struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

// Notifier delivers one notification to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}

// notifyTimeout bounds a single delivery attempt.
const notifyTimeout = 10 * time.Second

// Multi fans an event out to every configured notifier and swallows
// failures.
type Multi struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewMulti creates the fan-out notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		log:       logging.With().Str("component", "notify").Logger(),
	}
}

// Notify sends the event to all notifiers in the background. It returns
// immediately; callers cannot observe delivery failures by design.
func (m *Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m.notifiers {
		go func(n Notifier) {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := n.Notify(nctx, event); err != nil {
				metrics.NotificationsSent.WithLabelValues(n.Name(), "error").Inc()
				m.log.Warn().Err(err).Str("notifier", n.Name()).Str("title", event.Title).Msg("notification failed")
				return
			}
			metrics.NotificationsSent.WithLabelValues(n.Name(), "ok").Inc()
		}(n)
	}
}

// Len reports the number of configured notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}
