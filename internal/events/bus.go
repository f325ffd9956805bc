// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package events is the in-process observability bus. Worker loops publish
// lifecycle events (queued, dequeued, scrobbled, dead-lettered, status
// changes); LogSubscriber drains them into the structured log. The core
// never consumes its own events, so a slow subscriber cannot stall delivery.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cwadley/scrobblerelay/internal/metrics"
	"github.com/cwadley/scrobblerelay/internal/models"
)

// Topics.
const (
	TopicScrobbleQueued   = "scrobble.queued"
	TopicScrobbleDequeued = "scrobble.dequeued"
	TopicScrobbled        = "scrobble.scrobbled"
	TopicDeadLetter       = "scrobble.deadletter"
	TopicStatusChange     = "status.change"
)

// ScrobbleEvent reports one play moving through a client's queue.
type ScrobbleEvent struct {
	Client string      `json:"client"`
	Source string      `json:"source"`
	Play   models.Play `json:"play"`
	At     time.Time   `json:"at"`
}

// DeadLetterEvent reports one play entering the dead-letter store.
type DeadLetterEvent struct {
	Client string                    `json:"client"`
	Entry  models.DeadLetterScrobble `json:"entry"`
	At     time.Time                 `json:"at"`
}

// StatusChangeEvent reports a source or client state transition.
type StatusChangeEvent struct {
	// Kind is "source" or "client".
	Kind string    `json:"kind"`
	Name string    `json:"name"`
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Bus wraps a Watermill gochannel Pub/Sub. Publishing never blocks on
// subscribers (buffered, non-persistent); events are observability, not
// control flow.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, watermill.NopLogger{}),
	}
}

// Publish marshals payload as JSON and publishes it on topic. Errors are
// returned for callers that want to log them; they never affect pipeline
// control flow.
func (b *Bus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns a channel of messages for topic, closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down; pending messages are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
