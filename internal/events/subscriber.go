// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/logging"
)

// LogSubscriber drains every bus topic into the structured log. It is the
// standing consumer of the observability surface; without it a gochannel
// publish with no subscriber is silently dropped.
type LogSubscriber struct {
	bus *Bus
	log zerolog.Logger
}

// NewLogSubscriber creates a subscriber over the global logger.
func NewLogSubscriber(bus *Bus) *LogSubscriber {
	return &LogSubscriber{
		bus: bus,
		log: logging.With().Str("component", "events").Logger(),
	}
}

// NewLogSubscriberWithLogger is the injectable-logger variant for tests.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLogSubscriberWithLogger(bus *Bus, log zerolog.Logger) *LogSubscriber {
	return &LogSubscriber{bus: bus, log: log}
}

// Run subscribes to all topics and logs each event until ctx ends. It is a
// suture service body; the message channels close when ctx is done.
func (s *LogSubscriber) Run(ctx context.Context) error {
	topics := []string{
		TopicScrobbleQueued,
		TopicScrobbleDequeued,
		TopicScrobbled,
		TopicDeadLetter,
		TopicStatusChange,
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		msgs, err := s.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("events: subscribe %s: %w", topic, err)
		}
		wg.Add(1)
		go func(topic string, msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				s.record(topic, msg.Payload)
				msg.Ack()
			}
		}(topic, msgs)
	}
	wg.Wait()
	return nil
}

func (s *LogSubscriber) record(topic string, payload []byte) {
	switch topic {
	case TopicScrobbleQueued, TopicScrobbleDequeued, TopicScrobbled:
		var ev ScrobbleEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.undecodable(topic, err)
			return
		}
		entry := s.log.Debug()
		if topic == TopicScrobbled {
			entry = s.log.Info()
		}
		entry.Str("topic", topic).
			Str("client", ev.Client).
			Str("source", ev.Source).
			Str("play", ev.Play.String()).
			Msg("scrobble event")
	case TopicDeadLetter:
		var ev DeadLetterEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.undecodable(topic, err)
			return
		}
		s.log.Warn().Str("topic", topic).
			Str("client", ev.Client).
			Str("id", ev.Entry.ID).
			Str("play", ev.Entry.Play.String()).
			Str("last_error", ev.Entry.LastError).
			Int("retries", ev.Entry.Retries).
			Msg("scrobble dead-lettered")
	case TopicStatusChange:
		var ev StatusChangeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.undecodable(topic, err)
			return
		}
		s.log.Info().Str("topic", topic).
			Str("kind", ev.Kind).
			Str("name", ev.Name).
			Str("from", ev.From).
			Str("to", ev.To).
			Msg("status change")
	}
}

func (s *LogSubscriber) undecodable(topic string, err error) {
	s.log.Warn().Err(err).Str("topic", topic).Msg("undecodable event payload")
}
