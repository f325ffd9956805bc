// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package events

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/cwadley/scrobblerelay/internal/models"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, TopicScrobbled)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	want := ScrobbleEvent{
		Client: "listenbrainz",
		Source: "subsonic",
		Play:   models.Play{Data: models.PlayData{Track: "Track", Artists: []string{"Artist"}}},
		At:     time.Now().UTC(),
	}
	if err := bus.Publish(TopicScrobbled, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		var got ScrobbleEvent
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		msg.Ack()
		if got.Client != want.Client || got.Play.Data.Track != want.Play.Data.Track {
			t.Errorf("Got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No message received")
	}
}

func TestBus_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_ = bus.Publish(TopicScrobbleQueued, ScrobbleEvent{Client: "c"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
