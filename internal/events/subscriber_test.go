// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package events

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/models"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogSubscriber_PublishedEventsReachTheLog(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	buf := &syncBuffer{}
	sub := NewLogSubscriberWithLogger(bus, logging.NewTestLogger(buf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	entry := models.DeadLetterScrobble{
		ID:        "dl-1",
		Source:    "subsonic",
		Play:      models.Play{Data: models.PlayData{Track: "Harvest Moon", Artists: []string{"Neil Young"}}},
		Retries:   2,
		LastError: "upstream 503",
	}
	status := StatusChangeEvent{Kind: "client", Name: "maloja", From: "ready", To: "scrobbling", At: time.Now().UTC()}

	// The gochannel pubsub drops messages published before Run's Subscribe
	// calls register, so publish until the subscriber's output shows up.
	deadline := time.After(3 * time.Second)
	for {
		if err := bus.Publish(TopicDeadLetter, DeadLetterEvent{Client: "maloja", Entry: entry, At: time.Now().UTC()}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if err := bus.Publish(TopicStatusChange, status); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		out := buf.String()
		if strings.Contains(out, "scrobble dead-lettered") && strings.Contains(out, "status change") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Subscriber never logged published events; output: %s", buf.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	out := buf.String()
	for _, want := range []string{`"client":"maloja"`, `"last_error":"upstream 503"`, `"to":"scrobbling"`, "Harvest Moon"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %s: %s", want, out)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
