// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package webhook

import (
	"testing"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

func TestIngestDiscrete(t *testing.T) {
	var got []models.Play
	s := New("jellyfin", func(source string, play models.Play) {
		if source != "jellyfin" {
			t.Errorf("source = %q, want jellyfin", source)
		}
		got = append(got, play)
	})

	p := Payload{
		Artists:   []string{"Alpha"},
		Album:     "Record",
		Track:     "Song",
		DurationS: 200,
		PlayDate:  1767268800,
	}
	if err := s.Ingest(p); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sink received %d plays, want 1", len(got))
	}
	play := got[0]
	if play.Data.Track != "Song" || play.Data.Duration != 200*time.Second {
		t.Errorf("play = %+v", play.Data)
	}
	if !play.Meta.NewFromSource {
		t.Error("discrete webhook play must be marked NewFromSource")
	}

	// An identical re-delivery within the TTL is absorbed.
	if err := s.Ingest(p); err != nil {
		t.Fatalf("Ingest repeat: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("sink received %d plays after duplicate delivery, want 1", len(got))
	}
}

func TestIngestValidation(t *testing.T) {
	s := New("", func(string, models.Play) { t.Error("sink must not be called") })
	tests := []struct {
		name    string
		payload Payload
	}{
		{"missing track", Payload{Artists: []string{"Alpha"}}},
		{"missing artists", Payload{Track: "Song"}},
		{"blank track", Payload{Artists: []string{"Alpha"}, Track: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Ingest(tt.payload); err == nil {
				t.Error("Ingest returned nil, want validation error")
			}
		})
	}
}

func TestIngestNowPlayingGoesThroughDetector(t *testing.T) {
	var got []models.Play
	s := New("plex", func(_ string, play models.Play) { got = append(got, play) })

	p := Payload{Artist: "Alpha", Track: "Song", DurationS: 200, NowPlaying: true}
	for i := 0; i < 3; i++ {
		if err := s.Ingest(p); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	// The confirmation window has not elapsed; nothing hands off yet.
	if len(got) != 0 {
		t.Errorf("sink received %d plays, want 0 inside the confirmation window", len(got))
	}
	if s.detector.CandidateCount() != 1 {
		t.Errorf("detector candidates = %d, want 1", s.detector.CandidateCount())
	}
}
