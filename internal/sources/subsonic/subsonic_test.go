// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package subsonic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{BaseURL: srv.URL, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNowPlaying(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/getNowPlaying" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("u") != "alice" || q.Get("f") != "json" || q.Get("c") != "scrobblerelay" {
			t.Errorf("query = %v", q)
		}
		// Token must be md5(password + salt).
		sum := md5.Sum([]byte("secret" + q.Get("s")))
		if q.Get("t") != hex.EncodeToString(sum[:]) {
			t.Errorf("token does not match salted password hash")
		}
		w.Write([]byte(`{"subsonic-response":{"status":"ok","nowPlaying":{"entry":[
			{"id":"tr-1","title":"Song","artist":"Alpha","album":"Record","duration":200,"username":"alice","playerId":3,"minutesAgo":0}
		]}}}`))
	})

	plays, err := s.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if len(plays) != 1 {
		t.Fatalf("len = %d, want 1", len(plays))
	}
	p := plays[0]
	if p.Data.Track != "Song" || p.Data.Duration != 200*time.Second {
		t.Errorf("play = %+v", p.Data)
	}
	if p.Meta.TrackID != "tr-1" || p.Meta.User != "alice" || p.Meta.DeviceID != "player-3" {
		t.Errorf("meta = %+v", p.Meta)
	}
	if p.Meta.Anchor != models.AnchorStart {
		t.Errorf("Anchor = %q, want %q", p.Meta.Anchor, models.AnchorStart)
	}
}

func TestSubsonicErrorEnvelope(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subsonic-response":{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}}`))
	})
	_, err := s.NowPlaying(context.Background())
	if err == nil {
		t.Fatal("NowPlaying returned nil, want error")
	}
	if !scrobble.IsFatal(err) {
		t.Errorf("credential error must be fatal, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/ping" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"subsonic-response":{"status":"ok"}}`))
	})
	if err := s.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}
