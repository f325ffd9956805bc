// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package webhook accepts plays pushed over HTTP instead of polled. Discrete
// payloads hand off directly; now-playing payloads run through a detector fed
// by repeated deliveries. An LRU keyed on the payload identity absorbs the
// duplicate deliveries webhook emitters are prone to.
package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/cache"
	"github.com/cwadley/scrobblerelay/internal/detection"
	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/metrics"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/source"
)

const (
	dedupeCapacity = 512
	dedupeTTL      = 30 * time.Second
)

// Payload is the accepted ingest body.
type Payload struct {
	Artists    []string `json:"artists"`
	Artist     string   `json:"artist,omitempty"`
	Album      string   `json:"album,omitempty"`
	Track      string   `json:"track"`
	DurationS  int64    `json:"duration,omitempty"`
	PlayDate   int64    `json:"playDate,omitempty"`
	NowPlaying bool     `json:"nowPlaying,omitempty"`
	User       string   `json:"user,omitempty"`
	DeviceID   string   `json:"deviceId,omitempty"`
	TrackID    string   `json:"trackId,omitempty"`
}

// Source ingests pushed plays for one webhook name.
type Source struct {
	name     string
	sink     source.SinkFunc
	detector *detection.Detector
	dedupe   *cache.LRU
	log      zerolog.Logger
}

func New(name string, sink source.SinkFunc) *Source {
	if name == "" {
		name = "webhook"
	}
	return &Source{
		name:     name,
		sink:     sink,
		detector: detection.New(name),
		dedupe:   cache.NewLRU(dedupeCapacity, dedupeTTL),
		log:      logging.With().Str("component", "webhook").Str("source", name).Logger(),
	}
}

func (s *Source) Name() string { return s.name }

// Ingest validates and routes one pushed payload. Repeated identical
// discrete deliveries inside the dedupe TTL are dropped.
func (s *Source) Ingest(p Payload) error {
	play, err := s.toPlay(p)
	if err != nil {
		return err
	}

	if p.NowPlaying {
		// Snapshot path: each delivery updates the detector; confirmed
		// plays come out once matured.
		for _, confirmed := range s.detector.Process([]models.Play{play}) {
			metrics.PlaysDiscovered.WithLabelValues(s.name).Inc()
			s.log.Info().Str("play", confirmed.String()).Msg("webhook play confirmed")
			s.sink(s.name, confirmed)
		}
		return nil
	}

	key := dedupeKey(play)
	if s.dedupe.Seen(key) {
		s.log.Debug().Str("play", play.String()).Msg("duplicate webhook delivery dropped")
		return nil
	}
	metrics.PlaysDiscovered.WithLabelValues(s.name).Inc()
	s.log.Info().Str("play", play.String()).Msg("webhook play received")
	s.sink(s.name, play)
	return nil
}

func (s *Source) toPlay(p Payload) (models.Play, error) {
	artists := p.Artists
	if len(artists) == 0 && p.Artist != "" {
		artists = []string{p.Artist}
	}
	if len(artists) == 0 || strings.TrimSpace(p.Track) == "" {
		return models.Play{}, fmt.Errorf("webhook payload needs track and at least one artist")
	}

	playDate := time.Now()
	if p.PlayDate > 0 {
		playDate = time.Unix(p.PlayDate, 0)
	}
	return models.Play{
		Data: models.PlayData{
			Artists:  artists,
			Album:    p.Album,
			Track:    p.Track,
			Duration: time.Duration(p.DurationS) * time.Second,
			PlayDate: playDate,
		},
		Meta: models.PlayMeta{
			Source:        s.name,
			TrackID:       p.TrackID,
			User:          p.User,
			DeviceID:      p.DeviceID,
			NewFromSource: !p.NowPlaying,
		},
	}, nil
}

func dedupeKey(play models.Play) string {
	return fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.Join(play.Data.Artists, ",")),
		strings.ToLower(play.Data.Track),
		strings.ToLower(play.Data.Album),
		play.Data.PlayDate.Unix())
}
