// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package listenbrainz exposes a ListenBrainz account as a play source.
// Listens are already discrete, so the poller takes them as history and
// skips the detector.
package listenbrainz

import (
	"context"
	"time"

	lb "github.com/cwadley/scrobblerelay/internal/clients/listenbrainz"
	"github.com/cwadley/scrobblerelay/internal/models"
)

const defaultLimit = 25

// Config holds the source settings. Name defaults to "listenbrainz" and
// must be unique across configured sources.
type Config struct {
	Name     string
	BaseURL  string
	Token    string
	Username string
	Limit    int
	Timeout  time.Duration
}

type Source struct {
	name   string
	limit  int
	client *lb.Client
}

func New(cfg Config) (*Source, error) {
	client, err := lb.New(lb.Config{
		BaseURL:  cfg.BaseURL,
		Token:    cfg.Token,
		Username: cfg.Username,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "listenbrainz"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Source{name: name, limit: limit, client: client}, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) TestConnection(ctx context.Context) error {
	return s.client.TestAuth(ctx)
}

// RecentPlays returns the account's newest listens, restamped with this
// source's name.
func (s *Source) RecentPlays(ctx context.Context) ([]models.Play, error) {
	plays, err := s.client.RecentHistory(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	for i := range plays {
		plays[i].Meta.Source = s.name
	}
	return plays, nil
}
