// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package lastfm implements the Last.fm scrobble client on top of
// shkh/lastfm-go, using a pre-authorized session key.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lfm "github.com/shkh/lastfm-go/lastfm"

	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

const clientName = "lastfm"

// Last.fm API error codes that mean the credentials are no longer usable.
var showStopperCodes = map[int]bool{
	4:  true, // authentication failed
	9:  true, // invalid session key
	10: true, // invalid API key
	14: true, // token not authorized
	26: true, // API key suspended
}

// Config holds the Last.fm API credentials. SessionKey comes from the
// desktop auth flow, performed out of band.
type Config struct {
	APIKey     string
	APISecret  string
	SessionKey string
	Username   string
}

type Client struct {
	cfg Config
	api *lfm.Api
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("lastfm: api key and secret are required")
	}
	if cfg.SessionKey == "" {
		return nil, fmt.Errorf("lastfm: session key is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("lastfm: username is required")
	}
	api := lfm.New(cfg.APIKey, cfg.APISecret)
	api.SetSession(cfg.SessionKey)
	return &Client{cfg: cfg, api: api}, nil
}

func (c *Client) Name() string { return clientName }

// TestAuth verifies the session by fetching the account's user info.
func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.api.User.GetInfo(lfm.P{"user": c.cfg.Username})
	return classify(err)
}

// Submit scrobbles one play. Last.fm timestamps mark the start of the play.
func (c *Client) Submit(ctx context.Context, play models.Play) (models.Play, error) {
	params := lfm.P{
		"artist":    strings.Join(play.UniqueArtists(), ", "),
		"track":     play.Data.Track,
		"timestamp": play.Data.PlayDate.Unix(),
	}
	if play.Data.Album != "" {
		params["album"] = play.Data.Album
	}
	if play.Data.Duration > 0 {
		params["duration"] = int(play.Data.Duration.Seconds())
	}
	if play.Meta.TrackID != "" {
		params["mbid"] = play.Meta.TrackID
	}
	if _, err := c.api.Track.Scrobble(params); err != nil {
		return models.Play{}, classify(err)
	}

	confirmed := play
	confirmed.Meta.Anchor = models.AnchorStart
	return confirmed, nil
}

// RecentHistory fetches the user's recent tracks, skipping the in-progress
// entry Last.fm includes when something is playing.
func (c *Client) RecentHistory(ctx context.Context, limit int) ([]models.Play, error) {
	result, err := c.api.User.GetRecentTracks(lfm.P{
		"user":  c.cfg.Username,
		"limit": limit,
	})
	if err != nil {
		return nil, classify(err)
	}

	plays := make([]models.Play, 0, len(result.Tracks))
	for _, track := range result.Tracks {
		if track.NowPlaying == "true" {
			continue
		}
		uts, err := strconv.ParseInt(track.Date.Uts, 10, 64)
		if err != nil {
			continue
		}
		plays = append(plays, models.Play{
			Data: models.PlayData{
				Artists:  []string{track.Artist.Name},
				Album:    track.Album.Name,
				Track:    track.Name,
				PlayDate: time.Unix(uts, 0),
			},
			Meta: models.PlayMeta{
				Source: clientName,
				Anchor: models.AnchorStart,
			},
		})
	}
	return plays, nil
}

// classify maps lastfm-go errors onto the shared taxonomy: API errors with
// auth codes are show-stoppers, other API errors retryable, and anything
// else is a transport failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *lfm.LastfmError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return &scrobble.UpstreamError{
			Message:     fmt.Sprintf("lastfm error %d: %s", apiErr.Code, apiErr.Message),
			ShowStopper: showStopperCodes[apiErr.Code],
			Cause:       err,
		}
	}
	return &scrobble.ConnectivityError{Op: "lastfm api", Cause: err}
}
