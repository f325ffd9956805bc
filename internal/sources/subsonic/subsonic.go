// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package subsonic exposes a Subsonic-compatible server's getNowPlaying
// endpoint as a snapshot source. Snapshots carry no play boundary, so the
// poller runs them through the stateful detector.
package subsonic

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cwadley/scrobblerelay/internal/clients"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

const apiVersion = "1.16.1"

// Config holds the Subsonic connection settings.
type Config struct {
	Name     string
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

type Source struct {
	cfg  Config
	http *clients.HTTP
}

func New(cfg Config) (*Source, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("subsonic: base url is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("subsonic: username and password are required")
	}
	if cfg.Name == "" {
		cfg.Name = "subsonic"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Source{cfg: cfg, http: clients.NewHTTP(cfg.Name, cfg.Timeout)}, nil
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) TestConnection(ctx context.Context) error {
	_, err := s.call(ctx, "ping")
	return err
}

type envelope struct {
	Response struct {
		Status string `json:"status"`
		Error  struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		NowPlaying struct {
			Entry []struct {
				ID         string `json:"id"`
				Title      string `json:"title"`
				Artist     string `json:"artist"`
				Album      string `json:"album"`
				Duration   int64  `json:"duration"`
				Username   string `json:"username"`
				PlayerID   int    `json:"playerId"`
				MinutesAgo int    `json:"minutesAgo"`
			} `json:"entry"`
		} `json:"nowPlaying"`
	} `json:"subsonic-response"`
}

// NowPlaying returns one play per active player.
func (s *Source) NowPlaying(ctx context.Context) ([]models.Play, error) {
	env, err := s.call(ctx, "getNowPlaying")
	if err != nil {
		return nil, err
	}

	entries := env.Response.NowPlaying.Entry
	plays := make([]models.Play, 0, len(entries))
	for _, e := range entries {
		plays = append(plays, models.Play{
			Data: models.PlayData{
				Artists:  []string{e.Artist},
				Album:    e.Album,
				Track:    e.Title,
				Duration: time.Duration(e.Duration) * time.Second,
			},
			Meta: models.PlayMeta{
				Source:   s.cfg.Name,
				TrackID:  e.ID,
				User:     e.Username,
				DeviceID: fmt.Sprintf("player-%d", e.PlayerID),
				Anchor:   models.AnchorStart,
			},
		})
	}
	return plays, nil
}

// call performs one rest endpoint request with salted token auth.
func (s *Source) call(ctx context.Context, endpoint string) (*envelope, error) {
	salt := newSalt()
	sum := md5.Sum([]byte(s.cfg.Password + salt))

	q := url.Values{}
	q.Set("u", s.cfg.Username)
	q.Set("t", hex.EncodeToString(sum[:]))
	q.Set("s", salt)
	q.Set("v", apiVersion)
	q.Set("c", "scrobblerelay")
	q.Set("f", "json")

	u := fmt.Sprintf("%s/rest/%s?%s", s.cfg.BaseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, clients.ClassifyStatus(s.cfg.Name, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("subsonic: decode %s: %w", endpoint, err)
	}
	if env.Response.Status != "ok" {
		return nil, &scrobble.UpstreamError{
			Message:     fmt.Sprintf("subsonic %s error %d: %s", endpoint, env.Response.Error.Code, env.Response.Error.Message),
			ShowStopper: env.Response.Error.Code == 40, // wrong username or password
		}
	}
	return &env, nil
}

func newSalt() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "scrobblerelay"
	}
	return hex.EncodeToString(buf)
}
