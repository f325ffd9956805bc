// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package maloja implements the Maloja scrobble client against the mlj_1
// native API.
package maloja

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cwadley/scrobblerelay/internal/clients"
	"github.com/cwadley/scrobblerelay/internal/models"
)

const clientName = "maloja"

// Config holds the Maloja connection settings. BaseURL points at the server
// root, e.g. http://maloja:42010.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *clients.HTTP
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("maloja: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("maloja: api key is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: clients.NewHTTP(clientName, cfg.Timeout)}, nil
}

func (c *Client) Name() string { return clientName }

// TestAuth checks server reachability and key validity.
func (c *Client) TestAuth(ctx context.Context) error {
	u := fmt.Sprintf("%s/apis/mlj_1/test?key=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}
	return nil
}

type newScrobble struct {
	Key      string   `json:"key"`
	Artists  []string `json:"artists"`
	Title    string   `json:"title"`
	Album    string   `json:"album,omitempty"`
	Duration int64    `json:"duration,omitempty"`
	Time     int64    `json:"time"`
}

// Submit posts one scrobble. Maloja timestamps mark the end of the listen.
func (c *Client) Submit(ctx context.Context, play models.Play) (models.Play, error) {
	payload := newScrobble{
		Key:     c.cfg.APIKey,
		Artists: play.UniqueArtists(),
		Title:   play.Data.Track,
		Album:   play.Data.Album,
		Time:    play.Data.PlayDate.Unix(),
	}
	if play.Data.Duration > 0 {
		payload.Duration = int64(play.Data.Duration.Seconds())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Play{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/apis/mlj_1/newscrobble", bytes.NewReader(raw))
	if err != nil {
		return models.Play{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Play{}, err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.Play{}, clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}

	confirmed := play
	confirmed.Meta.Anchor = models.AnchorEnd
	return confirmed, nil
}

type scrobblesResponse struct {
	List []struct {
		Time  int64 `json:"time"`
		Track struct {
			Title   string   `json:"title"`
			Artists []string `json:"artists"`
			Album   struct {
				Title string `json:"albumtitle"`
			} `json:"album"`
			Length int64 `json:"length"`
		} `json:"track"`
	} `json:"list"`
}

// RecentHistory fetches the newest scrobbles.
func (c *Client) RecentHistory(ctx context.Context, limit int) ([]models.Play, error) {
	u := fmt.Sprintf("%s/apis/mlj_1/scrobbles?perpage=%d", c.cfg.BaseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}

	var out scrobblesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("maloja: decode scrobbles: %w", err)
	}

	plays := make([]models.Play, 0, len(out.List))
	for _, s := range out.List {
		plays = append(plays, models.Play{
			Data: models.PlayData{
				Artists:  s.Track.Artists,
				Album:    s.Track.Album.Title,
				Track:    s.Track.Title,
				Duration: time.Duration(s.Track.Length) * time.Second,
				PlayDate: time.Unix(s.Time, 0),
			},
			Meta: models.PlayMeta{
				Source: clientName,
				Anchor: models.AnchorEnd,
			},
		})
	}
	return plays, nil
}
