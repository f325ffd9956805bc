// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package listenbrainz implements the ListenBrainz scrobble client against
// the v1 listen API.
package listenbrainz

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
	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

const (
	DefaultBaseURL = "https://api.listenbrainz.org"
	clientName     = "listenbrainz"
)

// Config holds the ListenBrainz connection settings.
type Config struct {
	BaseURL  string
	Token    string
	Username string
	Timeout  time.Duration
}

// Client submits single listens and reads back the user's listen history.
type Client struct {
	cfg  Config
	http *clients.HTTP
}

func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("listenbrainz: token is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("listenbrainz: username is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: clients.NewHTTP(clientName, cfg.Timeout)}, nil
}

func (c *Client) Name() string { return clientName }

type trackMetadata struct {
	ArtistName  string         `json:"artist_name"`
	TrackName   string         `json:"track_name"`
	ReleaseName string         `json:"release_name,omitempty"`
	Additional  map[string]any `json:"additional_info,omitempty"`
}

type listen struct {
	ListenedAt int64         `json:"listened_at,omitempty"`
	Metadata   trackMetadata `json:"track_metadata"`
}

type submitRequest struct {
	ListenType string   `json:"listen_type"`
	Payload    []listen `json:"payload"`
}

type listensResponse struct {
	Payload struct {
		Listens []struct {
			ListenedAt int64 `json:"listened_at"`
			Metadata   struct {
				ArtistName  string `json:"artist_name"`
				TrackName   string `json:"track_name"`
				ReleaseName string `json:"release_name"`
				Additional  struct {
					DurationMS int64  `json:"duration_ms"`
					RecordingM string `json:"recording_msid"`
				} `json:"additional_info"`
			} `json:"track_metadata"`
		} `json:"listens"`
	} `json:"payload"`
}

// TestAuth validates the token.
func (c *Client) TestAuth(ctx context.Context) error {
	resp, err := c.get(ctx, "/1/validate-token", nil)
	if err != nil {
		return err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("listenbrainz: decode validate-token: %w", err)
	}
	if !out.Valid {
		return &scrobble.UpstreamError{Message: "listenbrainz token rejected", ShowStopper: true}
	}
	return nil
}

// Submit sends one listen. ListenBrainz anchors listened_at at the start of
// the listen, so the confirmed play is marked accordingly.
func (c *Client) Submit(ctx context.Context, play models.Play) (models.Play, error) {
	meta := trackMetadata{
		ArtistName:  strings.Join(play.UniqueArtists(), ", "),
		TrackName:   play.Data.Track,
		ReleaseName: play.Data.Album,
		Additional: map[string]any{
			"submission_client": "scrobblerelay",
		},
	}
	if play.Data.Duration > 0 {
		meta.Additional["duration_ms"] = play.Data.Duration.Milliseconds()
	}
	req := submitRequest{
		ListenType: "single",
		Payload:    []listen{{ListenedAt: play.Data.PlayDate.Unix(), Metadata: meta}},
	}

	resp, err := c.post(ctx, "/1/submit-listens", req)
	if err != nil {
		return models.Play{}, err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return models.Play{}, clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}

	confirmed := play
	confirmed.Meta.Anchor = models.AnchorStart
	return confirmed, nil
}

// RecentHistory fetches the newest listens for the configured user.
func (c *Client) RecentHistory(ctx context.Context, limit int) ([]models.Play, error) {
	path := fmt.Sprintf("/1/user/%s/listens", url.PathEscape(c.cfg.Username))
	resp, err := c.get(ctx, path, url.Values{"count": {fmt.Sprint(limit)}})
	if err != nil {
		return nil, err
	}
	body := clients.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, clients.ClassifyStatus(clientName, resp.StatusCode, body)
	}

	var out listensResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("listenbrainz: decode listens: %w", err)
	}

	plays := make([]models.Play, 0, len(out.Payload.Listens))
	for _, l := range out.Payload.Listens {
		plays = append(plays, models.Play{
			Data: models.PlayData{
				Artists:  splitArtists(l.Metadata.ArtistName),
				Album:    l.Metadata.ReleaseName,
				Track:    l.Metadata.TrackName,
				Duration: time.Duration(l.Metadata.Additional.DurationMS) * time.Millisecond,
				PlayDate: time.Unix(l.ListenedAt, 0),
			},
			Meta: models.PlayMeta{
				Source:  clientName,
				TrackID: l.Metadata.Additional.RecordingM,
				Anchor:  models.AnchorStart,
			},
		})
	}
	return plays, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	return c.http.Do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// splitArtists undoes the joined artist_name field on a best-effort basis.
func splitArtists(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ", ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
