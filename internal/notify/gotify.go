// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// GotifyConfig configures the Gotify notifier.
type GotifyConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// Gotify sends notifications to a Gotify server.
type Gotify struct {
	endpoint string
	client   *http.Client
}

// NewGotify creates a Gotify notifier.
func NewGotify(cfg GotifyConfig) (*Gotify, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gotify: parse url: %w", err)
	}
	base.Path += "/message"
	q := base.Query()
	q.Set("token", cfg.Token)
	base.RawQuery = q.Encode()
	return &Gotify{
		endpoint: base.String(),
		client:   &http.Client{Timeout: notifyTimeout},
	}, nil
}

// Name returns the notifier name.
func (g *Gotify) Name() string { return "gotify" }

// gotifyPriority maps our priorities onto Gotify's 0-10 scale.
func gotifyPriority(p Priority) int {
	switch p {
	case PriorityHigh:
		return 8
	case PriorityNormal:
		return 5
	default:
		return 2
	}
}

// Notify posts the event as a Gotify message.
func (g *Gotify) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(map[string]any{
		"title":    event.Title,
		"message":  event.Message,
		"priority": gotifyPriority(event.Priority),
	})
	if err != nil {
		return fmt.Errorf("gotify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gotify: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotify: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotify: status %d", resp.StatusCode)
	}
	return nil
}
