// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// NtfyConfig configures the ntfy notifier.
type NtfyConfig struct {
	URL   string `koanf:"url"`
	Topic string `koanf:"topic"`
	Token string `koanf:"token"`
}

// Ntfy publishes notifications to an ntfy topic.
type Ntfy struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewNtfy creates an ntfy notifier.
func NewNtfy(cfg NtfyConfig) *Ntfy {
	return &Ntfy{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/" + cfg.Topic,
		token:    cfg.Token,
		client:   &http.Client{Timeout: notifyTimeout},
	}
}

// Name returns the notifier name.
func (n *Ntfy) Name() string { return "ntfy" }

func ntfyPriority(p Priority) string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "default"
	default:
		return "low"
	}
}

// Notify publishes the event; ntfy takes the message as the request body and
// metadata as headers.
func (n *Ntfy) Notify(ctx context.Context, event Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(event.Message))
	if err != nil {
		return fmt.Errorf("ntfy: request: %w", err)
	}
	req.Header.Set("Title", event.Title)
	req.Header.Set("Priority", ntfyPriority(event.Priority))
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy: status %d", resp.StatusCode)
	}
	return nil
}
