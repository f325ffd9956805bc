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
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// WebhookConfig configures the generic webhook notifier.
type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`
	// RateLimit is the minimum spacing between deliveries; bursts beyond it
	// are dropped, not queued. Default 500ms.
	RateLimit time.Duration `koanf:"rate_limit"`
}

// Webhook posts notifications as JSON to a configured endpoint.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client

	mu        sync.Mutex
	lastSent  time.Time
	rateLimit time.Duration
}

// webhookPayload is the JSON body sent to the endpoint.
type webhookPayload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  int       `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin"`
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) *Webhook {
	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = 500 * time.Millisecond
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Webhook{
		url:       cfg.URL,
		headers:   headers,
		rateLimit: rateLimit,
		client:    &http.Client{Timeout: notifyTimeout},
	}
}

// Name returns the notifier name.
func (w *Webhook) Name() string { return "webhook" }

// Notify posts the event. Deliveries inside the rate-limit window are
// silently dropped.
func (w *Webhook) Notify(ctx context.Context, event Event) error {
	w.mu.Lock()
	if time.Since(w.lastSent) < w.rateLimit {
		w.mu.Unlock()
		return nil
	}
	w.lastSent = time.Now()
	w.mu.Unlock()

	body, err := json.Marshal(webhookPayload{
		Title:     event.Title,
		Message:   event.Message,
		Priority:  int(event.Priority),
		Timestamp: time.Now().UTC(),
		Origin:    "scrobblerelay",
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}
