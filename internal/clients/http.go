// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package clients holds the shared plumbing for vendor scrobble adapters:
// a circuit-broken HTTP transport and the status-code error classification
// every adapter maps through.
package clients

import (
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

const defaultTimeout = 30 * time.Second

// HTTP is a vendor-facing HTTP client guarded by a circuit breaker. The
// breaker trips on consecutive transport failures; an open breaker and any
// transport error both surface as a ConnectivityError so the processor
// treats them as fatal.
type HTTP struct {
	name   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTP builds the guarded client for one vendor adapter.
func NewHTTP(name string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := logging.With().Str("component", "vendorhttp").Str("client", name).Logger()
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &HTTP{
		name:   name,
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Do executes the request through the breaker. The caller owns the response
// body on success.
func (h *HTTP) Do(req *http.Request) (*http.Response, error) {
	resp, err := h.cb.Execute(func() (*http.Response, error) {
		return h.client.Do(req)
	})
	if err != nil {
		return nil, &scrobble.ConnectivityError{Op: h.name + " " + req.URL.Host, Cause: err}
	}
	return resp, nil
}

// BreakerState reports the breaker state for diagnostics.
func (h *HTTP) BreakerState() string { return h.cb.State().String() }

// ClassifyStatus maps a non-2xx vendor response to the error taxonomy:
// auth failures are show-stoppers, everything else is a retryable upstream
// error.
func ClassifyStatus(client string, status int, body []byte) error {
	msg := fmt.Sprintf("%s returned %d", client, status)
	if len(body) > 0 {
		const max = 256
		if len(body) > max {
			body = body[:max]
		}
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &scrobble.UpstreamError{Message: msg, ShowStopper: true}
	default:
		return &scrobble.UpstreamError{Message: msg}
	}
}

// ReadBody drains and closes a response body, capped for error reporting.
func ReadBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return body
}
