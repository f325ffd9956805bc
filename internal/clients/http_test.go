// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package clients

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwadley/scrobblerelay/internal/scrobble"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status      int
		showStopper bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadRequest, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		err := ClassifyStatus("test", tt.status, []byte("detail"))
		if scrobble.IsFatal(err) != tt.showStopper {
			t.Errorf("status %d: IsFatal = %v, want %v", tt.status, scrobble.IsFatal(err), tt.showStopper)
		}
		if !tt.showStopper && !scrobble.IsNonFatalUpstream(err) {
			t.Errorf("status %d: want non-fatal upstream classification", tt.status)
		}
	}
}

func TestDoMapsTransportFailureToConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	h := NewHTTP("test", 0)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := h.Do(req)
	if !scrobble.IsConnectivity(err) {
		t.Fatalf("Do returned %v, want connectivity error", err)
	}
}

func TestDoPassesThroughResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	h := NewHTTP("test", 0)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := h.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	// Status handling belongs to the adapter, not the transport guard.
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d, want 418", resp.StatusCode)
	}
}
