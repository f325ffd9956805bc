// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
	"github.com/cwadley/scrobblerelay/internal/source"
	"github.com/cwadley/scrobblerelay/internal/sources/webhook"
	"github.com/cwadley/scrobblerelay/internal/transform"
)

type stubClient struct{ name string }

func (c *stubClient) Name() string { return c.name }
func (c *stubClient) TestAuth(ctx context.Context) error { return nil }
func (c *stubClient) RecentHistory(ctx context.Context, limit int) ([]models.Play, error) {
	return nil, nil
}
func (c *stubClient) Submit(ctx context.Context, play models.Play) (models.Play, error) {
	return play, nil
}

type stubSource struct{ name string }

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) TestConnection(ctx context.Context) error { return nil }
func (s *stubSource) RecentPlays(ctx context.Context) ([]models.Play, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *scrobble.Processor, *webhook.Source) {
	t.Helper()

	mgr := source.NewManager()
	if err := mgr.Add(source.NewPoller(&stubSource{name: "music"}, source.Options{}, func(string, models.Play) {}, nil, nil)); err != nil {
		t.Fatalf("Add poller: %v", err)
	}

	proc := scrobble.NewProcessor(&stubClient{name: "maloja"}, scrobble.Options{}, transform.NewEmptyPipeline(), nil, nil)
	hook := webhook.New("jellyfin", func(string, models.Play) {})

	s := NewServer(Options{Host: "127.0.0.1", Port: 0}, mgr, []*scrobble.Processor{proc}, map[string]*webhook.Source{"jellyfin": hook})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, proc, hook
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("body = %s", body)
	}
}

func TestStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out statusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0].Source != "music" {
		t.Errorf("sources = %+v", out.Sources)
	}
	if len(out.Clients) != 1 || out.Clients[0].Client != "maloja" {
		t.Errorf("clients = %+v", out.Clients)
	}
	if out.Clients[0].Status != scrobble.StatusNotInitialized {
		t.Errorf("client status = %q, want %q", out.Clients[0].Status, scrobble.StatusNotInitialized)
	}
}

func TestWebhookIngest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	payload := `{"artist":"Alpha","track":"Song","playDate":1767268800}`
	resp, err := http.Post(srv.URL+"/api/webhook/jellyfin", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	// Unknown webhook name.
	resp, err = http.Post(srv.URL+"/api/webhook/unknown", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown source status = %d, want 404", resp.StatusCode)
	}

	// Invalid payload is rejected, not accepted silently.
	resp, err = http.Post(srv.URL+"/api/webhook/jellyfin", "application/json", bytes.NewBufferString(`{"track":"only"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid payload status = %d, want 422", resp.StatusCode)
	}
}

func TestDeadLetterEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := get(t, srv.URL+"/api/deadletter")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var groups []deadLetterGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 1 || groups[0].Client != "maloja" || len(groups[0].Entries) != 0 {
		t.Errorf("groups = %+v", groups)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/deadletter/maloja/nope", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing entry status = %d, want 404", delResp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/api/deadletter/process", "application/json", nil)
	if err != nil {
		t.Fatalf("POST process: %v", err)
	}
	processBody, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("process status = %d, want 200", resp2.StatusCode)
	}
	var results map[string]string
	if err := json.Unmarshal(processBody, &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results["maloja"] != "ok" {
		t.Errorf("results = %v", results)
	}
}

func TestPollNudge(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/source/music/poll", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/source/none/poll", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing source status = %d, want 404", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("go_goroutines")) {
		t.Error("metrics output looks empty")
	}
}
