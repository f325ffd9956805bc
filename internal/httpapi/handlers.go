// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
	"github.com/cwadley/scrobblerelay/internal/source"
	"github.com/cwadley/scrobblerelay/internal/sources/webhook"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Sources []source.Snapshot   `json:"sources"`
	Clients []scrobble.Snapshot `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sources: s.sources.Snapshots()}
	for _, p := range s.processors {
		resp.Clients = append(resp.Clients, p.Snapshot())
	}
	writeJSON(w, http.StatusOK, resp)
}

type deadLetterGroup struct {
	Client  string                      `json:"client"`
	Entries []models.DeadLetterScrobble `json:"entries"`
}

func (s *Server) handleDeadLetterList(w http.ResponseWriter, r *http.Request) {
	groups := make([]deadLetterGroup, 0, len(s.processors))
	for _, p := range s.processors {
		groups = append(groups, deadLetterGroup{Client: p.Name(), Entries: p.DeadLetters()})
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleDeadLetterRemove(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	id := chi.URLParam(r, "id")
	for _, p := range s.processors {
		if p.Name() != client {
			continue
		}
		if !p.RemoveDeadLetter(id) {
			writeError(w, http.StatusNotFound, "no such dead-letter entry")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"removed": id})
		return
	}
	writeError(w, http.StatusNotFound, "no such client")
}

func (s *Server) handleDeadLetterProcess(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(s.processors))
	for _, p := range s.processors {
		if err := p.ProcessDeadLetters(r.Context()); err != nil {
			results[p.Name()] = err.Error()
			continue
		}
		results[p.Name()] = "ok"
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePollNudge(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.sources.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no such source")
		return
	}
	p.Nudge()
	writeJSON(w, http.StatusAccepted, map[string]string{"nudged": name})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := s.webhooks[name]
	if !ok {
		writeError(w, http.StatusNotFound, "no such webhook source")
		return
	}

	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload: "+err.Error())
		return
	}
	if err := src.Ingest(payload); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"accepted": name})
}
