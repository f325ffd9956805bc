// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package httpapi serves the operational API: health, per-component status,
// dead-letter inspection, manual poll nudges, webhook ingest, and metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
	"github.com/cwadley/scrobblerelay/internal/source"
	"github.com/cwadley/scrobblerelay/internal/sources/webhook"
)

// Options configures the listener.
type Options struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Server wires the router over the running pipeline components.
type Server struct {
	opts       Options
	sources    *source.Manager
	processors []*scrobble.Processor
	webhooks   map[string]*webhook.Source
	log        zerolog.Logger
}

func NewServer(opts Options, sources *source.Manager, processors []*scrobble.Processor, webhooks map[string]*webhook.Source) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Server{
		opts:       opts,
		sources:    sources,
		processors: processors,
		webhooks:   webhooks,
		log:        logging.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.Timeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/deadletter", s.handleDeadLetterList)
		r.Delete("/deadletter/{client}/{id}", s.handleDeadLetterRemove)
		r.Post("/deadletter/process", s.handleDeadLetterProcess)
		r.Post("/source/{name}/poll", s.handlePollNudge)
		r.Post("/webhook/{source}", s.handleWebhook)
	})
	return r
}

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port)),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", srv.Addr).Msg("http api listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
