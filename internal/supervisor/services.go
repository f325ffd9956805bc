// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
	"github.com/cwadley/scrobblerelay/internal/source"
)

// PollerService runs a source poller under supervision. A poller that
// exhausts its retry budget stays stopped; restarting it would immediately
// fail against the same dead upstream.
type PollerService struct {
	poller *source.Poller
}

func NewPollerService(p *source.Poller) *PollerService {
	return &PollerService{poller: p}
}

func (s *PollerService) String() string { return "poller-" + s.poller.Name() }

func (s *PollerService) Serve(ctx context.Context) error {
	err := s.poller.Run(ctx)
	if err != nil {
		return errors.Join(suture.ErrDoNotRestart, err)
	}
	return suture.ErrDoNotRestart
}

// ProcessorService runs a client processor under supervision. Permanent
// stops (retry exhaustion, operator stop) are mapped to ErrDoNotRestart;
// anything else restarts under the tree's backoff.
type ProcessorService struct {
	proc *scrobble.Processor
}

func NewProcessorService(p *scrobble.Processor) *ProcessorService {
	return &ProcessorService{proc: p}
}

func (s *ProcessorService) String() string { return "processor-" + s.proc.Name() }

func (s *ProcessorService) Serve(ctx context.Context) error {
	err := s.proc.Run(ctx)
	switch {
	case err == nil:
		return suture.ErrDoNotRestart
	case errors.Is(err, scrobble.ErrStopped), errors.Is(err, scrobble.ErrStopRequested):
		return errors.Join(suture.ErrDoNotRestart, err)
	default:
		return err
	}
}

// SweeperService triggers the dead-letter sweep across every processor on a
// heartbeat.
type SweeperService struct {
	procs    []*scrobble.Processor
	interval time.Duration
}

func NewSweeperService(procs []*scrobble.Processor, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweeperService{procs: procs, interval: interval}
}

func (s *SweeperService) String() string { return "deadletter-sweeper" }

func (s *SweeperService) Serve(ctx context.Context) error {
	log := logging.With().Str("component", "sweeper").Logger()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, p := range s.procs {
			if err := p.ProcessDeadLetters(ctx); err != nil {
				log.Warn().Err(err).Str("client", p.Name()).Msg("dead-letter sweep aborted")
			}
		}
	}
}

// Runner adapts any context-aware run function into a suture service. Used
// for the HTTP server, whose Run already handles graceful shutdown.
type Runner struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (r *Runner) String() string { return r.Label }

func (r *Runner) Serve(ctx context.Context) error { return r.Fn(ctx) }
