// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/detection"
	"github.com/cwadley/scrobblerelay/internal/events"
	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/metrics"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/notify"
)

// Hand-off: a play discovered this close to "now" waits before delivery so
// slower sibling sources can report the same listen first.
const (
	handOffWindow = 5 * time.Second
	handOffDelay  = 10 * time.Second
)

// Poller runs one source's fetch loop: adaptive sleep, bounded retry, play
// detection for snapshot sources, and hand-off of new plays to the sink.
type Poller struct {
	src      Source
	opts     Options
	sink     SinkFunc
	detector *detection.Detector
	bus      *events.Bus
	notifier *notify.Multi
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
	nudge    chan struct{}

	mu           sync.Mutex
	status       Status
	lastErr      string
	lastPoll     time.Time
	lastActivity time.Time
	lastKnown    time.Time
	backoffStep  int
}

// NewPoller builds a poller for src. A detector is attached only for
// snapshot sources.
func NewPoller(src Source, opts Options, sink SinkFunc, bus *events.Bus, notifier *notify.Multi) *Poller {
	p := &Poller{
		src:      src,
		opts:     opts.withDefaults(),
		sink:     sink,
		bus:      bus,
		notifier: notifier,
		status:   StatusIdle,
		now:      time.Now,
		sleep:    sleepCtx,
		nudge:    make(chan struct{}, 1),
		log:      logging.With().Str("component", "poller").Str("source", src.Name()).Logger(),
	}
	if _, ok := src.(SnapshotSource); ok {
		p.detector = detection.New(src.Name())
	}
	return p
}

// Name returns the source name.
func (p *Poller) Name() string { return p.src.Name() }

// Nudge requests an immediate poll cycle, skipping the current sleep.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Run polls until the context ends or retries are exhausted.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.src.TestConnection(ctx); err != nil {
		p.setStatus(StatusStopped, err)
		return fmt.Errorf("source %s connection test: %w", p.Name(), err)
	}
	p.mu.Lock()
	p.lastActivity = p.now()
	p.mu.Unlock()
	p.setStatus(StatusPolling, nil)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			p.setStatus(StatusIdle, nil)
			return nil
		default:
		}

		err := p.cycle(ctx)
		metrics.PollCycles.WithLabelValues(p.Name()).Inc()
		if err != nil {
			attempt++
			metrics.PollErrors.WithLabelValues(p.Name(), errClass(err)).Inc()
			if attempt > p.opts.MaxPollRetries {
				p.setStatus(StatusStopped, err)
				p.notifyStopped(err)
				return fmt.Errorf("source %s retries exhausted: %w", p.Name(), err)
			}
			p.setStatus(StatusRetrying, err)
			delay := time.Duration(attempt) * p.opts.RetryMultiplier
			p.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("poll failed, retrying")
			if !p.sleep(ctx, delay) {
				p.setStatus(StatusIdle, nil)
				return nil
			}
			continue
		}
		attempt = 0
		p.setStatus(StatusPolling, nil)

		interval := p.nextInterval()
		metrics.PollInterval.WithLabelValues(p.Name()).Set(interval.Seconds())
		select {
		case <-ctx.Done():
			p.setStatus(StatusIdle, nil)
			return nil
		case <-p.nudge:
		case <-time.After(interval):
		}
	}
}

// cycle fetches once, confirms plays, and hands new ones to the sink.
func (p *Poller) cycle(ctx context.Context) error {
	now := p.now()
	p.mu.Lock()
	p.lastPoll = now
	p.mu.Unlock()

	var confirmed []models.Play
	switch s := p.src.(type) {
	case SnapshotSource:
		snapshot, err := s.NowPlaying(ctx)
		if err != nil {
			return err
		}
		confirmed = p.detector.Process(snapshot)
		metrics.DetectorCandidates.WithLabelValues(p.Name()).Set(float64(p.detector.CandidateCount()))
	case HistorySource:
		plays, err := s.RecentPlays(ctx)
		if err != nil {
			return err
		}
		confirmed = plays
	default:
		return fmt.Errorf("source %s implements neither history nor snapshot fetch", p.Name())
	}

	fresh := p.filterNew(confirmed)
	if len(fresh) == 0 {
		return nil
	}

	p.mu.Lock()
	p.lastActivity = p.now()
	p.backoffStep = 0
	p.mu.Unlock()
	metrics.PlaysDiscovered.WithLabelValues(p.Name()).Add(float64(len(fresh)))

	// One hand-off delay covers the whole batch.
	if p.anyNearNow(fresh) {
		p.log.Debug().Dur("delay", handOffDelay).Msg("fresh play close to now, delaying hand-off")
		if !p.sleep(ctx, handOffDelay) {
			return nil
		}
	}
	for _, play := range fresh {
		p.log.Info().Str("play", play.String()).Msg("new play discovered")
		p.sink(p.Name(), play)
	}
	return nil
}

// filterNew keeps plays newer than the latest one already handed off and
// advances the watermark.
func (p *Poller) filterNew(plays []models.Play) []models.Play {
	p.mu.Lock()
	defer p.mu.Unlock()
	var fresh []models.Play
	for _, play := range plays {
		if !play.Data.PlayDate.After(p.lastKnown) {
			continue
		}
		fresh = append(fresh, play)
	}
	for _, play := range fresh {
		if play.Data.PlayDate.After(p.lastKnown) {
			p.lastKnown = play.Data.PlayDate
		}
	}
	return fresh
}

func (p *Poller) anyNearNow(plays []models.Play) bool {
	now := p.now()
	for _, play := range plays {
		d := now.Sub(play.Data.PlayDate)
		if d < 0 {
			d = -d
		}
		if d <= handOffWindow {
			return true
		}
	}
	return false
}

// nextInterval grows the sleep linearly once the source has been quiet for
// CheckActiveFor, bounded by MaxInterval. Activity resets it elsewhere.
func (p *Poller) nextInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now().Sub(p.lastActivity) <= p.opts.CheckActiveFor {
		p.backoffStep = 0
		return p.opts.Interval
	}
	p.backoffStep++
	interval := p.opts.Interval + time.Duration(p.backoffStep)*p.opts.Interval
	if interval > p.opts.MaxInterval {
		interval = p.opts.MaxInterval
	}
	return interval
}

func (p *Poller) setStatus(status Status, cause error) {
	p.mu.Lock()
	prev := p.status
	p.status = status
	if cause != nil {
		p.lastErr = cause.Error()
	}
	p.mu.Unlock()
	if prev == status {
		return
	}
	p.log.Info().Str("from", string(prev)).Str("to", string(status)).Msg("source status change")
	if p.bus != nil {
		if err := p.bus.Publish(events.TopicStatusChange, events.StatusChangeEvent{
			Kind: "source", Name: p.Name(), From: string(prev), To: string(status), At: time.Now().UTC(),
		}); err != nil {
			p.log.Warn().Err(err).Msg("event publish failed")
		}
	}
}

func (p *Poller) notifyStopped(cause error) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(context.Background(), notify.Event{
		Title:    "Source stopped",
		Message:  fmt.Sprintf("Source %s stopped after %d failed polls: %v", p.Name(), p.opts.MaxPollRetries, cause),
		Priority: notify.PriorityHigh,
	})
}

// Snapshot returns the externally visible poller state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Source:        p.src.Name(),
		Status:        p.status,
		LastPoll:      p.lastPoll,
		LastActivity:  p.lastActivity,
		LastKnownPlay: p.lastKnown,
		Interval:      p.opts.Interval.String(),
		LastError:     p.lastErr,
	}
}

func errClass(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "fetch"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
