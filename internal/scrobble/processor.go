// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package scrobble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cwadley/scrobblerelay/internal/dedupe"
	"github.com/cwadley/scrobblerelay/internal/events"
	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/metrics"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/notify"
	"github.com/cwadley/scrobblerelay/internal/transform"
)

// ErrStopped means the processor exhausted its restart budget and must not
// be restarted.
var ErrStopped = errors.New("scrobble processor stopped permanently")

// ErrStopRequested means an operator stop was acknowledged by the loop.
var ErrStopRequested = errors.New("scrobble processor stop requested")

// ErrStopNotAcknowledged means the loop did not confirm a stop request in
// time.
var ErrStopNotAcknowledged = errors.New("scrobble processor did not acknowledge stop")

// Stop-acknowledgement handshake bounds.
const (
	stopAckTimeout = 10 * time.Second
	stopAckStep    = 250 * time.Millisecond
)

// Processor owns one client's queue, history cache, submitted memory, and
// dead-letter store. A single worker loop is the sole mutator of all of them;
// the mutex exists for the enqueue path and the status/dead-letter API.
type Processor struct {
	client   Client
	opts     Options
	pipeline *transform.Pipeline
	bus      *events.Bus
	notifier *notify.Multi
	log      zerolog.Logger
	limiter  *rate.Limiter

	stopRequested atomic.Bool
	stopAcked     atomic.Bool

	mu        sync.Mutex
	status    Status
	lastErr   string
	queue     []models.QueuedScrobble
	dead      []models.DeadLetterScrobble
	submitted []models.ScrobbledPlay

	// Client-reported recent history cache and its staleness bookkeeping.
	recent         []models.Play
	lastRefresh    time.Time
	newestScrobble time.Time
}

// NewProcessor creates a processor for one client. pipeline may be the empty
// pipeline; notifier may have zero notifiers.
func NewProcessor(client Client, opts Options, pipeline *transform.Pipeline, bus *events.Bus, notifier *notify.Multi) *Processor {
	opts = opts.withDefaults()
	p := &Processor{
		client:   client,
		opts:     opts,
		pipeline: pipeline,
		bus:      bus,
		notifier: notifier,
		status:   StatusNotInitialized,
		log:      logging.With().Str("component", "scrobbler").Str("client", client.Name()).Logger(),
	}
	if opts.ScrobbleDelay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(opts.ScrobbleDelay), 1)
	}
	return p
}

// Name returns the client name.
func (p *Processor) Name() string { return p.client.Name() }

// Enqueue transforms (pre-compare hook), wraps, and inserts a play into the
// queue, keeping it ordered by PlayDate ascending. Safe to call from any
// source loop.
func (p *Processor) Enqueue(source string, play models.Play) models.QueuedScrobble {
	pre := p.pipeline.Apply(transform.HookPreCompare, play)
	item := models.NewQueuedScrobble(source, pre)

	p.mu.Lock()
	p.queue = append(p.queue, item)
	sort.SliceStable(p.queue, func(i, j int) bool {
		return p.queue[i].Play.Data.PlayDate.Before(p.queue[j].Play.Data.PlayDate)
	})
	depth := len(p.queue)
	p.mu.Unlock()

	metrics.QueueDepth.WithLabelValues(p.Name()).Set(float64(depth))
	p.publish(events.TopicScrobbleQueued, events.ScrobbleEvent{
		Client: p.Name(), Source: source, Play: item.Play, At: time.Now().UTC(),
	})
	p.log.Debug().Str("play", item.Play.String()).Int("depth", depth).Msg("scrobble queued")
	return item
}

// Run is the worker entry point. It initializes the client, then drains the
// queue until the context ends, a stop is acknowledged, or the restart
// budget for fatal errors is exhausted.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.initialize(ctx); err != nil {
		p.setStatus(StatusInitFailed, err)
		p.notifyf(notify.PriorityHigh, "Client init failed",
			"Client %s failed to initialize: %v", p.Name(), err)
		return err
	}
	p.setStatus(StatusReady, nil)

	attempts := 0
	for {
		p.setStatus(StatusScrobbling, nil)
		err := p.drain(ctx)
		switch {
		case err == nil:
			// Context ended: supervisor shutdown.
			p.setStatus(StatusIdle, nil)
			return nil
		case errors.Is(err, ErrStopRequested):
			p.setStatus(StatusIdle, nil)
			return ErrStopRequested
		}

		attempts++
		metrics.SubmitErrors.WithLabelValues(p.Name(), "fatal").Inc()
		if attempts >= p.opts.MaxProcessingRetries {
			p.setStatus(StatusErrored, err)
			p.notifyf(notify.PriorityHigh, "Client stopped",
				"Client %s stopped after %d failed restarts: %v", p.Name(), attempts, err)
			return errors.Join(ErrStopped, err)
		}
		p.log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", p.opts.RetryBackoff).Msg("processing failed, restarting after backoff")
		select {
		case <-ctx.Done():
			p.setStatus(StatusIdle, nil)
			return nil
		case <-time.After(p.opts.RetryBackoff):
		}
	}
}

// RequestStop asks the worker loop to stop and polls for acknowledgement.
// The loop observes the request only between suspension points.
func (p *Processor) RequestStop(ctx context.Context) error {
	p.stopRequested.Store(true)
	deadline := time.Now().Add(stopAckTimeout)
	for time.Now().Before(deadline) {
		if p.stopAcked.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopAckStep):
		}
	}
	return ErrStopNotAcknowledged
}

func (p *Processor) initialize(ctx context.Context) error {
	p.setStatus(StatusInitializing, nil)
	if err := p.client.TestAuth(ctx); err != nil {
		return err
	}
	if p.opts.CheckExistingScrobbles {
		if err := p.refreshHistory(ctx); err != nil {
			// Stale-cache start is fine; absence of history only ever means
			// "assume not yet scrobbled".
			p.log.Warn().Err(err).Msg("initial history fetch failed")
		}
	}
	return nil
}

// drain pops and processes queue items oldest-first until the context ends
// (nil), a stop is acknowledged (ErrStopRequested), or a fatal error demands
// a loop restart.
func (p *Processor) drain(ctx context.Context) error {
	for {
		if p.stopRequested.Load() {
			p.stopAcked.Store(true)
			return ErrStopRequested
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		item, ok := p.popOldest()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.opts.ScrobbleSleep):
			}
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			// Fatal: the item is requeued at the front and the loop
			// restarts under its backoff policy.
			p.requeueFront(item)
			return err
		}
	}
}

func (p *Processor) popOldest() (models.QueuedScrobble, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return models.QueuedScrobble{}, false
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	metrics.QueueDepth.WithLabelValues(p.client.Name()).Set(float64(len(p.queue)))
	return item, true
}

func (p *Processor) requeueFront(item models.QueuedScrobble) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append([]models.QueuedScrobble{item}, p.queue...)
	metrics.QueueDepth.WithLabelValues(p.client.Name()).Set(float64(len(p.queue)))
}

// processItem runs the validity/dedup/submit sequence for one queued play.
// A nil return means the item is done with (delivered, skipped, dropped, or
// dead-lettered); an error return means the loop must restart.
func (p *Processor) processItem(ctx context.Context, item models.QueuedScrobble) error {
	p.publish(events.TopicScrobbleDequeued, events.ScrobbleEvent{
		Client: p.Name(), Source: item.Source, Play: item.Play, At: time.Now().UTC(),
	})

	p.maybeRefreshHistory(ctx, item)

	if p.opts.CheckExistingScrobbles {
		if oldest, ok := p.oldestRecent(); ok && item.Play.Data.PlayDate.Before(oldest) {
			// Outside the comparable window; a normal skip, not an error.
			p.log.Debug().Str("play", item.Play.String()).Time("oldest", oldest).Msg("play older than client history window, skipping")
			metrics.ScrobblesSkipped.WithLabelValues(p.Name(), "timeframe").Inc()
			return nil
		}
	}

	candidate := p.pipeline.Apply(transform.HookCandidate, item.Play)
	if p.isDuplicate(candidate) {
		metrics.ScrobblesSkipped.WithLabelValues(p.Name(), "duplicate").Inc()
		return nil
	}

	out := p.pipeline.Apply(transform.HookPostCompare, item.Play)
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil // context ended; item already popped, next Run resubmits from upstream
		}
	}

	start := time.Now()
	confirmed, err := p.client.Submit(ctx, out)
	metrics.SubmitDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return p.handleSubmitError(item, err)
	}

	p.recordSubmitted(out, confirmed)
	metrics.ScrobblesSubmitted.WithLabelValues(p.Name()).Inc()
	p.publish(events.TopicScrobbled, events.ScrobbleEvent{
		Client: p.Name(), Source: item.Source, Play: confirmed, At: time.Now().UTC(),
	})
	p.log.Info().Str("play", out.String()).Msg("scrobbled")
	return nil
}

// handleSubmitError routes a submit failure per the error taxonomy.
func (p *Processor) handleSubmitError(item models.QueuedScrobble, err error) error {
	switch {
	case IsFatal(err):
		return err
	case IsNonFatalUpstream(err):
		metrics.SubmitErrors.WithLabelValues(p.Name(), "nonfatal").Inc()
		p.addDeadLetter(item, err)
		return nil
	default:
		// Structural/validation problem with the play itself; retrying
		// cannot fix it.
		metrics.ScrobblesSkipped.WithLabelValues(p.Name(), "invalid").Inc()
		p.log.Error().Err(err).Str("play", item.Play.String()).Msg("dropping malformed play")
		return nil
	}
}

// isDuplicate runs the two-stage matcher. Matching happens only when the
// client opts in and a history cache exists; no cache means "assume not yet
// scrobbled".
func (p *Processor) isDuplicate(candidate models.Play) bool {
	if !p.opts.CheckExistingScrobbles {
		return false
	}

	p.mu.Lock()
	submitted := append([]models.ScrobbledPlay(nil), p.submitted...)
	recent := append([]models.Play(nil), p.recent...)
	p.mu.Unlock()

	if prior := dedupe.FindSubmitted(candidate, submitted, p.opts.Tolerance); prior != nil {
		p.log.Debug().Str("play", candidate.String()).Msg("duplicate of a prior submission")
		return true
	}
	if len(recent) == 0 {
		return false
	}

	existing := make([]models.Play, len(recent))
	for i, r := range recent {
		existing[i] = p.pipeline.Apply(transform.HookExisting, r)
	}
	res := dedupe.FindInHistory(candidate, existing, p.opts.Tolerance)
	if res.Duplicate {
		p.log.Debug().Str("play", candidate.String()).Str("match", res.Match.String()).
			Float64("score", res.Score.Total).Msg("duplicate of client history entry")
		return true
	}
	if res.Closest != nil {
		p.log.Debug().Str("play", candidate.String()).Str("closest", res.Closest.String()).
			Float64("score", res.ClosestScore.Total).Msg("no duplicate; closest history entry")
	}
	return false
}

// maybeRefreshHistory re-fetches the client's recent history when the cached
// view is stale for this item: the item is newer than the last refresh, or
// the last refresh predates the newest scrobble we know of.
func (p *Processor) maybeRefreshHistory(ctx context.Context, item models.QueuedScrobble) {
	if !p.opts.CheckExistingScrobbles {
		return
	}
	p.mu.Lock()
	stale := p.lastRefresh.IsZero() ||
		item.Play.Data.PlayDate.After(p.lastRefresh) ||
		p.lastRefresh.Before(p.newestScrobble)
	p.mu.Unlock()
	if !stale {
		return
	}
	if err := p.refreshHistory(ctx); err != nil {
		p.log.Warn().Err(err).Msg("history refresh failed, using cached view")
	}
}

func (p *Processor) refreshHistory(ctx context.Context) error {
	plays, err := p.client.RecentHistory(ctx, p.opts.HistoryLimit)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = plays
	p.lastRefresh = time.Now()
	for _, play := range plays {
		if play.Data.PlayDate.After(p.newestScrobble) {
			p.newestScrobble = play.Data.PlayDate
		}
	}
	return nil
}

func (p *Processor) oldestRecent() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var oldest time.Time
	for _, play := range p.recent {
		if oldest.IsZero() || play.Data.PlayDate.Before(oldest) {
			oldest = play.Data.PlayDate
		}
	}
	return oldest, !oldest.IsZero()
}

// recordSubmitted remembers a successful submission for the exact-match
// dedup path, bounded with oldest evicted.
func (p *Processor) recordSubmitted(sent, confirmed models.Play) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, models.ScrobbledPlay{Play: sent, Scrobble: confirmed})
	if len(p.submitted) > submittedCap {
		p.submitted = p.submitted[len(p.submitted)-submittedCap:]
	}
	if confirmed.Data.PlayDate.After(p.newestScrobble) {
		p.newestScrobble = confirmed.Data.PlayDate
	}
}

func (p *Processor) setStatus(status Status, cause error) {
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
	p.log.Info().Str("from", string(prev)).Str("to", string(status)).Msg("client status change")
	p.publish(events.TopicStatusChange, events.StatusChangeEvent{
		Kind: "client", Name: p.Name(), From: string(prev), To: string(status), At: time.Now().UTC(),
	})
}

// Snapshot returns the externally visible processor state.
func (p *Processor) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Client:      p.client.Name(),
		Status:      p.status,
		QueueDepth:  len(p.queue),
		DeadLetters: len(p.dead),
		Submitted:   len(p.submitted),
		LastError:   p.lastErr,
	}
}

func (p *Processor) publish(topic string, payload any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(topic, payload); err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func (p *Processor) notifyf(priority notify.Priority, title, format string, args ...any) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(context.Background(), notify.Event{
		Title:    title,
		Message:  fmt.Sprintf(format, args...),
		Priority: priority,
	})
}
