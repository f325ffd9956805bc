// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package scrobble

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cwadley/scrobblerelay/internal/events"
	"github.com/cwadley/scrobblerelay/internal/metrics"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/transform"
)

// addDeadLetter parks a play that failed with a retryable upstream error.
func (p *Processor) addDeadLetter(item models.QueuedScrobble, cause error) {
	entry := models.DeadLetterScrobble{
		ID:        uuid.NewString(),
		Source:    item.Source,
		Play:      item.Play,
		Retries:   0,
		LastError: cause.Error(),
		LastRetry: time.Time{},
	}
	p.mu.Lock()
	p.dead = append(p.dead, entry)
	size := len(p.dead)
	p.mu.Unlock()

	metrics.DeadLetterSize.WithLabelValues(p.Name()).Set(float64(size))
	p.log.Warn().Err(cause).Str("play", item.Play.String()).Str("id", entry.ID).Msg("play dead-lettered")
	p.publish(events.TopicDeadLetter, events.DeadLetterEvent{
		Client: p.Name(), Entry: entry, At: time.Now().UTC(),
	})
}

// DeadLetters returns a copy of the dead-letter store, oldest first.
func (p *Processor) DeadLetters() []models.DeadLetterScrobble {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.DeadLetterScrobble(nil), p.dead...)
}

// RemoveDeadLetter deletes one parked entry by id.
func (p *Processor) RemoveDeadLetter(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.dead {
		if entry.ID == id {
			p.dead = append(p.dead[:i], p.dead[i+1:]...)
			metrics.DeadLetterSize.WithLabelValues(p.client.Name()).Set(float64(len(p.dead)))
			return true
		}
	}
	return false
}

// ProcessDeadLetters retries every parked entry still under the retry
// ceiling. Entries at the ceiling stay parked until removed by an operator;
// they are never dropped. A fatal client error aborts the sweep.
func (p *Processor) ProcessDeadLetters(ctx context.Context) error {
	p.mu.Lock()
	pending := append([]models.DeadLetterScrobble(nil), p.dead...)
	p.mu.Unlock()

	for _, entry := range pending {
		if entry.Retries >= p.opts.DeadLetterRetryCeiling {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := p.retryDeadLetter(ctx, entry)
		switch {
		case err != nil && IsFatal(err):
			metrics.DeadLetterRetries.WithLabelValues(p.Name(), "aborted").Inc()
			return err
		case err != nil:
			metrics.DeadLetterRetries.WithLabelValues(p.Name(), "failure").Inc()
			p.markRetryFailed(entry.ID, err)
		case done:
			metrics.DeadLetterRetries.WithLabelValues(p.Name(), "success").Inc()
			p.RemoveDeadLetter(entry.ID)
		}
	}
	return nil
}

// retryDeadLetter attempts delivery of one parked play. It returns
// (true, nil) when the entry can be removed, either because the submit
// succeeded or because the play turned out to already exist downstream.
func (p *Processor) retryDeadLetter(ctx context.Context, entry models.DeadLetterScrobble) (bool, error) {
	candidate := p.pipeline.Apply(transform.HookCandidate, entry.Play)

	if p.opts.CheckExistingScrobbles {
		p.maybeRefreshHistory(ctx, models.QueuedScrobble{Source: entry.Source, Play: entry.Play})
		if oldest, ok := p.oldestRecent(); ok && entry.Play.Data.PlayDate.Before(oldest) {
			p.log.Debug().Str("id", entry.ID).Msg("dead-letter entry aged out of history window, removing")
			return true, nil
		}
		if p.isDuplicate(candidate) {
			p.log.Info().Str("id", entry.ID).Str("play", entry.Play.String()).Msg("dead-letter entry already scrobbled, removing")
			return true, nil
		}
	}

	out := p.pipeline.Apply(transform.HookPostCompare, entry.Play)
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	confirmed, err := p.client.Submit(ctx, out)
	if err != nil {
		return false, err
	}
	p.recordSubmitted(out, confirmed)
	metrics.ScrobblesSubmitted.WithLabelValues(p.Name()).Inc()
	p.publish(events.TopicScrobbled, events.ScrobbleEvent{
		Client: p.Name(), Source: entry.Source, Play: confirmed, At: time.Now().UTC(),
	})
	p.log.Info().Str("id", entry.ID).Str("play", out.String()).Msg("dead-letter entry scrobbled")
	return true, nil
}

func (p *Processor) markRetryFailed(id string, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.dead {
		if p.dead[i].ID != id {
			continue
		}
		p.dead[i].Retries++
		p.dead[i].LastError = cause.Error()
		p.dead[i].LastRetry = time.Now()
		if p.dead[i].Retries >= p.opts.DeadLetterRetryCeiling {
			p.log.Warn().Str("id", id).Int("retries", p.dead[i].Retries).
				Msg("dead-letter entry reached retry ceiling, parked until removed")
		}
		return
	}
}
