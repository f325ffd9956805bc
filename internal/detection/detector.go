// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package detection converts noisy "currently playing" snapshots into
// discrete, confirmed play events. Polling-based sources report the same
// track on every poll while it is playing; without a confirmation window and
// an end-of-track gap check, each poll would be misread as a new play.
package detection

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwadley/scrobblerelay/internal/dedupe"
	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/models"
)

// ConfirmWindow is how long a track must remain observed before it counts as
// a play. A track shorter than the poll interval may never accumulate this
// much candidacy and is silently missed; documented limitation.
const ConfirmWindow = 30 * time.Second

// maxConfirmed bounds the confirmed-play memory. Only recent confirmations
// matter for replay suppression.
const maxConfirmed = 40

// candidate is an observed-but-not-yet-confirmed play. Its play's PlayDate is
// locked to the moment it was first observed.
type candidate struct {
	play models.Play
}

// Detector holds the per-source candidate and confirmed state. One instance
// per source, owned exclusively by that source's polling loop; the internal
// mutex only guards the read-side snapshot used by the status API.
type Detector struct {
	source string
	log    zerolog.Logger

	// now is the clock, injectable for tests.
	now func() time.Time

	mu         sync.Mutex
	candidates []candidate
	confirmed  []models.Play
}

// New creates a detector for the named source.
func New(source string) *Detector {
	return &Detector{
		source: source,
		log:    logging.With().Str("component", "detection").Str("source", source).Logger(),
		now:    time.Now,
	}
}

// NewWithClock creates a detector with an injected clock, for tests.
func NewWithClock(source string, now func() time.Time) *Detector {
	d := New(source)
	d.now = now
	return d
}

// Process takes a snapshot of currently-observed plays and returns the plays
// newly confirmed by this invocation, in PlayDate order. Empty on most polls.
//
// Each snapshot play's PlayDate is locked to now(): a poll-only source cannot
// reliably report when a play started, only that it is playing now.
func (d *Detector) Process(snapshot []models.Play) []models.Play {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	locked := make([]models.Play, 0, len(snapshot))
	for _, p := range snapshot {
		p.Data.PlayDate = now
		locked = append(locked, p)
	}

	if len(d.candidates) == 0 {
		for _, p := range locked {
			d.candidates = append(d.candidates, candidate{play: p})
		}
	} else {
		d.reconcile(locked)
	}

	sort.SliceStable(d.candidates, func(i, j int) bool {
		return d.candidates[i].play.Data.PlayDate.Before(d.candidates[j].play.Data.PlayDate)
	})

	var newlyConfirmed []models.Play
	for _, c := range d.candidates {
		if now.Sub(c.play.Data.PlayDate) < ConfirmWindow {
			continue
		}
		if d.shouldConfirm(c.play) {
			play := c.play
			play.Meta.NewFromSource = true
			d.appendConfirmed(play)
			newlyConfirmed = append(newlyConfirmed, play)
			d.log.Debug().Str("play", play.String()).Time("play_date", play.Data.PlayDate).Msg("play confirmed")
		}
	}
	return newlyConfirmed
}

// reconcile merges the locked snapshot into the candidate set: unseen plays
// become candidates, candidates no longer observed are dropped (the track
// stopped before being confirmed).
func (d *Detector) reconcile(locked []models.Play) {
	kept := d.candidates[:0]
	for _, c := range d.candidates {
		stillPlaying := false
		for _, p := range locked {
			if dedupe.SameTrack(c.play, p) {
				stillPlaying = true
				break
			}
		}
		if stillPlaying {
			kept = append(kept, c)
		} else {
			d.log.Debug().Str("play", c.play.String()).Msg("candidate dropped, no longer playing")
		}
	}
	d.candidates = kept

	for _, p := range locked {
		known := false
		for _, c := range d.candidates {
			if dedupe.SameTrack(c.play, p) {
				known = true
				break
			}
		}
		if !known {
			d.candidates = append(d.candidates, candidate{play: p})
		}
	}
}

// shouldConfirm decides whether a matured candidate represents a new play
// rather than the tail of an already-confirmed one.
func (d *Detector) shouldConfirm(play models.Play) bool {
	prior := d.latestConfirmedMatch(play)
	if prior == nil {
		return true
	}
	if prior.Data.PlayDate.Equal(play.Data.PlayDate) {
		// Same confirmed play, still playing.
		return false
	}
	if dur := prior.Data.Duration; dur > 0 {
		// A replay counts only once the previous play had time to finish.
		return play.Data.PlayDate.After(prior.Data.PlayDate.Add(dur))
	}
	// Duration unknown: best effort, treat a repeat of the single most
	// recently confirmed play as still the same play.
	if last := d.mostRecentConfirmed(); last != nil && dedupe.SameTrack(*last, play) {
		return false
	}
	return true
}

// latestConfirmedMatch returns the identity-matching confirmed play with the
// greatest PlayDate, or nil.
func (d *Detector) latestConfirmedMatch(play models.Play) *models.Play {
	var match *models.Play
	for i := range d.confirmed {
		if dedupe.SameTrack(d.confirmed[i], play) {
			match = &d.confirmed[i]
		}
	}
	return match
}

func (d *Detector) mostRecentConfirmed() *models.Play {
	if len(d.confirmed) == 0 {
		return nil
	}
	return &d.confirmed[len(d.confirmed)-1]
}

// appendConfirmed records a confirmation, keeping the list ordered by
// PlayDate and bounded to maxConfirmed (oldest evicted).
func (d *Detector) appendConfirmed(play models.Play) {
	d.confirmed = append(d.confirmed, play)
	sort.SliceStable(d.confirmed, func(i, j int) bool {
		return d.confirmed[i].Data.PlayDate.Before(d.confirmed[j].Data.PlayDate)
	})
	if len(d.confirmed) > maxConfirmed {
		d.confirmed = d.confirmed[len(d.confirmed)-maxConfirmed:]
	}
}

// CandidateCount reports the number of plays currently being watched.
func (d *Detector) CandidateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.candidates)
}

// ConfirmedCount reports the number of confirmed plays remembered.
func (d *Detector) ConfirmedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.confirmed)
}
