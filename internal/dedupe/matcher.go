// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package dedupe

import (
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

// Score weights. Time dominates because it is the only signal the user cannot
// produce twice by accident; title and artist tolerate formatting drift.
const (
	TimeWeight   = 0.4
	TitleWeight  = 0.4
	ArtistWeight = 0.2

	// Threshold is the minimum weighted total for a duplicate verdict.
	Threshold = 0.7
)

// Artist whole-match bonus constants. These are empirical tuning against
// real-world vendor metadata (sources reporting only a primary artist vs a
// full artist list). Preserved as-is; do not re-derive.
const (
	bonusTimeFloor    = 0.5
	bonusTitleFloor   = 0.75
	bonusOverlapFloor = 0.1
	bonusWeightBump   = 0.05
)

// timeMatch values per bucket.
const (
	timeMatchClose = 1.0
	timeMatchFuzzy = 0.6
)

// Score is the weighted breakdown for one candidate/existing comparison.
type Score struct {
	Time   float64    `json:"time"`
	Title  float64    `json:"title"`
	Artist float64    `json:"artist"`
	Total  float64    `json:"total"`
	Bucket TimeBucket `json:"-"`
	// BonusApplied records that the artist whole-match bonus fired.
	BonusApplied bool `json:"bonus_applied,omitempty"`
}

// Result reports the outcome of a history search, including the
// highest-scoring non-match for diagnostics.
type Result struct {
	Duplicate bool
	// Match is the history entry the candidate duplicates, when Duplicate.
	Match *models.Play
	Score Score
	// Closest is the best-scoring non-match, for diagnostics. Nil when the
	// history was empty or a match was found.
	Closest      *models.Play
	ClosestScore Score
}

// SameTrack is the identity rule shared by the detector and the matcher:
// same source and source-native id when both plays carry one, otherwise
// equal normalized track, album, and artist set. Plays with an empty track
// title never identity-match on metadata.
func SameTrack(a, b models.Play) bool {
	if a.HasTrackID() && b.HasTrackID() && a.Meta.Source == b.Meta.Source {
		return a.Meta.TrackID == b.Meta.TrackID
	}
	if a.Data.Track == "" || b.Data.Track == "" {
		return false
	}
	if Normalize(a.Data.Track) != Normalize(b.Data.Track) {
		return false
	}
	if Normalize(a.Data.Album) != Normalize(b.Data.Album) {
		return false
	}
	return sameStringSet(a.UniqueArtists(), b.UniqueArtists())
}

// FindSubmitted is the stage-A fast path: an exact identity match against a
// play this process already submitted to the client, in the exact or close
// temporal bucket, short-circuits to duplicate without scoring.
func FindSubmitted(candidate models.Play, submitted []models.ScrobbledPlay, tolerance time.Duration) *models.ScrobbledPlay {
	for i := range submitted {
		prior := &submitted[i]
		if !SameTrack(candidate, prior.Play) {
			continue
		}
		if bucketPlays(candidate, prior.Play, tolerance) >= BucketClose {
			return prior
		}
		// The client's confirmed view may carry a corrected timestamp.
		if bucketPlays(candidate, prior.Scrobble, tolerance) >= BucketClose {
			return prior
		}
	}
	return nil
}

// ScorePair computes the weighted score between a candidate and one existing
// history play.
func ScorePair(candidate, existing models.Play, tolerance time.Duration) Score {
	var s Score
	s.Bucket = bucketPlays(candidate, existing, tolerance)
	switch {
	case s.Bucket >= BucketClose:
		s.Time = TimeWeight * timeMatchClose
	case s.Bucket == BucketFuzzy:
		s.Time = TimeWeight * timeMatchFuzzy
	}

	titleSim := TitleSimilarity(candidate.Data.Track, existing.Data.Track)
	s.Title = TitleWeight * titleSim

	candArtists := candidate.UniqueArtists()
	existArtists := existing.UniqueArtists()
	overlap, anyExact := ArtistOverlap(candArtists, existArtists)
	s.Artist = ArtistWeight * overlap
	s.Total = s.Time + s.Title + s.Artist

	// Whole-match bonus: a source reporting only the primary artist scores a
	// low overlap against a source reporting the full list even when the two
	// plays are the same listen. When time and title strongly agree, the
	// artists are multi-valued, and at least one artist matches exactly,
	// recompute the artist contribution with a bumped weight.
	if s.Total < Threshold &&
		s.Time/TimeWeight >= bonusTimeFloor &&
		titleSim >= bonusTitleFloor &&
		(len(candArtists) > 1 || len(existArtists) > 1) &&
		overlap > bonusOverlapFloor && anyExact {
		s.Artist = (ArtistWeight + bonusWeightBump) * overlap
		s.Total = s.Time + s.Title + s.Artist
		s.BonusApplied = true
	}
	return s
}

// FindInHistory is the stage-B fuzzy search: score the candidate against each
// play in the client-reported recent history and report the first entry at or
// above Threshold. An empty history means "assume not yet scrobbled".
func FindInHistory(candidate models.Play, history []models.Play, tolerance time.Duration) Result {
	var res Result
	for i := range history {
		score := ScorePair(candidate, history[i], tolerance)
		if score.Total >= Threshold {
			res.Duplicate = true
			res.Match = &history[i]
			res.Score = score
			res.Closest = nil
			return res
		}
		if res.Closest == nil || score.Total > res.ClosestScore.Total {
			res.Closest = &history[i]
			res.ClosestScore = score
		}
	}
	return res
}
