// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package dedupe

import (
	"testing"
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func play(track string, artists []string, playDate time.Time) models.Play {
	return models.Play{
		Data: models.PlayData{
			Artists:  artists,
			Album:    "Album",
			Track:    track,
			PlayDate: playDate,
		},
		Meta: models.PlayMeta{Source: "test", Anchor: models.AnchorStart},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sigur Rós", "sigur ros"},
		{"  HELLO   World ", "hello world"},
		{"Beyoncé", "beyonce"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleSimilarity(t *testing.T) {
	if sim := TitleSimilarity("Track One", "track  one"); sim != 1 {
		t.Errorf("Expected 1.0 for normalized-equal titles, got %f", sim)
	}
	if sim := TitleSimilarity("Rain", "Xylophone"); sim > 0.3 {
		t.Errorf("Expected low similarity for unrelated titles, got %f", sim)
	}
	if sim := TitleSimilarity("", "anything"); sim != 0 {
		t.Errorf("Expected 0 for empty title, got %f", sim)
	}
}

func TestBucketTimes_GranularityTolerance(t *testing.T) {
	tests := []struct {
		name      string
		offset    time.Duration
		tolerance time.Duration
		want      TimeBucket
	}{
		{"low granularity 59s is close", 59 * time.Second, time.Minute, BucketClose},
		{"low granularity 61s is not close", 61 * time.Second, time.Minute, BucketFuzzy},
		{"high granularity 10s is close", 10 * time.Second, 10 * time.Second, BucketClose},
		{"high granularity 11s is not close", 11 * time.Second, 10 * time.Second, BucketFuzzy},
		{"sub-second is exact", 500 * time.Millisecond, 10 * time.Second, BucketExact},
		{"far apart is none", time.Hour, 10 * time.Second, BucketNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketTimes(baseTime, baseTime.Add(tt.offset), tt.tolerance)
			if got != tt.want {
				t.Errorf("BucketTimes(offset=%v, tol=%v) = %v, want %v", tt.offset, tt.tolerance, got, tt.want)
			}
		})
	}
}

func TestSameTrack(t *testing.T) {
	a := play("Track", []string{"Artist A", "Artist B"}, baseTime)
	b := play("track", []string{"artist b", "ARTIST A"}, baseTime.Add(time.Hour))
	if !SameTrack(a, b) {
		t.Error("Expected identity match regardless of case, artist order, and time")
	}

	c := play("Other Track", []string{"Artist A", "Artist B"}, baseTime)
	if SameTrack(a, c) {
		t.Error("Different titles must not identity-match")
	}

	// Track id wins when both plays carry one from the same source.
	d := play("Completely Different", []string{"Someone"}, baseTime)
	a.Meta.TrackID = "id-1"
	d.Meta.TrackID = "id-1"
	if !SameTrack(a, d) {
		t.Error("Matching source track ids must identity-match")
	}

	// An emptied track field is unusable for matching, never an error.
	e := play("", []string{"Artist A", "Artist B"}, baseTime)
	f := play("", []string{"Artist A", "Artist B"}, baseTime)
	if SameTrack(e, f) {
		t.Error("Plays with empty track titles must not identity-match on metadata")
	}
}

func TestFindSubmitted_Idempotence(t *testing.T) {
	sent := play("Track", []string{"Artist"}, baseTime)
	submitted := []models.ScrobbledPlay{{Play: sent, Scrobble: sent}}

	again := play("Track", []string{"Artist"}, baseTime.Add(5*time.Second))
	if FindSubmitted(again, submitted, DefaultTolerance) == nil {
		t.Error("Resubmitting the same logical play must be caught by the exact path")
	}

	later := play("Track", []string{"Artist"}, baseTime.Add(time.Hour))
	if FindSubmitted(later, submitted, DefaultTolerance) != nil {
		t.Error("The same track an hour later is a new play, not a duplicate")
	}
}

func TestFindSubmitted_ConfirmedTimestamp(t *testing.T) {
	// The client may confirm with a corrected timestamp; the exact path
	// checks both what we sent and what came back.
	sent := play("Track", []string{"Artist"}, baseTime)
	confirmed := play("Track", []string{"Artist"}, baseTime.Add(2*time.Minute))
	submitted := []models.ScrobbledPlay{{Play: sent, Scrobble: confirmed}}

	candidate := play("Track", []string{"Artist"}, baseTime.Add(2*time.Minute+3*time.Second))
	if FindSubmitted(candidate, submitted, DefaultTolerance) == nil {
		t.Error("Expected match against the client-confirmed timestamp")
	}
}

func TestFindInHistory_Duplicate(t *testing.T) {
	history := []models.Play{
		play("Some Track", []string{"Artist"}, baseTime),
		play("Another Track", []string{"Artist"}, baseTime.Add(-10*time.Minute)),
	}
	candidate := play("Some Track", []string{"Artist"}, baseTime.Add(4*time.Second))

	res := FindInHistory(candidate, history, DefaultTolerance)
	if !res.Duplicate {
		t.Fatalf("Expected duplicate, score %+v", res.ClosestScore)
	}
	if res.Match == nil || res.Match.Data.Track != "Some Track" {
		t.Errorf("Matched wrong history entry: %+v", res.Match)
	}
}

func TestFindInHistory_NonInterference(t *testing.T) {
	// Two plays differing only by track title never match, even with
	// identical artists and near-identical timestamps.
	history := []models.Play{play("Xylophone", []string{"Artist"}, baseTime)}
	candidate := play("Rain", []string{"Artist"}, baseTime.Add(2*time.Second))

	res := FindInHistory(candidate, history, DefaultTolerance)
	if res.Duplicate {
		t.Fatalf("Title-differing plays must not match, score %+v", res.Score)
	}
	if res.Closest == nil {
		t.Error("Expected the best non-match to be tracked for diagnostics")
	}
}

func TestFindInHistory_ContinuityDetection(t *testing.T) {
	// "Part 1" played to completion, then "Part 2" starting duration+1
	// seconds later. Same anchor on both sides, so no duration-shifted
	// hypothesis applies and the sequel is a clean non-match.
	part1 := play("Interlude, Part 1", []string{"Artist"}, baseTime)
	part1.Data.Duration = 5 * time.Minute

	part2 := play("Interlude, Part 2", []string{"Artist"}, baseTime.Add(5*time.Minute+time.Second))
	part2.Data.Duration = 5 * time.Minute

	res := FindInHistory(part2, []models.Play{part1}, DefaultTolerance)
	if res.Duplicate {
		t.Fatalf("Sequel track flagged as duplicate of its predecessor, score %+v", res.Score)
	}
}

func TestFindInHistory_AnchorMismatch(t *testing.T) {
	// A start-anchored candidate against an end-anchored history entry for
	// the same listen: raw timestamps differ by the duration, but the
	// shifted hypothesis brings them together.
	existing := play("Track", []string{"Artist"}, baseTime.Add(4*time.Minute))
	existing.Meta.Anchor = models.AnchorEnd

	candidate := play("Track", []string{"Artist"}, baseTime)
	candidate.Data.Duration = 4 * time.Minute

	res := FindInHistory(candidate, []models.Play{existing}, DefaultTolerance)
	if !res.Duplicate {
		t.Fatalf("Anchor-mismatched same listen not matched, closest %+v", res.ClosestScore)
	}
}

func TestFindInHistory_EmptyHistory(t *testing.T) {
	res := FindInHistory(play("Track", []string{"Artist"}, baseTime), nil, DefaultTolerance)
	if res.Duplicate {
		t.Error("Empty history must mean 'assume not yet scrobbled'")
	}
}

func TestScorePair_ArtistBonus(t *testing.T) {
	// Fuzzy time, strong title, partial multi-artist overlap with one exact
	// match: the whole-match bonus recomputes the artist contribution.
	existing := play("A Long Collaborative Title", []string{"Primary", "Feature One", "Feature Two"}, baseTime)
	candidate := play("A Long Colaborative Title", []string{"Primary"}, baseTime.Add(25*time.Second))
	candidate.Data.Artists = []string{"Primary", "Someone Else", "Third Person", "Fourth Person"}

	score := ScorePair(candidate, existing, DefaultTolerance)
	if !score.BonusApplied {
		t.Fatalf("Expected artist bonus to apply, score %+v", score)
	}
	want := (ArtistWeight + bonusWeightBump) * 0.25
	if diff := score.Artist - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Bonus artist score = %f, want %f", score.Artist, want)
	}
}
