// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package dedupe

import (
	"time"

	"github.com/cwadley/scrobblerelay/internal/models"
)

// TimeBucket is a discrete closeness classification of two timestamps,
// derived from a source-dependent tolerance.
type TimeBucket int

const (
	BucketNone TimeBucket = iota
	BucketFuzzy
	BucketClose
	BucketExact
)

// String returns the bucket name for logs and score breakdowns.
func (b TimeBucket) String() string {
	switch b {
	case BucketExact:
		return "exact"
	case BucketClose:
		return "close"
	case BucketFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

const exactWindow = time.Second

// fuzzyFactor widens the close tolerance for the fuzzy bucket.
const fuzzyFactor = 3

// BucketTimes classifies the distance between two timestamps against a
// tolerance: exact within one second, close within the tolerance, fuzzy
// within three times the tolerance.
func BucketTimes(a, b time.Time, tolerance time.Duration) TimeBucket {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= exactWindow:
		return BucketExact
	case diff <= tolerance:
		return BucketClose
	case diff <= tolerance*fuzzyFactor:
		return BucketFuzzy
	default:
		return BucketNone
	}
}

// DefaultTolerance is the close-bucket tolerance for sources with
// second-granularity timestamps. Low-granularity sources configure a larger
// value (typically a minute).
const DefaultTolerance = 10 * time.Second

// bucketPlays classifies the temporal closeness of two plays. The raw
// timestamps are always compared. When the two plays' timestamp anchors are
// unknown or disagree, duration-shifted hypotheses are tried as well: a
// start-anchored source and an end-anchored source reporting the same listen
// differ by exactly the track duration, so the best bucket across hypotheses
// wins. When both anchors are known and equal the timestamps are directly
// comparable and no shift applies; shifting there would make a back-to-back
// replay of a track look temporally identical to its predecessor.
func bucketPlays(candidate, existing models.Play, tolerance time.Duration) TimeBucket {
	best := BucketTimes(candidate.Data.PlayDate, existing.Data.PlayDate, tolerance)

	sameAnchor := candidate.Meta.Anchor != "" && candidate.Meta.Anchor == existing.Meta.Anchor
	if sameAnchor {
		return best
	}
	if d := candidate.Data.Duration; d > 0 {
		if b := BucketTimes(candidate.Data.PlayDate.Add(d), existing.Data.PlayDate, tolerance); b > best {
			best = b
		}
	}
	if d := existing.Data.Duration; d > 0 {
		if b := BucketTimes(candidate.Data.PlayDate, existing.Data.PlayDate.Add(d), tolerance); b > best {
			best = b
		}
	}
	return best
}
