// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package dedupe decides whether a candidate play is already represented in a
// client's history. No single signal is reliable across sources: timestamps
// differ in granularity and anchor point, titles and artists differ in
// formatting, and not every client returns stable ids. The matcher therefore
// combines an exact-identity fast path with a weighted fuzzy score.
package dedupe

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s, strips diacritics, and collapses whitespace so that
// "Sigur Rós " and "sigur ros" compare equal.
func Normalize(s string) string {
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TitleSimilarity returns a similarity in [0,1] between two titles after
// normalization. Equal normalized strings score 1; otherwise the score is
// edit-distance based.
func TitleSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	dist := levenshtein.ComputeDistance(na, nb)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// normalizeSet returns the normalized, deduplicated set of values.
func normalizeSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		if n := Normalize(s); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// ArtistOverlap returns the share of the candidate's artists present in the
// existing play's artists, and whether at least one matched exactly.
func ArtistOverlap(candidate, existing []string) (ratio float64, anyExact bool) {
	cs := normalizeSet(candidate)
	es := normalizeSet(existing)
	if len(cs) == 0 || len(es) == 0 {
		return 0, false
	}
	matched := 0
	for a := range cs {
		if _, ok := es[a]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(cs)), matched > 0
}

// sameStringSet reports set equality of two normalized string slices.
func sameStringSet(a, b []string) bool {
	as, bs := normalizeSet(a), normalizeSet(b)
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}
