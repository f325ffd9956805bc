// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package transform applies user-configured search/replace rules to plays at
// defined hook points in the pipeline. Rules are pure: a play goes in, a new
// play comes out, and the input is never mutated.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cwadley/scrobblerelay/internal/models"
)

// Hook identifies the pipeline point a rule set applies at.
type Hook string

const (
	// HookPreCompare runs once when a play is enqueued for a client.
	HookPreCompare Hook = "precompare"
	// HookCandidate runs on the incoming play just before matching.
	HookCandidate Hook = "candidate"
	// HookExisting runs on each historical play just before matching,
	// symmetric with HookCandidate.
	HookExisting Hook = "existing"
	// HookPostCompare runs just before submission, after a "not duplicate"
	// decision.
	HookPostCompare Hook = "postcompare"
)

// Field names a play field a rule rewrites.
type Field string

const (
	FieldTitle        Field = "title"
	FieldArtists      Field = "artists"
	FieldAlbumArtists Field = "albumartists"
	FieldAlbum        Field = "album"
)

// When is an optional guard: a rule fires only if every non-empty pattern
// matches the corresponding field of the original (pre-pipeline) play.
type When struct {
	Title  string `json:"title,omitempty" koanf:"title"`
	Artist string `json:"artist,omitempty" koanf:"artist"`
	Album  string `json:"album,omitempty" koanf:"album"`

	titleRE  *regexp.Regexp
	artistRE *regexp.Regexp
	albumRE  *regexp.Regexp
}

func (w *When) compile() error {
	var err error
	if w.Title != "" {
		if w.titleRE, err = regexp.Compile(w.Title); err != nil {
			return fmt.Errorf("when.title: %w", err)
		}
	}
	if w.Artist != "" {
		if w.artistRE, err = regexp.Compile(w.Artist); err != nil {
			return fmt.Errorf("when.artist: %w", err)
		}
	}
	if w.Album != "" {
		if w.albumRE, err = regexp.Compile(w.Album); err != nil {
			return fmt.Errorf("when.album: %w", err)
		}
	}
	return nil
}

// matches evaluates the guard against the original play.
func (w *When) matches(original models.Play) bool {
	if w == nil {
		return true
	}
	if w.titleRE != nil && !w.titleRE.MatchString(original.Data.Track) {
		return false
	}
	if w.artistRE != nil {
		any := false
		for _, a := range original.Data.Artists {
			if w.artistRE.MatchString(a) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if w.albumRE != nil && !w.albumRE.MatchString(original.Data.Album) {
		return false
	}
	return true
}

// Rule is one search-and-replace on one play field. Search is a regular
// expression; Replace may reference capture groups. An empty Replace deletes
// the matched text.
type Rule struct {
	Field   Field  `json:"field" koanf:"field"`
	Search  string `json:"search" koanf:"search"`
	Replace string `json:"replace" koanf:"replace"`
	When    *When  `json:"when,omitempty" koanf:"when"`

	re *regexp.Regexp
}

// Compile validates and compiles the rule's patterns.
func (r *Rule) Compile() error {
	if r.Search == "" {
		return fmt.Errorf("rule for field %q: empty search pattern", r.Field)
	}
	switch r.Field {
	case FieldTitle, FieldArtists, FieldAlbumArtists, FieldAlbum:
	default:
		return fmt.Errorf("rule: unknown field %q", r.Field)
	}
	re, err := regexp.Compile(r.Search)
	if err != nil {
		return fmt.Errorf("rule for field %q: %w", r.Field, err)
	}
	r.re = re
	if r.When != nil {
		if err := r.When.compile(); err != nil {
			return fmt.Errorf("rule for field %q: %w", r.Field, err)
		}
	}
	return nil
}

func (r *Rule) apply(s string) string {
	return strings.TrimSpace(r.re.ReplaceAllString(s, r.Replace))
}

func (r *Rule) applyList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// A value reduced to empty is unset, not empty-string.
		if v := r.apply(s); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Pipeline holds the compiled rule sets for every hook point.
type Pipeline struct {
	hooks map[Hook][]*Rule
}

// NewPipeline compiles the given rules per hook. Rules within a hook apply
// consecutively, in order: the output of one feeds the next.
func NewPipeline(hooks map[Hook][]*Rule) (*Pipeline, error) {
	compiled := make(map[Hook][]*Rule, len(hooks))
	for hook, rules := range hooks {
		switch hook {
		case HookPreCompare, HookCandidate, HookExisting, HookPostCompare:
		default:
			return nil, fmt.Errorf("transform: unknown hook %q", hook)
		}
		for _, rule := range rules {
			if err := rule.Compile(); err != nil {
				return nil, fmt.Errorf("transform: hook %s: %w", hook, err)
			}
		}
		compiled[hook] = rules
	}
	return &Pipeline{hooks: compiled}, nil
}

// NewEmptyPipeline returns a pipeline with no rules; Apply is the identity.
func NewEmptyPipeline() *Pipeline {
	return &Pipeline{hooks: map[Hook][]*Rule{}}
}

// Apply runs the hook's rules over the play and returns the transformed copy.
// When guards are evaluated against the play as passed in, not against
// intermediate rule output.
func (p *Pipeline) Apply(hook Hook, play models.Play) models.Play {
	rules := p.hooks[hook]
	if len(rules) == 0 {
		return play
	}
	original := play
	out := play
	out.Data.Artists = append([]string(nil), play.Data.Artists...)
	out.Data.AlbumArtists = append([]string(nil), play.Data.AlbumArtists...)

	for _, rule := range rules {
		if !rule.When.matches(original) {
			continue
		}
		switch rule.Field {
		case FieldTitle:
			out.Data.Track = rule.apply(out.Data.Track)
		case FieldAlbum:
			out.Data.Album = rule.apply(out.Data.Album)
		case FieldArtists:
			out.Data.Artists = rule.applyList(out.Data.Artists)
		case FieldAlbumArtists:
			out.Data.AlbumArtists = rule.applyList(out.Data.AlbumArtists)
		}
	}
	return out
}

// HasRules reports whether any rules are registered for the hook.
func (p *Pipeline) HasRules(hook Hook) bool {
	return len(p.hooks[hook]) > 0
}
