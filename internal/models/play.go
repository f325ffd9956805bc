// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package models defines the canonical play record and the queue/dead-letter
// shapes that flow between sources, the detector, and the scrobble clients.
package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeAnchor states which end of a listen a play's PlayDate refers to.
// Sources disagree: some report when a track started, others when it finished.
type TimeAnchor string

const (
	// AnchorStart means PlayDate is the moment playback began.
	AnchorStart TimeAnchor = "start"
	// AnchorEnd means PlayDate is the moment playback finished.
	AnchorEnd TimeAnchor = "end"
)

// ListenRange is a contiguous span of actual listening within one play.
type ListenRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PlayData carries the track metadata and timing for one listen.
type PlayData struct {
	// Artists is ordered and may contain duplicates; use UniqueArtists
	// when set semantics are needed.
	Artists      []string      `json:"artists"`
	AlbumArtists []string      `json:"album_artists,omitempty"`
	Album        string        `json:"album,omitempty"`
	// Track may be empty after a transform rule empties it. Consumers must
	// treat an empty track as "unusable for matching", not as an error.
	Track        string        `json:"track"`
	// Duration is the track length. Zero means unknown.
	Duration     time.Duration `json:"duration,omitempty"`
	// PlayDate is the timestamp the play is anchored to; see Meta.Anchor.
	PlayDate     time.Time     `json:"play_date"`
	// ListenedFor is how long the user actually listened, when known.
	ListenedFor  time.Duration `json:"listened_for,omitempty"`
	ListenRanges []ListenRange `json:"listen_ranges,omitempty"`
}

// PlayMeta carries source bookkeeping for one listen.
type PlayMeta struct {
	// Source identifies the adapter that observed the play.
	Source string `json:"source"`
	// TrackID is the source-native unique id, when the source has one.
	TrackID string `json:"track_id,omitempty"`
	// PlayID is assigned by this process when the play enters a queue.
	PlayID string `json:"play_id,omitempty"`
	// NewFromSource distinguishes "just observed" from backlog/history items.
	NewFromSource bool   `json:"new_from_source"`
	DeviceID      string `json:"device_id,omitempty"`
	User          string `json:"user,omitempty"`
	// Anchor states whether PlayDate is start-of-play or end-of-play.
	Anchor TimeAnchor `json:"anchor,omitempty"`
	// Progress is the player position at observation time, when known.
	Progress time.Duration `json:"progress,omitempty"`
	// Extra holds arbitrary source-specific fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// Play is one listen event. Treated as immutable once constructed;
// transforms return copies.
type Play struct {
	Data PlayData `json:"data"`
	Meta PlayMeta `json:"meta"`
}

// UniqueArtists returns the artists with duplicates removed, order preserved.
// Comparison is case-insensitive.
func (p Play) UniqueArtists() []string {
	return uniqueFold(p.Data.Artists)
}

// HasTrackID reports whether the source attached a native track id.
func (p Play) HasTrackID() bool {
	return p.Meta.TrackID != ""
}

// String renders "Artist - Track (album)" for logs.
func (p Play) String() string {
	artist := "(unknown artist)"
	if arts := p.UniqueArtists(); len(arts) > 0 {
		artist = strings.Join(arts, ", ")
	}
	track := p.Data.Track
	if track == "" {
		track = "(untitled)"
	}
	if p.Data.Album != "" {
		return fmt.Sprintf("%s - %s (%s)", artist, track, p.Data.Album)
	}
	return fmt.Sprintf("%s - %s", artist, track)
}

func uniqueFold(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PlayerStatus is the observed state of a playback surface.
type PlayerStatus string

const (
	StatusPlaying PlayerStatus = "playing"
	StatusPaused  PlayerStatus = "paused"
	StatusStopped PlayerStatus = "stopped"
	StatusUnknown PlayerStatus = "unknown"
)

// PlayerState is the alternative shape for sources that expose continuous
// device state rather than a discrete history.
type PlayerState struct {
	// PlatformID uniquely identifies a playback surface (device + user).
	PlatformID string        `json:"platform_id"`
	Play       Play          `json:"play"`
	Status     PlayerStatus  `json:"status"`
	Position   time.Duration `json:"position,omitempty"`
	// Timestamp is when this observation was made.
	Timestamp time.Time `json:"timestamp"`
}

// PlatformID builds the deviceId+user tuple used to key player state.
func PlatformID(deviceID, user string) string {
	return deviceID + ":" + user
}
