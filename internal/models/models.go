// package models defines the data model for the beatsync pipeline
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for persisted history records.
type Model interface {
	Key() string          // Key returns the unique identifier for this record
	CreatedAt() time.Time // CreatedAt returns when this record was created
	Validate() error      // Validate checks if the record's data is valid and returns an error if not
}

// Track is one entry from the user's library snapshot.
type Track struct {
	Artist   string `json:"artist"`
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
}

// UnmarshalJSON accepts "track" as an alias for "title", the key older snapshots were written with.
func (t *Track) UnmarshalJSON(data []byte) error {
	var raw struct {
		Artist   string `json:"artist"`
		Title    string `json:"title"`
		Track    string `json:"track"`
		SourceID string `json:"source_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	title := raw.Title
	if title == "" {
		title = raw.Track
	}
	*t = Track{Artist: raw.Artist, Title: title, SourceID: raw.SourceID}
	return nil
}

// Label renders the track as "artist - title".
func (t Track) Label() string {
	return t.Artist + " - " + t.Title
}

// Validate requires a non-blank title.
func (t Track) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("track title is required")
	}
	return nil
}

// LibrarySnapshot is the ordered list of tracks a run works through.
type LibrarySnapshot []Track

// Validate checks every track, reporting the first invalid index.
func (s LibrarySnapshot) Validate() error {
	for i, t := range s {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
	}
	return nil
}

// Equal reports whether both snapshots hold the same tracks in the same order.
func (s LibrarySnapshot) Equal(other LibrarySnapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// CatalogEntry is one BeatSaver map returned by a search.
type CatalogEntry struct {
	MapID          string  `json:"map_id"`
	Name           string  `json:"name"`            // Map display name chosen by the uploader
	Title          string  `json:"title"`           // metadata.songName
	SubTitle       string  `json:"sub_title"`       // metadata.songSubName
	UploaderArtist string  `json:"uploader_artist"` // metadata.songAuthorName
	LevelAuthor    string  `json:"level_author"`    // metadata.levelAuthorName
	Rating         float64 `json:"rating"`          // stats.score in [0, 1]
	Rated          bool    `json:"rated"`           // false when the catalog reported no score
	DownloadURL    string  `json:"download_url"`
}

// RatingLabel formats the rating for display, "n/a" when unknown.
func (e CatalogEntry) RatingLabel() string {
	if !e.Rated {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", e.Rating)
}

// RejectReason explains why no map was accepted for a track.
type RejectReason string

const (
	NoCandidates   RejectReason = "no_candidates"
	BelowThreshold RejectReason = "below_threshold"
)

// MatchDecision is the outcome of evaluating one track against its candidates.
//
// A BelowThreshold rejection still carries the best candidate in Entry for reporting.
type MatchDecision struct {
	Accepted bool
	Entry    *CatalogEntry
	Reason   RejectReason
	Score    float64
}

// Accept builds an accepted decision for entry.
func Accept(entry CatalogEntry, score float64) MatchDecision {
	return MatchDecision{Accepted: true, Entry: &entry, Score: score}
}

// Reject builds a rejected decision. best may be nil.
func Reject(reason RejectReason, best *CatalogEntry, score float64) MatchDecision {
	return MatchDecision{Reason: reason, Entry: best, Score: score}
}

func (d MatchDecision) String() string {
	if d.Accepted {
		return fmt.Sprintf("accepted %s (rating %s, score %.2f)", d.Entry.MapID, d.Entry.RatingLabel(), d.Score)
	}
	return "rejected: " + string(d.Reason)
}
