// Package matcher picks the catalog map that best matches a library track.
//
// Selection is a two-stage gate. Title similarity (token-order and case insensitive) decides whether a
// candidate is plausibly the same song; the catalog rating then decides whether the best such candidate
// is worth downloading. A low-rated best match is rejected outright rather than replaced by a weaker but
// better-rated candidate.
package matcher

import (
	"math"

	"github.com/desertthunder/beatsync/internal/models"
)

const (
	DefaultMinRate       = 0.75
	DefaultMinSimilarity = 0.8
	// DefaultArtistFloor drops candidates whose uploader artist clearly names someone else.
	DefaultArtistFloor = 0.6

	titleWeight  = 0.75
	artistWeight = 0.25
	epsilon      = 1e-9
)

// Selector resolves a [models.MatchDecision] for a track.
type Selector struct {
	MinRate       float64
	MinSimilarity float64
	ArtistFloor   float64
}

// NewSelector returns a Selector with the default artist floor.
func NewSelector(minRate, minSimilarity float64) *Selector {
	return &Selector{MinRate: minRate, MinSimilarity: minSimilarity, ArtistFloor: DefaultArtistFloor}
}

// Scored is a candidate annotated with its similarity scores.
type Scored struct {
	Entry    models.CatalogEntry
	Index    int     // position in the search results
	Title    float64 // title similarity
	Artist   float64 // artist partial ratio, -1 when the entry names no artist
	Score    float64 // combined ranking score
	Eligible bool    // passed the similarity filters
}

// Score computes similarity between track and entry.
func (s *Selector) Score(track models.Track, entry models.CatalogEntry, index int) Scored {
	title := max(
		TokenSimilarity(track.Title, entry.Title),
		TokenSimilarity(StripDecorations(track.Title), StripDecorations(entry.Title)),
		TokenSimilarity(track.Artist+" "+track.Title, entry.UploaderArtist+" "+entry.Title),
	)
	if entry.Name != "" {
		title = max(title, TokenSimilarity(track.Artist+" "+track.Title, entry.Name))
	}

	sc := Scored{Entry: entry, Index: index, Title: title, Artist: -1, Score: title}
	if entry.UploaderArtist != "" && track.Artist != "" {
		sc.Artist = PartialRatio(track.Artist, entry.UploaderArtist)
		sc.Score = titleWeight*title + artistWeight*sc.Artist
	}

	sc.Eligible = title+epsilon >= s.MinSimilarity && (sc.Artist < 0 || sc.Artist+epsilon >= s.ArtistFloor)
	return sc
}

// Rank scores every candidate, preserving search order.
func (s *Selector) Rank(track models.Track, candidates []models.CatalogEntry) []Scored {
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = s.Score(track, c, i)
	}
	return ranked
}

// Select picks the eligible candidate with the highest score; ties go to the higher rating, then to the earlier result.
func (s *Selector) Select(track models.Track, candidates []models.CatalogEntry) models.MatchDecision {
	if len(candidates) == 0 {
		return models.Reject(models.NoCandidates, nil, 0)
	}

	var best *Scored
	for _, sc := range s.Rank(track, candidates) {
		if !sc.Eligible {
			continue
		}
		if best == nil || better(sc, *best) {
			picked := sc
			best = &picked
		}
	}

	if best == nil {
		return models.Reject(models.NoCandidates, nil, 0)
	}

	entry := best.Entry
	if !entry.Rated || !(entry.Rating+epsilon >= s.MinRate) {
		return models.Reject(models.BelowThreshold, &entry, best.Score)
	}
	return models.Accept(entry, best.Score)
}

// better reports whether a outranks b. Candidates arrive in search order, so equal candidates keep the earlier one.
func better(a, b Scored) bool {
	if math.Abs(a.Score-b.Score) > epsilon {
		return a.Score > b.Score
	}
	ra, rb := rating(a.Entry), rating(b.Entry)
	if math.Abs(ra-rb) > epsilon {
		return ra > rb
	}
	return a.Index < b.Index
}

func rating(e models.CatalogEntry) float64 {
	if !e.Rated {
		return -1
	}
	return e.Rating
}
