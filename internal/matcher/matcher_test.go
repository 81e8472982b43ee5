package matcher

import (
	"math"
	"testing"

	"github.com/desertthunder/beatsync/internal/models"
)

func entry(id, title string, rating float64) models.CatalogEntry {
	return models.CatalogEntry{MapID: id, Title: title, Rating: rating, Rated: true}
}

func TestSelect(t *testing.T) {
	selector := NewSelector(DefaultMinRate, DefaultMinSimilarity)
	daftPunk := models.Track{Artist: "Daft Punk", Title: "One More Time"}

	t.Run("accepts the confident match over a better rated mismatch", func(t *testing.T) {
		candidates := []models.CatalogEntry{
			entry("a1", "One More Time", 0.9),
			entry("b2", "Something Else", 0.99),
		}

		got := selector.Select(daftPunk, candidates)

		if !got.Accepted {
			t.Fatalf("expected accepted, got %v", got)
		}
		if got.Entry.Title != "One More Time" {
			t.Errorf("expected One More Time, got %s", got.Entry.Title)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		got := selector.Select(daftPunk, nil)
		if got.Accepted || got.Reason != models.NoCandidates {
			t.Errorf("expected NoCandidates, got %v", got)
		}
	})

	t.Run("below threshold does not fall back", func(t *testing.T) {
		candidates := []models.CatalogEntry{
			entry("low", "One More Time", 0.5),
			entry("high", "One More Time Again", 0.99),
			entry("other", "Harder Better Faster Stronger", 0.99),
		}

		got := selector.Select(daftPunk, candidates)

		if got.Accepted {
			t.Fatalf("expected rejection, got %v", got)
		}
		if got.Reason != models.BelowThreshold {
			t.Errorf("expected BelowThreshold, got %s", got.Reason)
		}
		if got.Entry == nil || got.Entry.MapID != "low" {
			t.Errorf("expected rejected best candidate to be reported, got %+v", got.Entry)
		}
	})

	t.Run("unknown rating is below threshold", func(t *testing.T) {
		candidates := []models.CatalogEntry{{MapID: "x", Title: "One More Time"}}
		got := selector.Select(daftPunk, candidates)
		if got.Reason != models.BelowThreshold {
			t.Errorf("expected BelowThreshold, got %v", got)
		}
	})

	t.Run("rating equal to threshold is accepted", func(t *testing.T) {
		got := selector.Select(daftPunk, []models.CatalogEntry{entry("x", "One More Time", 0.75)})
		if !got.Accepted {
			t.Errorf("expected accepted at the threshold, got %v", got)
		}
	})

	t.Run("dissimilar candidates only", func(t *testing.T) {
		got := selector.Select(daftPunk, []models.CatalogEntry{entry("x", "Totally Unrelated Song", 0.99)})
		if got.Reason != models.NoCandidates {
			t.Errorf("expected NoCandidates, got %v", got)
		}
	})

	t.Run("similarity tie goes to higher rating", func(t *testing.T) {
		candidates := []models.CatalogEntry{
			entry("first", "One More Time", 0.8),
			entry("second", "one more time", 0.93),
		}
		got := selector.Select(daftPunk, candidates)
		if !got.Accepted || got.Entry.MapID != "second" {
			t.Errorf("expected second, got %v", got)
		}
	})

	t.Run("full tie goes to first seen", func(t *testing.T) {
		candidates := []models.CatalogEntry{
			entry("first", "One More Time", 0.9),
			entry("second", "One More Time", 0.9),
			entry("third", "One More Time", 0.9),
		}
		for range 5 {
			got := selector.Select(daftPunk, candidates)
			if got.Entry.MapID != "first" {
				t.Fatalf("expected first, got %s", got.Entry.MapID)
			}
		}
	})

	t.Run("word order and case do not matter", func(t *testing.T) {
		got := selector.Select(daftPunk, []models.CatalogEntry{entry("x", "TIME one MORE", 0.9)})
		if !got.Accepted {
			t.Errorf("expected accepted, got %v", got)
		}
	})

	t.Run("featuring credits and remix tags are ignored", func(t *testing.T) {
		track := models.Track{Artist: "Daft Punk", Title: "Get Lucky (feat. Pharrell Williams)"}
		got := selector.Select(track, []models.CatalogEntry{entry("x", "Get Lucky", 0.9)})
		if !got.Accepted {
			t.Errorf("expected accepted, got %v", got)
		}

		track = models.Track{Artist: "Avicii", Title: "Levels"}
		got = selector.Select(track, []models.CatalogEntry{entry("y", "Levels [Radio Edit]", 0.9)})
		if !got.Accepted {
			t.Errorf("expected accepted, got %v", got)
		}

		tc := []struct{ artist, title, mapped string }{
			{"Avicii", "Levels - Radio Edit", "Levels"},
			{"Queen", "Bohemian Rhapsody - Remastered 2011", "Bohemian Rhapsody"},
			{"Daft Punk", "One More Time - Short Radio Edit", "One More Time"},
		}
		for _, tt := range tc {
			candidate := entry("z", tt.mapped, 0.9)
			candidate.UploaderArtist = tt.artist

			got := selector.Select(models.Track{Artist: tt.artist, Title: tt.title}, []models.CatalogEntry{candidate})
			if !got.Accepted {
				t.Errorf("%q: expected accepted, got %v", tt.title, got)
			}
		}
	})

	t.Run("non-finite minimum rate accepts nothing", func(t *testing.T) {
		got := NewSelector(math.NaN(), DefaultMinSimilarity).Select(daftPunk, []models.CatalogEntry{entry("x", "One More Time", 0.01)})
		if got.Accepted || got.Reason != models.BelowThreshold {
			t.Errorf("expected BelowThreshold, got %v", got)
		}
	})

	t.Run("wrong uploader artist is filtered", func(t *testing.T) {
		candidate := entry("x", "One More Time", 0.95)
		candidate.UploaderArtist = "Taylor Swift"

		got := selector.Select(daftPunk, []models.CatalogEntry{candidate})
		if got.Reason != models.NoCandidates {
			t.Errorf("expected NoCandidates, got %v", got)
		}
	})

	t.Run("matching uploader artist outranks missing artist", func(t *testing.T) {
		unnamed := entry("unnamed", "One More Time", 0.9)
		named := entry("named", "One More Time", 0.8)
		named.UploaderArtist = "Daft Punk"

		got := selector.Select(daftPunk, []models.CatalogEntry{unnamed, named})
		if !got.Accepted {
			t.Fatalf("expected accepted, got %v", got)
		}
		if got.Score < 0.99 {
			t.Errorf("expected near perfect score, got %v", got.Score)
		}
	})

	t.Run("joined multi-artist tracks match a single uploader artist", func(t *testing.T) {
		track := models.Track{Artist: "Daft Punk, Pharrell Williams", Title: "Get Lucky"}
		candidate := entry("x", "Get Lucky", 0.9)
		candidate.UploaderArtist = "Pharrell Williams"

		got := selector.Select(track, []models.CatalogEntry{candidate})
		if !got.Accepted {
			t.Errorf("expected accepted, got %v", got)
		}
	})

	t.Run("MinRate is configurable", func(t *testing.T) {
		lenient := NewSelector(0.5, DefaultMinSimilarity)
		got := lenient.Select(daftPunk, []models.CatalogEntry{entry("x", "One More Time", 0.55)})
		if !got.Accepted {
			t.Errorf("expected accepted with MinRate 0.5, got %v", got)
		}
	})
}

func TestRank(t *testing.T) {
	selector := NewSelector(DefaultMinRate, DefaultMinSimilarity)
	track := models.Track{Artist: "Daft Punk", Title: "One More Time"}
	ranked := selector.Rank(track, []models.CatalogEntry{
		entry("a", "One More Time", 0.9),
		entry("b", "Unrelated", 0.9),
	})

	if len(ranked) != 2 {
		t.Fatalf("expected 2 scored candidates, got %d", len(ranked))
	}
	if ranked[0].Index != 0 || ranked[1].Index != 1 {
		t.Error("rank should preserve search order")
	}
	if !ranked[0].Eligible || ranked[1].Eligible {
		t.Errorf("unexpected eligibility %v %v", ranked[0].Eligible, ranked[1].Eligible)
	}
	if ranked[0].Artist != -1 {
		t.Errorf("expected no artist score without uploader artist, got %v", ranked[0].Artist)
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("Normalize", func(t *testing.T) {
		tc := []struct{ in, want string }{
			{"Beyoncé", "beyonce"},
			{"  AC/DC  ", "ac dc"},
			{"Sigur Rós - Hoppípolla!", "sigur ros hoppipolla"},
			{"", ""},
		}
		for _, tt := range tc {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("StripDecorations", func(t *testing.T) {
		tc := []struct{ in, want string }{
			{"Get Lucky (feat. Pharrell Williams)", "Get Lucky"},
			{"Levels [Radio Edit]", "Levels"},
			{"Titanium ft. Sia", "Titanium"},
			{"Levels - Radio Edit", "Levels"},
			{"Bohemian Rhapsody - Remastered 2011", "Bohemian Rhapsody"},
			{"Hey Jude - Live", "Hey Jude"},
			{"Around the World - Daft Punk", "Around the World - Daft Punk"},
			{"Plain", "Plain"},
		}
		for _, tt := range tc {
			if got := StripDecorations(tt.in); got != tt.want {
				t.Errorf("StripDecorations(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("TokenSimilarity bounds", func(t *testing.T) {
		if got := TokenSimilarity("One More Time", "time more one"); got != 1 {
			t.Errorf("expected 1, got %v", got)
		}
		if got := TokenSimilarity("", "anything"); got != 0 {
			t.Errorf("expected 0 for empty input, got %v", got)
		}
		if got := TokenSimilarity("abc", "xyz"); got < 0 || got > 0.2 {
			t.Errorf("expected near 0, got %v", got)
		}
	})

	t.Run("PartialRatio", func(t *testing.T) {
		if got := PartialRatio("Daft Punk", "Daft Punk & Pharrell"); got != 1 {
			t.Errorf("expected substring to score 1, got %v", got)
		}
		if got := PartialRatio("Daft Punk", "Taylor Swift"); got >= DefaultArtistFloor {
			t.Errorf("expected unrelated artists below floor, got %v", got)
		}
		if got := PartialRatio("", "x"); got != 0 {
			t.Errorf("expected 0 for empty input, got %v", got)
		}
	})
}
