package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/beatsync/internal/matcher"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type searchCandidate struct {
	Entry      models.CatalogEntry `json:"entry"`
	Title      float64             `json:"title_similarity"`
	Artist     float64             `json:"artist_similarity"`
	Score      float64             `json:"score"`
	Eligible   bool                `json:"eligible"`
	Selectable bool                `json:"meets_min_rate"`
}

type searchReport struct {
	Track      models.Track         `json:"track"`
	MinRate    float64              `json:"min_rate"`
	Candidates []searchCandidate    `json:"candidates"`
	Accepted   bool                 `json:"accepted"`
	Reason     models.RejectReason  `json:"reason,omitempty"`
	Selected   *models.CatalogEntry `json:"selected,omitempty"`
}

// Search runs the catalog search and match selection for one track without downloading.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	track := trackFromArgs(cmd)
	if strings.TrimSpace(track.Artist) == "" || strings.TrimSpace(track.Title) == "" {
		return fmt.Errorf("%w: usage: beatsync search <artist> <title>", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("min-rate") {
		config.Catalog.MinRate = cmd.Float("min-rate")
		if err := config.Validate(); err != nil {
			return err
		}
	}

	catalog := r.catalogFor(config, r.logger)
	candidates, err := catalog.Search(ctx, track.Artist, track.Title)
	if err != nil {
		return err
	}

	selector := matcher.NewSelector(config.Catalog.MinRate, config.Catalog.MinSimilarity)
	decision := selector.Select(track, candidates)

	report := searchReport{Track: track, MinRate: config.Catalog.MinRate, Accepted: decision.Accepted, Reason: decision.Reason}
	if decision.Accepted {
		report.Selected = decision.Entry
	}
	for _, s := range selector.Rank(track, candidates) {
		report.Candidates = append(report.Candidates, searchCandidate{
			Entry:      s.Entry,
			Title:      s.Title,
			Artist:     s.Artist,
			Score:      s.Score,
			Eligible:   s.Eligible,
			Selectable: s.Entry.Rated && s.Entry.Rating >= config.Catalog.MinRate,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s: %s", catalog.Name(), track.Label()))
	if len(report.Candidates) == 0 {
		r.writePlain("No candidates found\n")
	}
	for i, c := range report.Candidates {
		mark := " "
		if report.Selected != nil && c.Entry.MapID == report.Selected.MapID {
			mark = "*"
		}
		r.writePlain("%s %2d. [%s] %s by %s (rating %s, title %.2f, score %.2f)\n",
			mark, i+1, c.Entry.MapID, c.Entry.Title, c.Entry.UploaderArtist, c.Entry.RatingLabel(), c.Title, c.Score)
	}
	r.writePlainln("Decision: %s", decision)
	return nil
}
