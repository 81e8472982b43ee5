package formatter

import (
	"strconv"
	"time"

	"github.com/desertthunder/beatsync/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04"

// RunsTable renders runs as a rounded table, newest first as given.
func RunsTable(runs []*models.Run) string {
	if len(runs) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ID", "Status", "Started", "Duration", "Tracks", "Downloaded", "Present", "Not found"})

	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		tw.AppendRow(table.Row{
			r.Sequence, shortID(r.ID), string(r.Status), r.StartedAt.Local().Format(timeLayout),
			duration, r.Total, r.Downloaded, r.Skipped, r.NotFound,
		})
	}

	tw.SetColumnConfigs(rightAligned(1, 6, 7, 8, 9))
	return tw.Render()
}

// OutcomesTable renders one row per track outcome.
func OutcomesTable(outcomes []models.Outcome) string {
	if len(outcomes) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Artist", "Title", "Status", "Map", "Rating", "Reason"})

	for _, o := range outcomes {
		tw.AppendRow(table.Row{
			strconv.Itoa(o.Position), o.Track.Artist, o.Track.Title, string(o.Status),
			o.MapID, ratingLabel(o), o.Reason,
		})
	}

	tw.SetColumnConfigs(rightAligned(1, 6))
	return tw.Render()
}

func rightAligned(columns ...int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, n := range columns {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	return configs
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
