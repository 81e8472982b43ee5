// package formatter renders run reports as CSV, Markdown, plain text and terminal tables
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
)

// Format is an export format accepted by `history export`.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts csv, md/markdown and txt/text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want csv, md or txt)", shared.ErrInvalidFlag, s)
}

// Export renders report in the given format.
func Export(report *models.RunReport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(report)
	case FormatMarkdown:
		return ExportToMarkdown(report)
	case FormatText:
		return ExportToText(report)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
}

// ExportToCSV converts a RunReport to CSV with columns: Position, Artist, Title, Status, Reason, MapID, Rating, Score, Folder, Error
func ExportToCSV(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Artist", "Title", "Status", "Reason", "MapID", "Rating", "Score", "Folder", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range report.Outcomes {
		rating := ""
		if o.Rated {
			rating = strconv.FormatFloat(o.Rating, 'f', 4, 64)
		}
		record := []string{
			strconv.Itoa(o.Position),
			o.Track.Artist,
			o.Track.Title,
			string(o.Status),
			o.Reason,
			o.MapID,
			rating,
			strconv.FormatFloat(o.Score, 'f', 4, 64),
			o.Folder,
			o.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a RunReport to Markdown with a summary and one section per outcome status
func ExportToMarkdown(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	run := report.Run

	fmt.Fprintf(&buf, "# Run #%d\n\n", run.Sequence)
	fmt.Fprintf(&buf, "**ID**: %s\n", run.ID)
	fmt.Fprintf(&buf, "**Status**: %s\n", run.Status)
	fmt.Fprintf(&buf, "**Started**: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(&buf, "**Duration**: %s\n", run.Duration().Round(time.Second))
	}
	fmt.Fprintf(&buf, "**Minimum rating**: %.2f\n\n", run.MinRate)

	fmt.Fprintf(&buf, "| Tracks | Downloaded | Already present | Not found |\n")
	fmt.Fprintf(&buf, "|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d |\n", run.Total, run.Downloaded, run.Skipped, run.NotFound)

	sections := []struct {
		title  string
		status models.OutcomeStatus
	}{
		{"Downloaded", models.StatusDownloaded},
		{"Already present", models.StatusSkipped},
		{"Not found", models.StatusNotFound},
	}
	for _, s := range sections {
		outcomes := filter(report.Outcomes, s.status)
		if len(outcomes) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "\n## %s\n\n", s.title)
		for _, o := range outcomes {
			switch o.Status {
			case models.StatusNotFound:
				fmt.Fprintf(&buf, "%d. %s - %s (%s)\n", o.Position, o.Track.Artist, o.Track.Title, o.Reason)
			default:
				fmt.Fprintf(&buf, "%d. %s - %s [`%s`, rating %s]\n", o.Position, o.Track.Artist, o.Track.Title, o.MapID, ratingLabel(o))
			}
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a RunReport to plain text, one line per outcome
func ExportToText(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	run := report.Run

	fmt.Fprintf(&buf, "Run: #%d (%s)\n", run.Sequence, run.ID)
	fmt.Fprintf(&buf, "Status: %s\n", run.Status)
	fmt.Fprintf(&buf, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Downloaded: %d, already present: %d, not found: %d of %d\n\n",
		run.Downloaded, run.Skipped, run.NotFound, run.Total)

	for _, o := range report.Outcomes {
		detail := o.MapID
		if o.Status == models.StatusNotFound {
			detail = o.Reason
		}
		fmt.Fprintf(&buf, "%d. [%s] %s - %s: %s\n", o.Position, o.Status, o.Track.Artist, o.Track.Title, detail)
	}

	return buf.Bytes(), nil
}

// DefaultFilename is run-<sequence>.<format>.
func DefaultFilename(run models.Run, format Format) string {
	return fmt.Sprintf("run-%d.%s", run.Sequence, format)
}

// WriteExport renders report and writes it to path, defaulting to [DefaultFilename].
func WriteExport(report *models.RunReport, format Format, path string) (string, error) {
	if path == "" {
		path = DefaultFilename(report.Run, format)
	}

	data, err := Export(report, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func filter(outcomes []models.Outcome, status models.OutcomeStatus) []models.Outcome {
	var out []models.Outcome
	for _, o := range outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func ratingLabel(o models.Outcome) string {
	if !o.Rated {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", o.Rating)
}
