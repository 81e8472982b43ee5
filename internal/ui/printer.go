package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/tasks"
)

// Printer writes progress updates as plain lines, one per resolved track.
type Printer struct {
	w   io.Writer
	bar progress.Model
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, bar: progress.New(progress.WithSolidFill("#7D56F4"), progress.WithWidth(24))}
}

// Consume prints updates until the channel is closed.
func (p *Printer) Consume(updates <-chan tasks.ProgressUpdate) {
	for u := range updates {
		p.Print(u)
	}
}

// Print writes the line for a single update. Search and download updates are not printed.
func (p *Printer) Print(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.Starting:
		fmt.Fprintln(p.w, Muted(u.Message))
	case tasks.Resolved:
		line := u.Message
		if o, ok := u.Data.(models.Outcome); ok {
			line = OutcomeLine(o)
		}
		fmt.Fprintf(p.w, "%s %s\n", p.bar.ViewAs(fraction(u.Step, u.Total)), line)
	}
}

// OutcomeLine renders one track outcome.
func OutcomeLine(o models.Outcome) string {
	switch o.Status {
	case models.StatusDownloaded:
		return fmt.Sprintf("%s %s %s", OK("✓"), o.Track.Label(), Muted("-> "+o.MapID))
	case models.StatusSkipped:
		return fmt.Sprintf("%s %s %s", OK("•"), o.Track.Label(), Muted("(already present)"))
	default:
		return fmt.Sprintf("%s %s %s", Warn("✗"), o.Track.Label(), Muted("("+o.Reason+")"))
	}
}

// Summary renders the end-of-run report.
func Summary(result *tasks.SyncResult, err error) string {
	var b strings.Builder

	switch {
	case result == nil && err != nil:
		return Error(fmt.Sprintf("Sync failed: %v", err))
	case result == nil:
		return Error("No result available")
	case err != nil:
		b.WriteString(Warn(fmt.Sprintf("Sync stopped: %v", err)))
	default:
		b.WriteString(OK("✓ Sync complete"))
	}
	b.WriteString("\n\n")

	run := result.Run
	fmt.Fprintf(&b, "Processed %d of %d tracks\n", len(result.Outcomes), run.Total)
	b.WriteString(counters(run.Downloaded, run.Skipped, run.NotFound))
	b.WriteString("\n")

	if len(result.NotFound) > 0 {
		b.WriteString("\n")
		b.WriteString(Warn(fmt.Sprintf("Not found (%d):", len(result.NotFound))))
		for _, miss := range result.NotFound {
			b.WriteString("\n  • " + miss)
		}
		b.WriteString("\n")
	}
	return b.String()
}
