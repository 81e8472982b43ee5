package tasks

import (
	"fmt"

	"github.com/desertthunder/beatsync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // 1-based track position, 0 before the first track
	Total   int    // Tracks in the snapshot
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Starting Phase = iota
	Searching
	Downloading
	Resolved
	Finished
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Searching:
		return "searching"
	case Downloading:
		return "downloading"
	case Resolved:
		return "resolved"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func startingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Starting,
		Total:   total,
		Message: fmt.Sprintf("Searching BeatSaver for %d tracks...", total),
	}
}

func searchingUpdate(step, total int, tr models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Searching,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, tr.Label()),
	}
}

func downloadingUpdate(step, total int, entry *models.CatalogEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading map %s (%s)...", step, total, entry.MapID, entry.RatingLabel()),
		Data:    entry,
	}
}

// resolvedUpdate carries the track's [models.Outcome] in Data.
func resolvedUpdate(step, total int, o models.Outcome) ProgressUpdate {
	var msg string
	switch o.Status {
	case models.StatusDownloaded:
		msg = fmt.Sprintf("[%d/%d] ✓ %s -> %s", step, total, o.Track.Label(), o.MapID)
	case models.StatusSkipped:
		msg = fmt.Sprintf("[%d/%d] ✓ %s (already present)", step, total, o.Track.Label())
	default:
		msg = fmt.Sprintf("[%d/%d] ✗ %s (%s)", step, total, o.Track.Label(), o.Reason)
	}
	return ProgressUpdate{
		Phase:   Resolved,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func finishedUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Finished,
		Step:  len(result.Outcomes),
		Total: result.Run.Total,
		Message: fmt.Sprintf("Done: %d downloaded, %d already present, %d not found",
			result.Run.Downloaded, result.Run.Skipped, result.Run.NotFound),
		Data: result,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
