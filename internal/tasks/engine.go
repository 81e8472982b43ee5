package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
)

// Searcher queries the catalog for one track.
type Searcher interface {
	Search(ctx context.Context, artist, title string) ([]models.CatalogEntry, error)
}

// Selector decides which candidate, if any, to accept.
type Selector interface {
	Select(track models.Track, candidates []models.CatalogEntry) models.MatchDecision
}

// HistoryStore persists runs and outcomes across invocations.
type HistoryStore interface {
	StartRun(run *models.Run) error
	FinishRun(run *models.Run) error
	RecordOutcome(o *models.Outcome) error
	LastDownload(track models.Track) (*models.Outcome, error)
}

// SyncOptions holds the ledger locations and the gate recorded on the run.
type SyncOptions struct {
	DownloadedPath string
	NotFoundPath   string
	MinRate        float64
}

// SyncResult summarizes a finished or interrupted run.
type SyncResult struct {
	Run        models.Run
	Outcomes   []models.Outcome
	Downloaded []string
	NotFound   []string
}

// SyncEngine processes a library snapshot one track at a time.
type SyncEngine struct {
	searcher     Searcher
	selector     Selector
	materializer *Materializer
	history      HistoryStore
	opts         SyncOptions
	logger       *log.Logger
}

// NewSyncEngine creates a SyncEngine without run history.
func NewSyncEngine(searcher Searcher, selector Selector, materializer *Materializer, opts SyncOptions, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncEngine{
		searcher:     searcher,
		selector:     selector,
		materializer: materializer,
		opts:         opts,
		logger:       logger,
	}
}

// WithHistory enables outcome recording and skipping of tracks downloaded by earlier runs.
func (e *SyncEngine) WithHistory(h HistoryStore) *SyncEngine {
	e.history = h
	return e
}

// Run works through snapshot in order and writes the ledger after every track.
//
// Per-track failures become misses. Run only returns an error when the ledger cannot be
// written or ctx is cancelled, in which case the partial result is returned alongside an
// error wrapping [shared.ErrInterrupted].
func (e *SyncEngine) Run(ctx context.Context, snapshot models.LibrarySnapshot, progress chan<- ProgressUpdate) (*SyncResult, error) {
	ledger := NewLedger()
	if err := ledger.Flush(e.opts.DownloadedPath, e.opts.NotFoundPath); err != nil {
		return nil, err
	}

	run := &models.Run{Total: len(snapshot), MinRate: e.opts.MinRate, StartedAt: time.Now()}
	history := e.history
	if history != nil {
		if err := history.StartRun(run); err != nil {
			e.logger.Warn("run history disabled", "error", err)
			history = nil
		}
	}
	if history == nil {
		run.ID = shared.GenerateID()
		run.Status = models.RunRunning
	}

	logger := shared.WithLogger(e.logger, "run", run.ID)
	result := &SyncResult{}
	sendProgress(progress, startingUpdate(len(snapshot)))

	var interrupted error
	for i, track := range snapshot {
		step := i + 1
		outcome, err := e.resolve(ctx, history, logger, step, len(snapshot), track, progress)
		if err != nil {
			interrupted = err
			break
		}

		outcome.RunID = run.ID
		outcome.Position = step
		outcome.Timestamp = time.Now()

		switch outcome.Status {
		case models.StatusDownloaded, models.StatusSkipped:
			ledger.RecordSuccess(outcome.MapID)
		default:
			ledger.RecordMiss(track.Artist, track.Title)
		}
		if err := ledger.Flush(e.opts.DownloadedPath, e.opts.NotFoundPath); err != nil {
			logger.Error("failed to write ledger", "error", err)
		}

		if history != nil {
			if err := history.RecordOutcome(&outcome); err != nil {
				logger.Warn("failed to record outcome", "track", track.Label(), "error", err)
			}
		}

		run.Tally(outcome.Status)
		result.Outcomes = append(result.Outcomes, outcome)
		sendProgress(progress, resolvedUpdate(step, len(snapshot), outcome))
	}

	run.Status = models.RunCompleted
	if interrupted != nil {
		run.Status = models.RunInterrupted
	}
	now := time.Now()
	run.FinishedAt = &now
	if history != nil {
		if err := history.FinishRun(run); err != nil {
			logger.Warn("failed to finish run", "error", err)
		}
	}

	result.Run = *run
	result.Downloaded = ledger.Downloaded()
	result.NotFound = ledger.NotFound()

	if err := ledger.Flush(e.opts.DownloadedPath, e.opts.NotFoundPath); err != nil {
		return result, err
	}
	if interrupted != nil {
		logger.Warn("sync interrupted", "processed", len(result.Outcomes), "total", run.Total)
		return result, fmt.Errorf("%w: %v", shared.ErrInterrupted, interrupted)
	}

	logger.Info("sync finished",
		"downloaded", run.Downloaded, "skipped", run.Skipped, "not_found", run.NotFound,
		"duration", run.Duration().Round(time.Millisecond))
	sendProgress(progress, finishedUpdate(result))
	return result, nil
}

// resolve determines the outcome for one track. A non-nil error means the run was
// cancelled and the track must not be recorded.
func (e *SyncEngine) resolve(
	ctx context.Context, history HistoryStore, logger *log.Logger,
	step, total int, track models.Track, progress chan<- ProgressUpdate,
) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	outcome := models.Outcome{Track: track}

	if prev := e.previousDownload(history, track); prev != nil {
		logger.Debug("already downloaded", "track", track.Label(), "map", prev.MapID, "folder", prev.Folder)
		outcome.Status = models.StatusSkipped
		outcome.Reason = "history"
		outcome.MapID = prev.MapID
		outcome.Rating, outcome.Rated = prev.Rating, prev.Rated
		outcome.Folder = prev.Folder
		return outcome, nil
	}

	sendProgress(progress, searchingUpdate(step, total, track))
	candidates, err := e.searcher.Search(ctx, track.Artist, track.Title)
	if err != nil {
		if ctx.Err() != nil {
			return models.Outcome{}, ctx.Err()
		}
		logger.Warn("search failed", "track", track.Label(), "error", err)
		outcome.Status = models.StatusNotFound
		outcome.Reason = models.ReasonSearchFailed
		outcome.Error = err.Error()
		return outcome, nil
	}

	decision := e.selector.Select(track, candidates)
	outcome.Score = decision.Score
	if decision.Entry != nil {
		outcome.MapID = decision.Entry.MapID
		outcome.Rating, outcome.Rated = decision.Entry.Rating, decision.Entry.Rated
	}
	if !decision.Accepted {
		logger.Info("no match", "track", track.Label(), "reason", decision.Reason, "candidates", len(candidates))
		outcome.Status = models.StatusNotFound
		outcome.Reason = string(decision.Reason)
		return outcome, nil
	}

	entry := *decision.Entry
	if dir, ok := e.materializer.Existing(track, entry); ok {
		logger.Info("map already present", "track", track.Label(), "map", entry.MapID)
		outcome.Status = models.StatusSkipped
		outcome.Folder = dir
		return outcome, nil
	}

	sendProgress(progress, downloadingUpdate(step, total, decision.Entry))
	dir, err := e.materializer.Materialize(ctx, track, entry)
	if err != nil {
		if ctx.Err() != nil {
			return models.Outcome{}, ctx.Err()
		}
		logger.Warn("download failed", "track", track.Label(), "error", err)
		outcome.Status = models.StatusNotFound
		outcome.Reason = models.ReasonDownloadFailed
		outcome.Error = err.Error()
		return outcome, nil
	}

	logger.Info("map downloaded", "track", track.Label(), "map", entry.MapID, "rating", entry.RatingLabel())
	outcome.Status = models.StatusDownloaded
	outcome.Folder = dir
	return outcome, nil
}

// previousDownload returns the last recorded download of track when its folder is still populated.
func (e *SyncEngine) previousDownload(history HistoryStore, track models.Track) *models.Outcome {
	if history == nil {
		return nil
	}
	prev, err := history.LastDownload(track)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			e.logger.Warn("history lookup failed", "track", track.Label(), "error", err)
		}
		return nil
	}
	if prev.Folder == "" || !Populated(prev.Folder) {
		return nil
	}
	return prev
}
