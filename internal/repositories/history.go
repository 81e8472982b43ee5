package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
)

const runColumns = `id, sequence, status, total, downloaded, skipped, not_found, min_rate, started_at, finished_at`

const outcomeColumns = `id, run_id, position, source_id, artist, title, status, reason, map_id,
	rating, score, folder, error, created_at`

// HistoryRepository records sync runs and their per-track outcomes.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// StartRun inserts run with a generated ID and sequence and marks it running.
func (r *HistoryRepository) StartRun(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.ID = shared.GenerateID()
	run.Sequence = sequence
	run.Status = models.RunRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		run.ID, run.Sequence, run.Status, run.Total,
		run.Downloaded, run.Skipped, run.NotFound, run.MinRate,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of run.
func (r *HistoryRepository) FinishRun(run *models.Run) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE runs
		SET status = ?, total = ?, downloaded = ?, skipped = ?, not_found = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Status, run.Total, run.Downloaded, run.Skipped, run.NotFound, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, run.ID)
	}
	return nil
}

// RecordOutcome appends one track outcome to its run.
func (r *HistoryRepository) RecordOutcome(o *models.Outcome) error {
	if o.ID == "" {
		o.ID = shared.GenerateID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var rating any
	if o.Rated {
		rating = o.Rating
	}

	query := `
		INSERT INTO outcomes (` + outcomeColumns + `, track_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		o.ID, o.RunID, o.Position, o.Track.SourceID, o.Track.Artist, o.Track.Title,
		o.Status, o.Reason, o.MapID, rating, o.Score, o.Folder, o.Error, o.Timestamp,
		shared.NormalizeTrackKey(o.Track.Artist, o.Track.Title),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// LastDownload returns the most recent downloaded outcome for a library track.
// Tracks are matched by source id, or by normalized artist and title when the
// track has none.
//
// Returns [shared.ErrNotFound] when the track was never downloaded.
func (r *HistoryRepository) LastDownload(track models.Track) (*models.Outcome, error) {
	column, key := "source_id", track.SourceID
	if key == "" {
		if strings.TrimSpace(track.Artist) == "" && strings.TrimSpace(track.Title) == "" {
			return nil, fmt.Errorf("%w: track has no identity", shared.ErrNotFound)
		}
		column, key = "track_key", shared.NormalizeTrackKey(track.Artist, track.Title)
	}

	query := `
		SELECT ` + outcomeColumns + `
		FROM outcomes
		WHERE ` + column + ` = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	o, err := scanOutcome(r.db.QueryRow(query, key, models.StatusDownloaded))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no download for %s", shared.ErrNotFound, key)
	}
	return o, err
}

// ListRuns returns the most recent runs first. A non-positive limit returns all runs.
func (r *HistoryRepository) ListRuns(limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// GetRun looks a run up by ID, ID prefix, or sequence number ("42" or "#42").
func (r *HistoryRepository) GetRun(ref string) (*models.Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: run reference", shared.ErrMissingArgument)
	}

	var row *sql.Row
	if seq, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil {
		row = r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE sequence = ?`, seq)
	} else {
		row = r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 1`,
			ref, ref+"%", ref)
	}

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, ref)
	}
	return run, err
}

// ListOutcomes returns a run's outcomes in processing order.
func (r *HistoryRepository) ListOutcomes(runID string) ([]models.Outcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM outcomes WHERE run_id = ? ORDER BY position, created_at`

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return outcomes, nil
}

// Report loads a run and its outcomes.
func (r *HistoryRepository) Report(ref string) (*models.RunReport, error) {
	run, err := r.GetRun(ref)
	if err != nil {
		return nil, err
	}
	outcomes, err := r.ListOutcomes(run.ID)
	if err != nil {
		return nil, err
	}
	return &models.RunReport{Run: *run, Outcomes: outcomes}, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		finishedAt sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.Sequence, &status, &run.Total, &run.Downloaded,
		&run.Skipped, &run.NotFound, &run.MinRate, &run.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func scanOutcome(s scanner) (*models.Outcome, error) {
	var (
		o      models.Outcome
		status string
		rating sql.NullFloat64
	)

	err := s.Scan(
		&o.ID, &o.RunID, &o.Position, &o.Track.SourceID, &o.Track.Artist, &o.Track.Title,
		&status, &o.Reason, &o.MapID, &rating, &o.Score, &o.Folder, &o.Error, &o.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outcome: %w", err)
	}

	o.Status = models.OutcomeStatus(status)
	if rating.Valid {
		o.Rating = rating.Float64
		o.Rated = true
	}
	return &o, nil
}
