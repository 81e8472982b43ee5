package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// OutcomeStatus is what happened to a single track.
type OutcomeStatus string

const (
	StatusDownloaded OutcomeStatus = "downloaded"
	StatusSkipped    OutcomeStatus = "skipped" // destination already populated
	StatusNotFound   OutcomeStatus = "not_found"
)

// Miss reasons recorded on not_found outcomes in addition to the [RejectReason] values.
const (
	ReasonSearchFailed   = "search_failed"
	ReasonDownloadFailed = "download_failed"
)

// Run is one sync invocation.
type Run struct {
	ID         string
	Sequence   int
	Status     RunStatus
	Total      int
	Downloaded int
	Skipped    int
	NotFound   int
	MinRate    float64
	StartedAt  time.Time
	FinishedAt *time.Time
}

func (r *Run) Key() string          { return r.ID }
func (r *Run) CreatedAt() time.Time { return r.StartedAt }

func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.MinRate < 0 || r.MinRate > 1 {
		return fmt.Errorf("min rate %v out of range", r.MinRate)
	}
	switch r.Status {
	case RunRunning, RunCompleted, RunInterrupted, RunFailed:
	default:
		return fmt.Errorf("unknown run status %q", r.Status)
	}
	return nil
}

// Duration is the wall time of a finished run, or zero while running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Tally updates the counters for one outcome.
func (r *Run) Tally(status OutcomeStatus) {
	switch status {
	case StatusDownloaded:
		r.Downloaded++
	case StatusSkipped:
		r.Skipped++
	case StatusNotFound:
		r.NotFound++
	}
}

// Outcome records the resolution of one track within a run.
type Outcome struct {
	ID        string
	RunID     string
	Position  int
	Track     Track
	Status    OutcomeStatus
	Reason    string
	MapID     string
	Rating    float64
	Rated     bool
	Score     float64
	Folder    string
	Error     string
	Timestamp time.Time
}

func (o *Outcome) Key() string          { return o.ID }
func (o *Outcome) CreatedAt() time.Time { return o.Timestamp }

func (o *Outcome) Validate() error {
	if o.RunID == "" {
		return fmt.Errorf("outcome run id is required")
	}
	if err := o.Track.Validate(); err != nil {
		return err
	}
	switch o.Status {
	case StatusDownloaded, StatusSkipped:
		if o.MapID == "" {
			return fmt.Errorf("%s outcome requires a map id", o.Status)
		}
	case StatusNotFound:
	default:
		return fmt.Errorf("unknown outcome status %q", o.Status)
	}
	return nil
}

// RunReport bundles a run with its outcomes in processing order.
type RunReport struct {
	Run      Run
	Outcomes []Outcome
}

var (
	_ Model = (*Run)(nil)
	_ Model = (*Outcome)(nil)
)
