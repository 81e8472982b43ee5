package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/beatsync/internal/formatter"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints the most recent sync runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	history, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := history.ListRuns(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		return r.writePlain("No runs recorded yet\n")
	}
	return r.writePlain("%s\n", formatter.RunsTable(runs))
}

// HistoryShow prints one run and its per-track outcomes.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	ref := strings.TrimSpace(cmd.StringArg("run"))
	if ref == "" {
		return fmt.Errorf("%w: run id or sequence number", shared.ErrMissingArgument)
	}

	history, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := history.Report(ref)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	run := report.Run
	r.writePlainHeader(fmt.Sprintf("Run #%d (%s)", run.Sequence, run.Status))
	r.writePlain("ID: %s\n", run.ID)
	r.writePlain("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	r.writePlain("Duration: %s\n", run.Duration())
	r.writePlain("Downloaded: %d  Skipped: %d  Not found: %d  Total: %d\n\n",
		run.Downloaded, run.Skipped, run.NotFound, run.Total)
	return r.writePlain("%s\n", formatter.OutcomesTable(report.Outcomes))
}

// HistoryExport writes a run report as CSV, Markdown or plain text.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	ref := strings.TrimSpace(cmd.StringArg("run"))
	if ref == "" {
		return fmt.Errorf("%w: run id or sequence number", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	history, closeDB, err := r.historyRepository(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := history.Report(ref)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(report, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("run exported", "run", report.Run.ID, "format", format, "path", path)
	return r.writePlain("✓ Exported run #%d to %s\n", report.Run.Sequence, path)
}
