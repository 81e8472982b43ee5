package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/beatsync/internal/models"
	"github.com/urfave/cli/v3"
)

// LibraryShow prints the cached library snapshot.
func (r *Runner) LibraryShow(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	cache := r.snapshotCache(config, nil, r.logger)
	snapshot, err := cache.Read()
	if errors.Is(err, os.ErrNotExist) {
		return r.writePlain("No library snapshot at %s. Run 'beatsync library refresh' or 'beatsync sync'.\n", cache.Path())
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snapshot, true)
	}

	r.writePlainHeader(fmt.Sprintf("Library snapshot (%d tracks)", len(snapshot)))
	for i, track := range snapshot {
		r.writePlain("%4d. %s\n", i+1, track.Label())
	}
	return nil
}

// LibraryRefresh fetches the remote library and replaces the cached snapshot.
func (r *Runner) LibraryRefresh(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	snapshot, err := r.obtainSnapshot(ctx, config, r.logger, true)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Saved %d tracks to %s\n", len(snapshot), config.Paths.Tracklist)
}

// LibraryClear deletes the cached snapshot so the next sync fetches the library again.
func (r *Runner) LibraryClear(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	cache := r.snapshotCache(config, nil, r.logger)
	if err := cache.Clear(); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s\n", cache.Path())
}

func trackFromArgs(cmd *cli.Command) models.Track {
	return models.Track{Artist: cmd.StringArg("artist"), Title: cmd.StringArg("title")}
}
