package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newApp(runner).Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrInterrupted) {
			logger.Warn("sync interrupted, progress saved")
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "beatsync",
		Usage:    "Download BeatSaver maps for your Spotify liked tracks",
		Version:  "0.1.0",
		Flags:    rootFlags(),
		Commands: r.register(),
	}
}
