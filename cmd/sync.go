package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/desertthunder/beatsync/internal/tasks"
	"github.com/desertthunder/beatsync/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/beatsync-tui.log"

// Sync obtains the library snapshot and resolves every track against the catalog.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySyncFlags(config, cmd); err != nil {
		return err
	}

	lock, err := shared.AcquireRunLock(config.Paths.OutputDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Bool("tui") {
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.logger.GetLevel())
		r.SetLogger(fileLogger)
	}
	logger := r.logger

	snapshot, err := r.obtainSnapshot(ctx, config, logger, cmd.Bool("refresh"))
	if err != nil {
		return err
	}
	logger.Info("library snapshot ready", "tracks", len(snapshot))

	engine, closeHistory := r.newEngine(config, logger, !cmd.Bool("no-history"))
	defer closeHistory()

	if cmd.Bool("tui") {
		return r.runTUI(ctx, engine, snapshot)
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ui.NewPrinter(r.output).Consume(progress)
	}()

	result, err := engine.Run(ctx, snapshot, progress)
	close(progress)
	wg.Wait()

	r.writePlainln("%s", ui.Summary(result, err))
	if result != nil {
		r.writePlain("Downloaded ids: %s\n", config.Paths.Downloaded)
		r.writePlain("Not found list: %s\n", config.Paths.NotFound)
	}
	return err
}

// obtainSnapshot reads the cached snapshot or fetches it from the library, authorizing through the callback server.
func (r *Runner) obtainSnapshot(ctx context.Context, config *shared.Config, logger *log.Logger, refresh bool) (models.LibrarySnapshot, error) {
	library, err := r.libraryFor(config, r.callbackAuthorizer(config.Credentials.Spotify, logger), logger)
	if err != nil {
		return nil, err
	}

	cache := r.snapshotCache(config, library, logger)
	if refresh {
		return cache.Refresh(ctx)
	}

	snapshot, err := cache.Obtain(ctx)
	if errors.Is(err, shared.ErrMissingCredentials) {
		return nil, fmt.Errorf("%w: set SPOTI_ID, SPOTI_SECRET and SPOTI_REDIRECT_URI or [credentials.spotify] in the config", err)
	}
	return snapshot, err
}

func applySyncFlags(config *shared.Config, cmd *cli.Command) error {
	if cmd.IsSet("min-rate") {
		config.Catalog.MinRate = cmd.Float("min-rate")
	}
	if cmd.IsSet("pause") {
		config.Catalog.PauseSec = cmd.Float("pause")
	}
	if cmd.IsSet("output") {
		config.Paths.OutputDir = cmd.String("output")
	}
	return config.Validate()
}

// runTUI drives the engine from the bubbletea sync view.
func (r *Runner) runTUI(ctx context.Context, engine *tasks.SyncEngine, snapshot models.LibrarySnapshot) error {
	model := ui.NewSyncModel(ctx, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error) {
		return engine.Run(ctx, snapshot, progress)
	})

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	r.writePlain("%s\n", ui.Summary(result, err))
	return err
}
