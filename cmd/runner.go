package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/archive"
	"github.com/desertthunder/beatsync/internal/matcher"
	"github.com/desertthunder/beatsync/internal/repositories"
	"github.com/desertthunder/beatsync/internal/server"
	"github.com/desertthunder/beatsync/internal/services"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/desertthunder/beatsync/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	catalog    services.Catalog
	library    services.Library
	openURL    func(string) error
	newState   func() string
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is resolved from --config, .env and the environment on first use.
// Catalog and Library replace the BeatSaver and Spotify clients built from the config.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Catalog    services.Catalog
	Library    services.Library
	OpenURL    func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		catalog:    opts.Catalog,
		library:    opts.Library,
		openURL:    opts.OpenURL,
		newState:   shared.GenerateState,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, authCommand, libraryCommand, searchCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig resolves the configuration once and applies --verbose.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.config != nil {
		return r.config, nil
	}

	config, err := shared.ResolveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	r.config = config
	return config, nil
}

func (r *Runner) catalogFor(config *shared.Config, logger *log.Logger) services.Catalog {
	if r.catalog != nil {
		return r.catalog
	}
	client := &http.Client{Transport: r.httpClient.Transport, Timeout: config.Catalog.Timeout()}
	return services.NewBeatSaverService(config.Catalog, config.Retry,
		services.WithHTTPClient(client), services.WithLogger(logger))
}

// libraryFor returns the Spotify library, or nil when no credentials are configured.
// A nil library still allows a cached snapshot to be used.
func (r *Runner) libraryFor(config *shared.Config, authorize services.Authorizer, logger *log.Logger) (services.Library, error) {
	if r.library != nil {
		return r.library, nil
	}
	if !config.HasSpotifyCredentials() {
		logger.Debug("spotify credentials not configured")
		return nil, nil
	}
	library, err := services.NewSpotifyLibrary(config.Credentials.Spotify, nil, authorize, services.WithSpotifyLogger(logger))
	if err != nil {
		return nil, err
	}
	return library, nil
}

func (r *Runner) snapshotCache(config *shared.Config, library services.Library, logger *log.Logger) *repositories.SnapshotCache {
	var source repositories.LibrarySource
	if library != nil {
		source = library
	}
	return repositories.NewSnapshotCache(config.Paths.Tracklist, source, logger)
}

// callbackAuthorizer authorizes through the local callback server on the redirect URI.
func (r *Runner) callbackAuthorizer(spotify shared.SpotifyConfig, logger *log.Logger) services.Authorizer {
	return func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		addr, err := spotify.CallbackAddr()
		if err != nil {
			return nil, err
		}
		flow := &server.CallbackFlow{
			Addr:   addr,
			Path:   spotify.CallbackPath(),
			Open:   r.openURL,
			Logger: logger,
			Out:    r.output,
		}
		return flow.Authorize(ctx, config)
	}
}

// newEngine wires the catalog, selector and materializer. The returned func closes the history database.
func (r *Runner) newEngine(config *shared.Config, logger *log.Logger, withHistory bool) (*tasks.SyncEngine, func()) {
	catalog := r.catalogFor(config, logger)
	selector := matcher.NewSelector(config.Catalog.MinRate, config.Catalog.MinSimilarity)
	materializer := tasks.NewMaterializer(config.Paths.OutputDir, catalog, archive.NewZipExtractor(), logger)
	engine := tasks.NewSyncEngine(catalog, selector, materializer, tasks.SyncOptions{
		DownloadedPath: config.Paths.Downloaded,
		NotFoundPath:   config.Paths.NotFound,
		MinRate:        config.Catalog.MinRate,
	}, logger)

	if !withHistory || !config.Database.Enabled {
		return engine, func() {}
	}

	db, err := shared.OpenHistoryDatabase(config.Database)
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
		return engine, func() {}
	}
	engine.WithHistory(repositories.NewHistoryRepository(db))
	return engine, func() { db.Close() }
}

// historyRepository opens the run history database for the history commands.
func (r *Runner) historyRepository(cmd *cli.Command) (*repositories.HistoryRepository, func(), error) {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if !config.Database.Enabled {
		return nil, nil, fmt.Errorf("%w: run history is disabled (database.enabled = false)", shared.ErrInvalidConfig)
	}

	db, err := shared.OpenHistoryDatabase(config.Database)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewHistoryRepository(db), func() { db.Close() }, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
