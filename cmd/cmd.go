// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// rootFlags are inherited by every subcommand.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
}

// syncCommand downloads maps for the liked tracks
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download BeatSaver maps for your Spotify liked tracks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show progress in the interactive terminal UI",
			},
			&cli.FloatFlag{
				Name:  "min-rate",
				Usage: "Reject maps rated below this score (0-1)",
			},
			&cli.FloatFlag{
				Name:  "pause",
				Usage: "Seconds between catalog requests",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory maps are extracted into",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record or consult run history",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Fetch the library again instead of using the cached snapshot",
			},
		},
		Action: r.Sync,
	}
}

// authCommand handles Spotify authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize access to your Spotify liked tracks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "manual",
				Usage: "Paste the redirect URL instead of running a local callback server",
			},
		},
		Action: r.Auth,
	}
}

// libraryCommand manages the cached library snapshot
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Cached library snapshot operations",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "List the tracks in the cached snapshot",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LibraryShow,
			},
			{
				Name:   "refresh",
				Usage:  "Fetch the library from Spotify and replace the snapshot",
				Action: r.LibraryRefresh,
			},
			{
				Name:   "clear",
				Usage:  "Delete the cached snapshot",
				Action: r.LibraryClear,
			},
		},
	}
}

// searchCommand probes the catalog for a single track
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search BeatSaver for one track and show the match decision",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "artist",
			},
			&cli.StringArg{
				Name: "title",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.FloatFlag{
				Name:  "min-rate",
				Usage: "Reject maps rated below this score (0-1)",
			},
		},
		Action: r.Search,
	}
}

// historyCommand reads back recorded runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and export previous sync runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show the outcomes of one run",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "run",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "export",
				Usage: "Export a run report",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "run",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, md, txt)",
						Value:   "md",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (defaults to run-<n>.<format>)",
					},
				},
				Action: r.HistoryExport,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run history database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
