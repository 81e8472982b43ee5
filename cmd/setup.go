package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default configuration template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", configPath)

	r.writePlain("✓ Wrote %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or SPOTI_ID / SPOTI_SECRET)\n")
	r.writePlain("2. Run 'beatsync auth' to authorize access to your liked tracks\n")
	r.writePlain("3. Run 'beatsync sync'\n")
	return nil
}

// SetupDatabase initializes the run history database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, using defaults", "path", configPath)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, err := shared.OpenHistoryDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", config.Database.Path)
}
