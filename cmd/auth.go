package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/beatsync/internal/services"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Auth runs the Spotify authorization flow and caches the resulting token.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	authorize := r.callbackAuthorizer(config.Credentials.Spotify, r.logger)
	if cmd.Bool("manual") {
		authorize = r.manualAuthorizer
	}

	library, err := services.NewSpotifyLibrary(config.Credentials.Spotify, nil, authorize, services.WithSpotifyLogger(r.logger))
	if err != nil {
		return fmt.Errorf("%w: set SPOTI_ID, SPOTI_SECRET and SPOTI_REDIRECT_URI or [credentials.spotify] in the config", err)
	}

	r.logger.Info("starting spotify authorization", "redirect_uri", config.Credentials.Spotify.RedirectURI)
	if _, err := library.Authorize(ctx); err != nil {
		return err
	}

	r.writePlain("✓ Authorization successful\n")
	r.writePlain("Token cached at: %s\n", config.Credentials.Spotify.ResolvedTokenPath())
	return nil
}

// manualAuthorizer prints the authorization URL and exchanges the code from a pasted redirect URL.
func (r *Runner) manualAuthorizer(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	state := r.newState()
	authURL := config.AuthCodeURL(state)

	r.writePlain("Open this URL in your browser and approve access:\n\n%s\n\n", authURL)
	r.writePlain("Paste the URL you were redirected to: ")

	line, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return nil, fmt.Errorf("%w: no redirect URL entered", shared.ErrMissingArgument)
	}

	code, err := services.CodeFromRedirect(line, state)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange token: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}
