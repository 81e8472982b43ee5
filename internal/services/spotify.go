// Spotify library access via github.com/zmb3/spotify/v2
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const savedTracksPageSize = 50

// TokenStore persists the Spotify OAuth token as JSON.
type TokenStore struct {
	path string
}

// NewTokenStore creates a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

func (s *TokenStore) Path() string { return s.path }

// Load reads the cached token.
//
// A missing file is [shared.ErrNotAuthenticated]; an unreadable one is [shared.ErrCacheCorrupt].
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCacheCorrupt, s.path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s has no token", shared.ErrCacheCorrupt, s.path)
	}
	return &token, nil
}

// Save writes token with owner-only permissions.
func (s *TokenStore) Save(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", shared.ErrInvalidInput)
	}
	data, err := shared.MarshalJSON(token, true)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return shared.WriteFileAtomic(s.path, data, 0600)
}

// Clear removes the cached token. A missing file is not an error.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// Authorizer runs an interactive authorization and returns a fresh token.
type Authorizer func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)

// SpotifyLibrary reads the user's liked tracks.
//
// A cached token is used when present; otherwise, or when Spotify rejects it, the
// [Authorizer] is invoked once and the new token is cached.
type SpotifyLibrary struct {
	config    *oauth2.Config
	store     *TokenStore
	authorize Authorizer
	baseURL   string
	logger    *log.Logger
}

// SpotifyOption configures a [SpotifyLibrary].
type SpotifyOption func(*SpotifyLibrary)

// WithSpotifyBaseURL points the Web API client at another host. The URL must end in a slash.
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(l *SpotifyLibrary) { l.baseURL = u }
}

// WithSpotifyLogger sets the logger.
func WithSpotifyLogger(logger *log.Logger) SpotifyOption {
	return func(l *SpotifyLibrary) { l.logger = logger }
}

// NewSpotifyOAuthConfig builds the authorization code config for the user-library-read scope.
func NewSpotifyOAuthConfig(cfg shared.SpotifyConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("%w: spotify redirect_uri is required", shared.ErrMissingCredentials)
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{spotifyauth.ScopeUserLibraryRead},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}, nil
}

// NewSpotifyLibrary creates the library reader.
func NewSpotifyLibrary(cfg shared.SpotifyConfig, store *TokenStore, authorize Authorizer, opts ...SpotifyOption) (*SpotifyLibrary, error) {
	config, err := NewSpotifyOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = NewTokenStore(cfg.ResolvedTokenPath())
	}

	l := &SpotifyLibrary{config: config, store: store, authorize: authorize}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = shared.NewLogger(nil)
	}
	return l, nil
}

// OAuthConfig exposes the OAuth2 configuration for callback handlers.
func (l *SpotifyLibrary) OAuthConfig() *oauth2.Config { return l.config }

// Authorize runs the interactive flow unconditionally and caches the result.
func (l *SpotifyLibrary) Authorize(ctx context.Context) (*oauth2.Token, error) {
	if l.authorize == nil {
		return nil, fmt.Errorf("%w: no interactive authorization available", shared.ErrNotAuthenticated)
	}

	token, err := l.authorize(ctx, l.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	if err := l.store.Save(token); err != nil {
		l.logger.Warn("failed to cache spotify token", "path", l.store.Path(), "error", err)
	}
	return token, nil
}

// ObtainLibrary returns every saved track in library order.
func (l *SpotifyLibrary) ObtainLibrary(ctx context.Context) ([]models.Track, error) {
	token, err := l.store.Load()
	if err != nil {
		l.logger.Info("no usable cached spotify token, authorizing", "reason", err)
		if token, err = l.Authorize(ctx); err != nil {
			return nil, err
		}
		return l.fetch(ctx, token)
	}

	tracks, err := l.fetch(ctx, token)
	if err == nil || !errors.Is(err, shared.ErrTokenExpired) {
		return tracks, err
	}

	l.logger.Warn("spotify rejected the cached token, reauthorizing")
	if token, err = l.Authorize(ctx); err != nil {
		return nil, err
	}
	return l.fetch(ctx, token)
}

func (l *SpotifyLibrary) client(ctx context.Context, source oauth2.TokenSource) *spotify.Client {
	httpClient := oauth2.NewClient(ctx, source)
	var opts []spotify.ClientOption
	if l.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(l.baseURL))
	}
	return spotify.New(httpClient, opts...)
}

// fetch pages through /me/tracks and persists a refreshed token if one was issued.
func (l *SpotifyLibrary) fetch(ctx context.Context, token *oauth2.Token) ([]models.Track, error) {
	source := oauth2.ReuseTokenSource(token, l.config.TokenSource(ctx, token))
	client := l.client(ctx, source)

	page, err := client.CurrentUsersTracks(ctx, spotify.Limit(savedTracksPageSize))
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	var tracks []models.Track
	for {
		for _, item := range page.Tracks {
			if item.Name == "" {
				continue
			}
			tracks = append(tracks, toTrack(item.FullTrack))
		}

		err := client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, classifySpotifyError(err)
		}
	}

	if fresh, err := source.Token(); err == nil && fresh.AccessToken != token.AccessToken {
		if err := l.store.Save(fresh); err != nil {
			l.logger.Warn("failed to cache refreshed spotify token", "error", err)
		}
	}

	l.logger.Info("fetched spotify library", "tracks", len(tracks))
	return tracks, nil
}

func toTrack(t spotify.FullTrack) models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return models.Track{
		Artist:   strings.Join(names, ", "),
		Title:    t.Name,
		SourceID: string(t.ID),
	}
}

// classifySpotifyError maps 401s and failed refreshes to [shared.ErrTokenExpired].
func classifySpotifyError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: spotify: %v", shared.ErrAPIRequest, err)
}

// CodeFromRedirect extracts the authorization code from a pasted redirect URL, checking state.
func CodeFromRedirect(raw, state string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: not a URL: %v", shared.ErrInvalidInput, err)
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: %s", shared.ErrAuthFailed, e)
	}
	if q.Get("state") != state {
		return "", fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)
	}

	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: redirect URL has no code", shared.ErrInvalidInput)
	}
	return code, nil
}
