package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from config.toml.
const (
	EnvSpotifyID       = "SPOTI_ID"
	EnvSpotifySecret   = "SPOTI_SECRET"
	EnvSpotifyRedirect = "SPOTI_REDIRECT_URI"
	EnvMinRate         = "BEATSYNC_MIN_RATE"
	EnvPauseSec        = "BEATSYNC_PAUSE_SEC"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Retry       RetryConfig       `toml:"retry"`
	Paths       PathsConfig       `toml:"paths"`
	Database    DatabaseConfig    `toml:"database"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the location of the cached OAuth token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// CatalogConfig controls the BeatSaver client and the match gate.
type CatalogConfig struct {
	BaseURL          string  `toml:"base_url"`
	DownloadBaseURL  string  `toml:"download_base_url"`
	UserAgent        string  `toml:"user_agent"`
	MinRate          float64 `toml:"min_rate"`
	MinSimilarity    float64 `toml:"min_similarity"`
	PauseSec         float64 `toml:"pause_sec"`
	JitterSec        float64 `toml:"jitter_sec"`
	TimeoutSec       float64 `toml:"timeout_sec"`
	AdvancedFallback bool    `toml:"advanced_fallback"`
}

// RetryConfig is the backoff schedule shared by catalog searches and downloads.
type RetryConfig struct {
	MaxAttempts   int     `toml:"max_attempts"`
	MinBackoffSec float64 `toml:"min_backoff_sec"`
	MaxBackoffSec float64 `toml:"max_backoff_sec"`
	Multiplier    float64 `toml:"multiplier"`
}

// PathsConfig lists the files and directories a sync run reads and writes.
type PathsConfig struct {
	Tracklist  string `toml:"tracklist"`
	OutputDir  string `toml:"output_dir"`
	Downloaded string `toml:"downloaded"`
	NotFound   string `toml:"not_found"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Pause is the fixed delay between outbound catalog calls.
func (c CatalogConfig) Pause() time.Duration { return seconds(c.PauseSec) }

// Jitter is the upper bound of the random delay added to [CatalogConfig.Pause].
func (c CatalogConfig) Jitter() time.Duration { return seconds(c.JitterSec) }

// Timeout bounds a single HTTP request.
func (c CatalogConfig) Timeout() time.Duration { return seconds(c.TimeoutSec) }

func (r RetryConfig) MinBackoff() time.Duration { return seconds(r.MinBackoffSec) }
func (r RetryConfig) MaxBackoff() time.Duration { return seconds(r.MaxBackoffSec) }

// CallbackAddr returns the host:port the local OAuth callback server should listen on.
func (s SpotifyConfig) CallbackAddr() (string, error) {
	u, err := url.Parse(s.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect_uri: %v", ErrInvalidConfig, err)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" {
		return "", fmt.Errorf("%w: redirect_uri has no host", ErrInvalidConfig)
	}
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(host, port), nil
}

// CallbackPath returns the path component of the redirect URI.
func (s SpotifyConfig) CallbackPath() string {
	u, err := url.Parse(s.RedirectURI)
	if err != nil || u.Path == "" {
		return "/callback"
	}
	return u.Path
}

// ResolvedTokenPath returns TokenPath, defaulting to the XDG cache directory.
func (s SpotifyConfig) ResolvedTokenPath() string {
	if s.TokenPath != "" {
		return s.TokenPath
	}
	return filepath.Join(xdg.CacheHome, "beatsync", "spotify_token.json")
}

// MaxSeconds bounds every duration tunable.
const MaxSeconds = 24 * 60 * 60

// Validate checks that tunables are finite and within range.
func (c *Config) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"catalog.min_rate":       c.Catalog.MinRate,
		"catalog.min_similarity": c.Catalog.MinSimilarity,
		"catalog.pause_sec":      c.Catalog.PauseSec,
		"catalog.jitter_sec":     c.Catalog.JitterSec,
		"catalog.timeout_sec":    c.Catalog.TimeoutSec,
		"retry.min_backoff_sec":  c.Retry.MinBackoffSec,
		"retry.max_backoff_sec":  c.Retry.MaxBackoffSec,
		"retry.multiplier":       c.Retry.Multiplier,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidConfig, name, v))
		}
	}
	for name, v := range map[string]float64{
		"catalog.pause_sec":     c.Catalog.PauseSec,
		"catalog.jitter_sec":    c.Catalog.JitterSec,
		"catalog.timeout_sec":   c.Catalog.TimeoutSec,
		"retry.min_backoff_sec": c.Retry.MinBackoffSec,
		"retry.max_backoff_sec": c.Retry.MaxBackoffSec,
	} {
		if v > MaxSeconds {
			errs = append(errs, fmt.Errorf("%w: %s must be at most %d seconds, got %v", ErrInvalidConfig, name, MaxSeconds, v))
		}
	}
	if c.Catalog.MinRate < 0 || c.Catalog.MinRate > 1 {
		errs = append(errs, fmt.Errorf("%w: catalog.min_rate must be within [0, 1], got %v", ErrInvalidConfig, c.Catalog.MinRate))
	}
	if c.Catalog.MinSimilarity < 0 || c.Catalog.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("%w: catalog.min_similarity must be within [0, 1], got %v", ErrInvalidConfig, c.Catalog.MinSimilarity))
	}
	if c.Catalog.PauseSec < 0 || c.Catalog.JitterSec < 0 {
		errs = append(errs, fmt.Errorf("%w: catalog pauses must not be negative", ErrInvalidConfig))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig))
	}
	if c.Retry.MaxBackoffSec < c.Retry.MinBackoffSec {
		errs = append(errs, fmt.Errorf("%w: retry.max_backoff_sec is below min_backoff_sec", ErrInvalidConfig))
	}
	if c.Paths.OutputDir == "" {
		errs = append(errs, fmt.Errorf("%w: paths.output_dir is empty", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// HasSpotifyCredentials reports whether the three connection parameters are set.
func (c *Config) HasSpotifyCredentials() bool {
	s := c.Credentials.Spotify
	return s.ClientID != "" && s.ClientSecret != "" && s.RedirectURI != ""
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the process environment.
//
// Missing files are ignored and variables that are already set are not overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with any set environment variables.
func ApplyEnv(config *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv(EnvSpotifyID); v != "" {
		config.Credentials.Spotify.ClientID = v
	}
	if v := getenv(EnvSpotifySecret); v != "" {
		config.Credentials.Spotify.ClientSecret = v
	}
	if v := getenv(EnvSpotifyRedirect); v != "" {
		config.Credentials.Spotify.RedirectURI = v
	}
	if v := getenv(EnvMinRate); v != "" {
		f, err := parseTunable(EnvMinRate, v)
		if err != nil {
			return err
		}
		config.Catalog.MinRate = f
	}
	if v := getenv(EnvPauseSec); v != "" {
		f, err := parseTunable(EnvPauseSec, v)
		if err != nil {
			return err
		}
		config.Catalog.PauseSec = f
	}
	return nil
}

// ResolveConfig builds the effective configuration: .env, then the TOML file at path (when present), then environment overrides.
func ResolveConfig(path string) (*Config, error) {
	if err := LoadEnvFiles(".env"); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if err := ApplyEnv(config, os.Getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// parseTunable parses a float environment override, rejecting NaN and infinities.
func parseTunable(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	return f, nil
}

// seconds converts s to a duration, clamped to [0, MaxSeconds].
func seconds(s float64) time.Duration {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	return time.Duration(min(s, MaxSeconds) * float64(time.Second))
}
