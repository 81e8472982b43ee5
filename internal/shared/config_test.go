package shared

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Catalog.MinRate != 0.75 {
			t.Errorf("expected min_rate 0.75, got %v", config.Catalog.MinRate)
		}
		if config.Catalog.Pause() != 250*time.Millisecond {
			t.Errorf("expected pause 250ms, got %v", config.Catalog.Pause())
		}
		if config.Retry.MaxAttempts != 3 {
			t.Errorf("expected 3 attempts, got %d", config.Retry.MaxAttempts)
		}
		if config.Retry.MinBackoff() != 2*time.Second || config.Retry.MaxBackoff() != 15*time.Second {
			t.Errorf("unexpected backoff bounds %v..%v", config.Retry.MinBackoff(), config.Retry.MaxBackoff())
		}
		if config.Paths.Tracklist != "tracklist.json" {
			t.Errorf("expected tracklist.json, got %s", config.Paths.Tracklist)
		}
		if config.Paths.OutputDir != "maps" {
			t.Errorf("expected maps, got %s", config.Paths.OutputDir)
		}
		if config.Credentials.Spotify.RedirectURI != "http://127.0.0.1:8888/callback" {
			t.Errorf("unexpected redirect uri %s", config.Credentials.Spotify.RedirectURI)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing keys", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[catalog]
min_rate = 0.9

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Catalog.MinRate != 0.9 {
			t.Errorf("expected min_rate 0.9, got %v", config.Catalog.MinRate)
		}
		if config.Catalog.PauseSec != 0.25 {
			t.Errorf("expected default pause_sec, got %v", config.Catalog.PauseSec)
		}
		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.RedirectURI == "" {
			t.Error("expected default redirect uri")
		}
	})

	t.Run("LoadConfig rejects malformed TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		os.WriteFile(configPath, []byte("[catalog\nmin_rate = "), 0644)

		if _, err := LoadConfig(configPath); err == nil {
			t.Fatal("expected parse error")
		}
	})

	t.Run("SaveConfig round trip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Catalog.MinRate = 0.6
		config.Paths.OutputDir = "custom"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}
		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if loaded.Catalog.MinRate != 0.6 || loaded.Paths.OutputDir != "custom" {
			t.Errorf("round trip lost values: %+v", loaded.Catalog)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name   string
			mutate func(*Config)
		}{
			{"min rate above one", func(c *Config) { c.Catalog.MinRate = 1.5 }},
			{"negative min rate", func(c *Config) { c.Catalog.MinRate = -0.1 }},
			{"negative pause", func(c *Config) { c.Catalog.PauseSec = -1 }},
			{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
			{"inverted backoff", func(c *Config) { c.Retry.MaxBackoffSec = 1 }},
			{"empty output dir", func(c *Config) { c.Paths.OutputDir = "" }},
			{"NaN min rate", func(c *Config) { c.Catalog.MinRate = math.NaN() }},
			{"NaN min similarity", func(c *Config) { c.Catalog.MinSimilarity = math.NaN() }},
			{"NaN pause", func(c *Config) { c.Catalog.PauseSec = math.NaN() }},
			{"infinite pause", func(c *Config) { c.Catalog.PauseSec = math.Inf(1) }},
			{"overflowing pause", func(c *Config) { c.Catalog.PauseSec = 1e12 }},
			{"infinite backoff", func(c *Config) { c.Retry.MaxBackoffSec = math.Inf(1) }},
			{"NaN multiplier", func(c *Config) { c.Retry.Multiplier = math.NaN() }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				err := config.Validate()
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		env := map[string]string{
			EnvSpotifyID:       "env_id",
			EnvSpotifySecret:   "env_secret",
			EnvSpotifyRedirect: "http://localhost:9999/cb",
			EnvMinRate:         "0.8",
			EnvPauseSec:        "1.5",
		}
		config := DefaultConfig()

		if err := ApplyEnv(config, func(k string) string { return env[k] }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.Credentials.Spotify.ClientID != "env_id" || config.Credentials.Spotify.ClientSecret != "env_secret" {
			t.Errorf("credentials not overridden: %+v", config.Credentials.Spotify)
		}
		if config.Catalog.MinRate != 0.8 {
			t.Errorf("expected min_rate 0.8, got %v", config.Catalog.MinRate)
		}
		if config.Catalog.Pause() != 1500*time.Millisecond {
			t.Errorf("expected pause 1.5s, got %v", config.Catalog.Pause())
		}
		if !config.HasSpotifyCredentials() {
			t.Error("expected credentials to be complete")
		}
	})

	t.Run("ApplyEnv rejects non-numeric tunables", func(t *testing.T) {
		config := DefaultConfig()
		err := ApplyEnv(config, func(k string) string {
			if k == EnvMinRate {
				return "high"
			}
			return ""
		})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("ApplyEnv rejects non-finite tunables", func(t *testing.T) {
		for _, key := range []string{EnvMinRate, EnvPauseSec} {
			for _, value := range []string{"NaN", "Inf", "-Inf"} {
				config := DefaultConfig()
				err := ApplyEnv(config, func(k string) string {
					if k == key {
						return value
					}
					return ""
				})
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("%s=%s: expected ErrInvalidConfig, got %v", key, value, err)
				}
			}
		}
	})

	t.Run("durations never overflow", func(t *testing.T) {
		tc := []struct {
			in   float64
			want time.Duration
		}{
			{0.25, 250 * time.Millisecond},
			{-1, 0},
			{math.NaN(), 0},
			{math.Inf(1), MaxSeconds * time.Second},
			{1e12, MaxSeconds * time.Second},
		}
		for _, tt := range tc {
			if got := (CatalogConfig{PauseSec: tt.in}).Pause(); got != tt.want {
				t.Errorf("Pause(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})

	t.Run("LoadEnvFiles", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		os.WriteFile(envPath, []byte("BEATSYNC_TEST_VALUE=from_file\n"), 0644)
		t.Setenv("BEATSYNC_TEST_VALUE", "")
		os.Unsetenv("BEATSYNC_TEST_VALUE")

		if err := LoadEnvFiles(envPath, filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := os.Getenv("BEATSYNC_TEST_VALUE"); got != "from_file" {
			t.Errorf("expected from_file, got %q", got)
		}
	})
}

func TestSpotifyConfig(t *testing.T) {
	t.Run("CallbackAddr", func(t *testing.T) {
		tc := []struct {
			uri  string
			want string
		}{
			{"http://127.0.0.1:8888/callback", "127.0.0.1:8888"},
			{"http://localhost/callback", "localhost:80"},
		}
		for _, tt := range tc {
			s := SpotifyConfig{RedirectURI: tt.uri}
			got, err := s.CallbackAddr()
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", tt.uri, err)
			}
			if got != tt.want {
				t.Errorf("CallbackAddr(%s) = %s, want %s", tt.uri, got, tt.want)
			}
		}
	})

	t.Run("CallbackAddr without host", func(t *testing.T) {
		s := SpotifyConfig{RedirectURI: "/callback"}
		if _, err := s.CallbackAddr(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("CallbackPath", func(t *testing.T) {
		s := SpotifyConfig{RedirectURI: "http://127.0.0.1:8888/auth/done"}
		if got := s.CallbackPath(); got != "/auth/done" {
			t.Errorf("expected /auth/done, got %s", got)
		}
		if got := (SpotifyConfig{}).CallbackPath(); got != "/callback" {
			t.Errorf("expected /callback fallback, got %s", got)
		}
	})

	t.Run("ResolvedTokenPath", func(t *testing.T) {
		s := SpotifyConfig{TokenPath: "/tmp/token.json"}
		if s.ResolvedTokenPath() != "/tmp/token.json" {
			t.Errorf("explicit token path should win")
		}
		if got := (SpotifyConfig{}).ResolvedTokenPath(); !strings.HasSuffix(got, filepath.Join("beatsync", "spotify_token.json")) {
			t.Errorf("unexpected default token path %s", got)
		}
	})
}
