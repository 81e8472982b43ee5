package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
)

// LibrarySource fetches the full library from the streaming account.
type LibrarySource interface {
	ObtainLibrary(ctx context.Context) ([]models.Track, error)
}

// SnapshotCache stores the library snapshot as a JSON array of {artist, title, source_id}.
//
// The cache is all-or-nothing: there is no merge or partial refresh.
type SnapshotCache struct {
	path   string
	source LibrarySource
	logger *log.Logger
}

// NewSnapshotCache creates a cache at path. source may be nil when only Load/Save/Clear are needed.
func NewSnapshotCache(path string, source LibrarySource, logger *log.Logger) *SnapshotCache {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SnapshotCache{path: path, source: source, logger: logger}
}

func (c *SnapshotCache) Path() string { return c.path }

// Read parses the cache file, returning [os.ErrNotExist] when absent and [shared.ErrCacheCorrupt] when malformed.
func (c *SnapshotCache) Read() (models.LibrarySnapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	var snapshot models.LibrarySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCacheCorrupt, c.path, err)
	}
	if snapshot == nil {
		return nil, fmt.Errorf("%w: %s is not a track list", shared.ErrCacheCorrupt, c.path)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCacheCorrupt, c.path, err)
	}
	return snapshot, nil
}

// Load returns the cached snapshot. A missing or malformed file reports false.
func (c *SnapshotCache) Load() (models.LibrarySnapshot, bool) {
	snapshot, err := c.Read()
	switch {
	case err == nil:
		return snapshot, true
	case errors.Is(err, os.ErrNotExist):
		c.logger.Debug("no library snapshot", "path", c.path)
	default:
		c.logger.Warn("ignoring unreadable library snapshot", "path", c.path, "error", err)
	}
	return nil, false
}

// Save writes snapshot atomically, replacing any previous file.
func (c *SnapshotCache) Save(snapshot models.LibrarySnapshot) error {
	if snapshot == nil {
		snapshot = models.LibrarySnapshot{}
	}
	data, err := shared.MarshalJSON(snapshot, true)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := shared.WriteFileAtomic(c.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// FetchRemote asks the library source for the current track list.
func (c *SnapshotCache) FetchRemote(ctx context.Context) (models.LibrarySnapshot, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no library source configured", shared.ErrMissingCredentials)
	}

	tracks, err := c.source.ObtainLibrary(ctx)
	if err != nil {
		return nil, err
	}
	return models.LibrarySnapshot(tracks), nil
}

// Refresh fetches the remote library and saves it, ignoring any cached copy.
func (c *SnapshotCache) Refresh(ctx context.Context) (models.LibrarySnapshot, error) {
	snapshot, err := c.FetchRemote(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Save(snapshot); err != nil {
		return nil, err
	}
	c.logger.Info("library snapshot saved", "path", c.path, "tracks", len(snapshot))
	return snapshot, nil
}

// Obtain returns the cached snapshot, or fetches and saves it on a miss.
func (c *SnapshotCache) Obtain(ctx context.Context) (models.LibrarySnapshot, error) {
	if snapshot, ok := c.Load(); ok {
		c.logger.Info("using cached library snapshot", "path", c.path, "tracks", len(snapshot))
		return snapshot, nil
	}
	return c.Refresh(ctx)
}

// Clear deletes the cache file. A missing file is not an error.
func (c *SnapshotCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
