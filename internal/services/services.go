// package services defines the remote collaborators of a sync run
//
// BeatSaver (catalog), Spotify (library)
package services

import (
	"context"

	"github.com/desertthunder/beatsync/internal/models"
)

// Catalog searches a map repository and fetches map archives.
type Catalog interface {
	// Search returns candidate maps for a track. An error means every query failed.
	Search(ctx context.Context, artist, title string) ([]models.CatalogEntry, error)

	// Download fetches the archive at url.
	Download(ctx context.Context, url string) ([]byte, error)

	// Name returns the name of the catalog (e.g., "BeatSaver")
	Name() string
}

// Library yields the user's liked tracks, authorizing if it has to.
type Library interface {
	ObtainLibrary(ctx context.Context) ([]models.Track, error)
}

var (
	_ Catalog = (*BeatSaverService)(nil)
	_ Library = (*SpotifyLibrary)(nil)
)
