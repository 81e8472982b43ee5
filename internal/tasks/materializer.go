package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/archive"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/gosimple/unidecode"
)

// MarkerFile is written into every populated map folder and holds the map id.
const MarkerFile = ".beatsync-map"

var (
	unsafeFolderChars = regexp.MustCompile(`[^A-Za-z0-9\- ]+`)
	folderSpaces      = regexp.MustCompile(`\s+`)
)

// Downloader fetches a map archive.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// DownloadError reports which step of materializing a map failed.
type DownloadError struct {
	MapID string
	Op    string // fetch, extract or mark
	Err   error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("map %s: %s: %v", e.MapID, e.Op, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Materializer turns an accepted catalog entry into an extracted folder below root.
type Materializer struct {
	root       string
	downloader Downloader
	extractor  archive.Extractor
	logger     *log.Logger
}

// NewMaterializer creates a Materializer. A nil extractor defaults to zip extraction.
func NewMaterializer(root string, downloader Downloader, extractor archive.Extractor, logger *log.Logger) *Materializer {
	if extractor == nil {
		extractor = archive.NewZipExtractor()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Materializer{root: root, downloader: downloader, extractor: extractor, logger: logger}
}

func (m *Materializer) Root() string { return m.root }

// FolderName derives "<Artist>-<Title>" for a track.
//
// Accents are transliterated, characters outside letters, digits, hyphen and space are
// dropped, and whitespace runs become a single underscore.
func FolderName(track models.Track) string {
	artist, title := sanitizeSegment(track.Artist), sanitizeSegment(track.Title)
	switch {
	case artist == "" && title == "":
		return "track"
	case artist == "":
		return title
	case title == "":
		return artist
	}
	return artist + "-" + title
}

func sanitizeSegment(s string) string {
	s = unidecode.Unidecode(s)
	s = unsafeFolderChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return folderSpaces.ReplaceAllString(s, "_")
}

// Destination is the folder a track's map is extracted to when nothing else occupies it.
func (m *Materializer) Destination(track models.Track) string {
	return filepath.Join(m.root, FolderName(track))
}

// Existing resolves the folder for track and entry and reports whether it is already populated.
//
// A folder marked for a different map is left alone and "<folder>-<mapID>" is used instead.
func (m *Materializer) Existing(track models.Track, entry models.CatalogEntry) (string, bool) {
	dir := m.Destination(track)
	if !Populated(dir) {
		return dir, false
	}

	owner, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return dir, true
	case err == nil && strings.TrimSpace(string(owner)) == entry.MapID:
		return dir, true
	}

	alt := dir + "-" + entry.MapID
	return alt, Populated(alt)
}

// Populated reports whether dir exists and holds at least one entry.
func Populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Materialize downloads and extracts entry for track, returning the folder.
//
// An already populated folder is returned untouched without any network call. On
// failure no partial folder is left behind.
func (m *Materializer) Materialize(ctx context.Context, track models.Track, entry models.CatalogEntry) (string, error) {
	dir, exists := m.Existing(track, entry)
	if exists {
		m.logger.Debug("map already present", "map", entry.MapID, "folder", dir)
		return dir, nil
	}

	info, statErr := os.Lstat(dir)
	created := errors.Is(statErr, os.ErrNotExist)
	if !created && (statErr != nil || !info.IsDir()) {
		if statErr == nil {
			statErr = fmt.Errorf("%s exists and is not a directory", dir)
		}
		return "", &DownloadError{MapID: entry.MapID, Op: "extract", Err: statErr}
	}

	blob, err := m.downloader.Download(ctx, entry.DownloadURL)
	if err != nil {
		return "", &DownloadError{MapID: entry.MapID, Op: "fetch", Err: err}
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return "", &DownloadError{MapID: entry.MapID, Op: "extract", Err: err}
	}
	if err := m.extractor.Extract(blob, dir); err != nil {
		m.cleanup(dir, created)
		return "", &DownloadError{MapID: entry.MapID, Op: "extract", Err: err}
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), []byte(entry.MapID+"\n"), 0644); err != nil {
		m.cleanup(dir, created)
		return "", &DownloadError{MapID: entry.MapID, Op: "mark", Err: err}
	}

	m.logger.Info("map extracted", "map", entry.MapID, "folder", dir, "bytes", len(blob))
	return dir, nil
}

// cleanup removes what a failed extraction wrote. A folder that existed beforehand
// was empty, so only its contents go.
func (m *Materializer) cleanup(dir string, created bool) {
	if created {
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove partial folder", "folder", dir, "error", err)
		}
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Warn("failed to read partial folder", "folder", dir, "error", err)
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			m.logger.Warn("failed to remove partial entry", "folder", dir, "entry", e.Name(), "error", err)
		}
	}
}
