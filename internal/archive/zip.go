// Package archive unpacks downloaded map archives.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrUnsafePath     = errors.New("archive entry escapes destination")
	ErrTooLarge       = errors.New("archive entry exceeds size limit")
)

// DefaultMaxEntryBytes bounds a single decompressed entry.
const DefaultMaxEntryBytes = 128 << 20

// Extractor populates dest from an archive blob.
type Extractor interface {
	Extract(blob []byte, dest string) error
}

// ZipExtractor extracts zip archives.
type ZipExtractor struct {
	MaxEntryBytes int64
}

func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{MaxEntryBytes: DefaultMaxEntryBytes}
}

// Extract writes every regular file and directory of the archive below dest, creating dest.
// Entries with absolute or parent-relative names and symlinks are rejected before anything is written.
func (x *ZipExtractor) Extract(blob []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	for _, f := range zr.File {
		if err := checkEntry(f); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	for _, f := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := x.writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func checkEntry(f *zip.File) error {
	name := strings.TrimSuffix(f.Name, "/")
	if name == "" || strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
	}
	if f.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: symlink %q", ErrUnsafePath, f.Name)
	}
	return nil
}

func (x *ZipExtractor) writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	limit := x.MaxEntryBytes
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}

	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
		}
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if n > limit {
		return fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
	}
	return nil
}
