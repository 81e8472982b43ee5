package tasks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/beatsync/internal/shared"
)

// Ledger accumulates the run's outcomes in processing order. It only ever appends.
type Ledger struct {
	mu         sync.Mutex
	downloaded []string
	notFound   []string
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordSuccess appends a map id to the downloaded list.
func (l *Ledger) RecordSuccess(mapID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downloaded = append(l.downloaded, mapID)
}

// RecordMiss appends "artist - title" to the not-found list.
func (l *Ledger) RecordMiss(artist, title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notFound = append(l.notFound, artist+" - "+title)
}

func (l *Ledger) Downloaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.downloaded...)
}

func (l *Ledger) NotFound() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.notFound...)
}

// Flush overwrites both files with the current lists, one entry per line.
// Each file is replaced atomically, so a crash mid-flush leaves the previous version intact.
func (l *Ledger) Flush(downloadedPath, notFoundPath string) error {
	downloaded, notFound := l.Downloaded(), l.NotFound()

	if err := shared.WriteFileAtomic(downloadedPath, lines(downloaded), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", downloadedPath, err)
	}
	if err := shared.WriteFileAtomic(notFoundPath, lines(notFound), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", notFoundPath, err)
	}
	return nil
}

func lines(entries []string) []byte {
	if len(entries) == 0 {
		return nil
	}
	return []byte(strings.Join(entries, "\n") + "\n")
}
