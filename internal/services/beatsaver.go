// BeatSaver catalog client
//
// Response shapes follow https://api.beatsaver.com/docs/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/shared"
	"github.com/desertthunder/beatsync/internal/throttle"
)

const (
	defaultBeatSaverURL   = "https://api.beatsaver.com"
	defaultDownloadURL    = "https://beatsaver.com/api/download/key"
	defaultUserAgent      = "beatsync/0.1"
	maxDownloadBytes      = 256 << 20
	maxSearchResponseSize = 8 << 20
)

// StatusError is a non-2xx response from the catalog.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("beatsaver: %s returned status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Transient reports whether the status is worth retrying (429 and 5xx).
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryAfter is the delay requested by a Retry-After header, zero when absent.
func (e *StatusError) RetryAfter() time.Duration { return e.retryAfter }

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case e.Transient():
		return shared.ErrTransient
	default:
		return shared.ErrAPIRequest
	}
}

// IsTransient classifies timeouts, connection failures, 429 and 5xx as retryable.
func IsTransient(err error) bool {
	return errors.Is(err, shared.ErrTransient)
}

type beatSaverMetadata struct {
	SongName        string `json:"songName"`
	SongSubName     string `json:"songSubName"`
	SongAuthorName  string `json:"songAuthorName"`
	LevelAuthorName string `json:"levelAuthorName"`
}

type beatSaverStats struct {
	Score *float64 `json:"score"`
}

type beatSaverVersion struct {
	Hash        string `json:"hash"`
	State       string `json:"state"`
	DownloadURL string `json:"downloadURL"`
}

// BeatSaverMap is one document of a search response.
type BeatSaverMap struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Metadata beatSaverMetadata  `json:"metadata"`
	Stats    beatSaverStats     `json:"stats"`
	Versions []beatSaverVersion `json:"versions"`
}

type beatSaverSearchResponse struct {
	Docs []BeatSaverMap `json:"docs"`
}

// searchStage is one query of the exact, loose, advanced cascade.
type searchStage struct {
	name  string
	path  string
	query string
	extra url.Values
}

// BeatSaverService searches the BeatSaver catalog and fetches map archives.
//
// Every outbound request, retries included, waits on a shared [throttle.Pacer].
type BeatSaverService struct {
	baseURL     string
	downloadURL string
	userAgent   string
	advanced    bool
	httpClient  *http.Client
	clock       throttle.Clock
	pacer       *throttle.Pacer
	policy      throttle.Policy
	logger      *log.Logger
}

// BeatSaverOption configures a [BeatSaverService].
type BeatSaverOption func(*BeatSaverService)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) BeatSaverOption {
	return func(s *BeatSaverService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithClock drives pacing and backoff from clock.
func WithClock(clock throttle.Clock) BeatSaverOption {
	return func(s *BeatSaverService) { s.clock = clock }
}

// WithLogger sets the logger used for per-query diagnostics.
func WithLogger(l *log.Logger) BeatSaverOption {
	return func(s *BeatSaverService) { s.logger = l }
}

// NewBeatSaverService builds a catalog client from the [catalog] and [retry] config sections.
func NewBeatSaverService(catalog shared.CatalogConfig, retry shared.RetryConfig, opts ...BeatSaverOption) *BeatSaverService {
	s := &BeatSaverService{
		baseURL:     strings.TrimRight(catalog.BaseURL, "/"),
		downloadURL: strings.TrimRight(catalog.DownloadBaseURL, "/"),
		userAgent:   catalog.UserAgent,
		advanced:    catalog.AdvancedFallback,
		httpClient:  &http.Client{Timeout: catalog.Timeout()},
		clock:       throttle.SystemClock{},
	}
	if s.baseURL == "" {
		s.baseURL = defaultBeatSaverURL
	}
	if s.downloadURL == "" {
		s.downloadURL = defaultDownloadURL
	}
	if s.userAgent == "" {
		s.userAgent = defaultUserAgent
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.pacer = throttle.NewPacer(catalog.Pause(), catalog.Jitter(), s.clock)

	s.policy = throttle.Policy{
		MaxAttempts: retry.MaxAttempts,
		MinBackoff:  retry.MinBackoff(),
		MaxBackoff:  retry.MaxBackoff(),
		Multiplier:  retry.Multiplier,
		Retryable:   IsTransient,
		Clock:       s.clock,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			s.logger.Warn("retrying catalog request", "attempt", attempt, "wait", wait, "error", err)
		},
	}
	return s
}

// Name returns the catalog name.
func (s *BeatSaverService) Name() string { return "BeatSaver" }

// KeyURL is the download URL derived from a map id alone.
func (s *BeatSaverService) KeyURL(mapID string) string {
	return s.downloadURL + "/" + url.PathEscape(mapID)
}

func (s *BeatSaverService) stages(artist, title string) []searchStage {
	loose := strings.TrimSpace(strings.TrimSpace(artist) + " " + strings.TrimSpace(title))
	stages := []searchStage{
		{name: "exact", path: "/search/text/0", query: `"` + strings.TrimSpace(title) + `"`},
		{name: "loose", path: "/search/text/0", query: loose},
	}
	if s.advanced {
		stages = append(stages, searchStage{
			name:  "advanced",
			path:  "/search/advanced",
			query: loose,
			extra: url.Values{"page": {"0"}},
		})
	}
	return stages
}

// Search runs the exact-title, loose, and (optionally) advanced queries in order,
// returning the first non-empty result.
//
// The returned error is non-nil only when every stage failed; an empty slice with a nil
// error means the catalog had nothing.
func (s *BeatSaverService) Search(ctx context.Context, artist, title string) ([]models.CatalogEntry, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", shared.ErrInvalidInput)
	}

	var errs []error
	stages := s.stages(artist, title)
	for _, stage := range stages {
		docs, err := s.query(ctx, stage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("catalog query failed", "stage", stage.name, "query", stage.query, "error", err)
			errs = append(errs, fmt.Errorf("%s query: %w", stage.name, err))
			continue
		}

		entries := s.entries(docs)
		s.logger.Debug("catalog query", "stage", stage.name, "query", stage.query, "docs", len(docs), "entries", len(entries))
		if len(entries) > 0 {
			return entries, nil
		}
	}

	if len(errs) == len(stages) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// query executes one stage under the retry policy. A 404 is an empty result.
func (s *BeatSaverService) query(ctx context.Context, stage searchStage) ([]BeatSaverMap, error) {
	params := url.Values{"sortOrder": {"Relevance"}, "q": {stage.query}}
	for k, v := range stage.extra {
		params[k] = v
	}
	endpoint := s.baseURL + stage.path + "?" + params.Encode()

	var docs []BeatSaverMap
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		body, err := s.get(ctx, endpoint, "application/json", maxSearchResponseSize)
		if errors.Is(err, shared.ErrNotFound) {
			docs = nil
			return nil
		}
		if err != nil {
			return err
		}

		var resp beatSaverSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: failed to decode search response: %v", shared.ErrAPIRequest, err)
		}
		docs = resp.Docs
		return nil
	})
	return docs, err
}

// Download fetches a map archive, paced and retried like searches.
func (s *BeatSaverService) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: download url is required", shared.ErrInvalidInput)
	}

	var blob []byte
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		body, err := s.get(ctx, rawURL, "application/zip", maxDownloadBytes)
		if err != nil {
			return err
		}
		blob = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// get performs a single paced GET and reads at most limit bytes of the body.
func (s *BeatSaverService) get(ctx context.Context, endpoint, accept string, limit int64) ([]byte, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), s.clock.Now())
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        endpoint,
			Body:       strings.TrimSpace(string(snippet)),
			retryAfter: retryAfter,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrTransient, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", shared.ErrAPIRequest, endpoint, limit)
	}
	return body, nil
}

func (s *BeatSaverService) entries(docs []BeatSaverMap) []models.CatalogEntry {
	entries := make([]models.CatalogEntry, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		entries = append(entries, s.toEntry(d))
	}
	return entries
}

// toEntry maps a document, falling back to the key URL when no version carries one.
func (s *BeatSaverService) toEntry(d BeatSaverMap) models.CatalogEntry {
	e := models.CatalogEntry{
		MapID:          d.ID,
		Name:           d.Name,
		Title:          d.Metadata.SongName,
		SubTitle:       d.Metadata.SongSubName,
		UploaderArtist: d.Metadata.SongAuthorName,
		LevelAuthor:    d.Metadata.LevelAuthorName,
	}
	if e.Title == "" {
		e.Title = d.Name
	}
	if d.Stats.Score != nil {
		e.Rating = *d.Stats.Score
		e.Rated = true
	}
	for _, v := range d.Versions {
		if v.DownloadURL != "" {
			e.DownloadURL = v.DownloadURL
			break
		}
	}
	if e.DownloadURL == "" {
		e.DownloadURL = s.KeyURL(d.ID)
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
