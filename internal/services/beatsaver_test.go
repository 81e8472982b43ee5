package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/beatsync/internal/shared"
	tu "github.com/desertthunder/beatsync/internal/testing"
	"github.com/desertthunder/beatsync/internal/throttle"
)

const oneMoreTimeDocs = `{"docs":[
  {"id":"1a2b","name":"Daft Punk - One More Time","metadata":{"songName":"One More Time","songSubName":"","songAuthorName":"Daft Punk","levelAuthorName":"mapper"},"stats":{"score":0.91},"versions":[{"hash":"abc","state":"Published","downloadURL":"https://cdn.beatsaver.com/abc.zip"}]},
  {"id":"3c4d","name":"One More Time (Remix)","metadata":{"songName":"One More Time","songAuthorName":"Daft Punk"},"stats":{},"versions":[]}
]}`

type recordedRequest struct {
	Path      string
	Query     string
	Page      string
	UserAgent string
}

// catalogServer serves canned responses keyed by call order and records every request.
type catalogServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(n int, r *http.Request) (int, http.Header, string)
}

func (c *catalogServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.requests = append(c.requests, recordedRequest{
		Path:      r.URL.Path,
		Query:     r.URL.Query().Get("q"),
		Page:      r.URL.Query().Get("page"),
		UserAgent: r.Header.Get("User-Agent"),
	})
	n := len(c.requests)
	c.mu.Unlock()

	status, header, body := c.respond(n, r)
	for k, v := range header {
		w.Header()[k] = v
	}
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (c *catalogServer) Requests() []recordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedRequest(nil), c.requests...)
}

func newTestService(t *testing.T, respond func(n int, r *http.Request) (int, http.Header, string), mutate func(*shared.Config)) (*BeatSaverService, *catalogServer, *tu.FakeClock) {
	t.Helper()

	handler := &catalogServer{respond: respond}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := shared.DefaultConfig()
	config.Catalog.BaseURL = srv.URL
	config.Catalog.DownloadBaseURL = srv.URL + "/download/key"
	config.Catalog.JitterSec = 0
	if mutate != nil {
		mutate(config)
	}

	clock := tu.NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := NewBeatSaverService(config.Catalog, config.Retry, WithClock(clock), WithHTTPClient(srv.Client()))
	return svc, handler, clock
}

func ok(body string) func(int, *http.Request) (int, http.Header, string) {
	return func(int, *http.Request) (int, http.Header, string) { return http.StatusOK, nil, body }
}

func TestBeatSaverSearch(t *testing.T) {
	t.Run("exact title stage answers first", func(t *testing.T) {
		svc, srv, _ := newTestService(t, ok(oneMoreTimeDocs), nil)

		entries, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		reqs := srv.Requests()
		if len(reqs) != 1 {
			t.Fatalf("expected 1 request, got %d", len(reqs))
		}
		if reqs[0].Path != "/search/text/0" {
			t.Errorf("unexpected path %s", reqs[0].Path)
		}
		if reqs[0].Query != `"One More Time"` {
			t.Errorf("expected quoted title query, got %s", reqs[0].Query)
		}
		if reqs[0].UserAgent != "beatsync/0.1" {
			t.Errorf("expected user agent, got %q", reqs[0].UserAgent)
		}

		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		first := entries[0]
		if first.MapID != "1a2b" || first.Title != "One More Time" || first.UploaderArtist != "Daft Punk" {
			t.Errorf("unexpected mapping %+v", first)
		}
		if !first.Rated || first.Rating != 0.91 {
			t.Errorf("expected rating 0.91, got %v (rated=%v)", first.Rating, first.Rated)
		}
		if first.DownloadURL != "https://cdn.beatsaver.com/abc.zip" {
			t.Errorf("unexpected download url %s", first.DownloadURL)
		}

		second := entries[1]
		if second.Rated {
			t.Error("missing score should leave the entry unrated")
		}
		if second.DownloadURL != svc.KeyURL("3c4d") {
			t.Errorf("expected key url fallback, got %s", second.DownloadURL)
		}
	})

	t.Run("falls back to loose query when exact is empty", func(t *testing.T) {
		tests := []struct {
			name  string
			exact string
		}{
			{"no documents", `{"docs":[]}`},
			{"only documents without ids", `{"docs":[{"id":"","name":"One More Time","metadata":{"songName":"One More Time"},"stats":{"score":0.99}}]}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, srv, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
					if n == 1 {
						return http.StatusOK, nil, tt.exact
					}
					return http.StatusOK, nil, oneMoreTimeDocs
				}, nil)

				entries, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(entries) != 2 {
					t.Errorf("expected loose results, got %d", len(entries))
				}

				reqs := srv.Requests()
				if len(reqs) != 2 || reqs[1].Query != "Daft Punk One More Time" {
					t.Errorf("unexpected requests %+v", reqs)
				}
			})
		}
	})

	t.Run("404 is an empty result", func(t *testing.T) {
		svc, srv, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			return http.StatusNotFound, nil, ""
		}, nil)

		entries, err := svc.Search(context.Background(), "Nobody", "Nothing")
		if err != nil {
			t.Fatalf("404 should not be an error: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
		if got := len(srv.Requests()); got != 2 {
			t.Errorf("expected one request per stage, got %d", got)
		}
	})

	t.Run("advanced fallback only when enabled", func(t *testing.T) {
		empty := ok(`{"docs":[]}`)

		svc, srv, _ := newTestService(t, empty, nil)
		svc.Search(context.Background(), "A", "B")
		if got := len(srv.Requests()); got != 2 {
			t.Errorf("expected 2 stages without advanced fallback, got %d", got)
		}

		svc, srv, _ = newTestService(t, empty, func(c *shared.Config) { c.Catalog.AdvancedFallback = true })
		svc.Search(context.Background(), "A", "B")
		reqs := srv.Requests()
		if len(reqs) != 3 {
			t.Fatalf("expected 3 stages, got %d", len(reqs))
		}
		if reqs[2].Path != "/search/advanced" || reqs[2].Page != "0" {
			t.Errorf("unexpected advanced request %+v", reqs[2])
		}
	})

	t.Run("retries transient failures with backoff", func(t *testing.T) {
		svc, srv, clock := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			if n < 3 {
				return http.StatusServiceUnavailable, nil, "busy"
			}
			return http.StatusOK, nil, oneMoreTimeDocs
		}, nil)

		entries, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected entries after retry, got %d", len(entries))
		}
		if got := len(srv.Requests()); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}

		backoffs := 0
		for _, d := range clock.Sleeps() {
			if d == 2*time.Second {
				backoffs++
			}
		}
		if backoffs != 2 {
			t.Errorf("expected two 2s backoffs, got sleeps %v", clock.Sleeps())
		}
	})

	t.Run("honors Retry-After on 429", func(t *testing.T) {
		svc, _, clock := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			if n == 1 {
				return http.StatusTooManyRequests, http.Header{"Retry-After": {"7"}}, ""
			}
			return http.StatusOK, nil, oneMoreTimeDocs
		}, nil)

		if _, err := svc.Search(context.Background(), "Daft Punk", "One More Time"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Contains(clock.Sleeps(), 7*time.Second) {
			t.Errorf("expected a 7s wait, got %v", clock.Sleeps())
		}
	})

	t.Run("permanent 4xx is not retried", func(t *testing.T) {
		svc, srv, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			return http.StatusBadRequest, nil, "bad query"
		}, nil)

		entries, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest when every stage fails, got %v", err)
		}
		if got := len(srv.Requests()); got != 2 {
			t.Errorf("expected one attempt per stage, got %d", got)
		}
	})

	t.Run("one failed stage does not fail the search", func(t *testing.T) {
		svc, _, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			if n == 1 {
				return http.StatusBadRequest, nil, ""
			}
			return http.StatusOK, nil, `{"docs":[]}`
		}, nil)

		entries, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
		if err != nil || len(entries) != 0 {
			t.Errorf("expected empty result without error, got %v, %v", entries, err)
		}
	})

	t.Run("exhausted retries surface as an error", func(t *testing.T) {
		svc, srv, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			return http.StatusInternalServerError, nil, ""
		}, func(c *shared.Config) { c.Retry.MaxAttempts = 2 })

		_, err := svc.Search(context.Background(), "Daft Punk", "One More Time")
		var exhausted *throttle.ExhaustedError
		if !errors.As(err, &exhausted) {
			t.Fatalf("expected ExhaustedError, got %v", err)
		}
		if !IsTransient(err) {
			t.Errorf("expected transient classification, got %v", err)
		}
		if got := len(srv.Requests()); got != 4 {
			t.Errorf("expected 2 attempts per stage, got %d", got)
		}
	})

	t.Run("consecutive searches are paced", func(t *testing.T) {
		svc, _, clock := newTestService(t, ok(oneMoreTimeDocs), nil)
		start := clock.Now()

		const n = 5
		for range n {
			if _, err := svc.Search(context.Background(), "Daft Punk", "One More Time"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		minimum := time.Duration(n-1) * 250 * time.Millisecond
		if elapsed := clock.Now().Sub(start); elapsed < minimum {
			t.Errorf("expected at least %v between %d calls, got %v", minimum, n, elapsed)
		}
	})

	t.Run("requires a title", func(t *testing.T) {
		svc, srv, _ := newTestService(t, ok(oneMoreTimeDocs), nil)
		if _, err := svc.Search(context.Background(), "Daft Punk", "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if len(srv.Requests()) != 0 {
			t.Error("no request should be issued")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, _, _ := newTestService(t, ok(oneMoreTimeDocs), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := svc.Search(ctx, "Daft Punk", "One More Time"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestBeatSaverDownload(t *testing.T) {
	t.Run("returns the archive bytes", func(t *testing.T) {
		svc, srv, _ := newTestService(t, ok("PK-archive"), nil)

		blob, err := svc.Download(context.Background(), svc.KeyURL("1a2b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(blob) != "PK-archive" {
			t.Errorf("unexpected body %q", blob)
		}
		if reqs := srv.Requests(); reqs[0].Path != "/download/key/1a2b" {
			t.Errorf("unexpected path %s", reqs[0].Path)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		svc, srv, _ := newTestService(t, func(n int, r *http.Request) (int, http.Header, string) {
			if n == 1 {
				return http.StatusBadGateway, nil, ""
			}
			return http.StatusOK, nil, "PK"
		}, nil)

		if _, err := svc.Download(context.Background(), svc.KeyURL("x")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(srv.Requests()); got != 2 {
			t.Errorf("expected 2 attempts, got %d", got)
		}
	})

	t.Run("missing map is not retried", func(t *testing.T) {
		svc, srv, _ := newTestService(t, func(int, *http.Request) (int, http.Header, string) {
			return http.StatusNotFound, nil, ""
		}, nil)

		_, err := svc.Download(context.Background(), svc.KeyURL("gone"))
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected StatusError 404, got %v", err)
		}
		if got := len(srv.Requests()); got != 1 {
			t.Errorf("expected 1 attempt, got %d", got)
		}
	})

	t.Run("downloads share the search pacer", func(t *testing.T) {
		svc, _, clock := newTestService(t, ok("PK"), nil)
		start := clock.Now()

		svc.Download(context.Background(), svc.KeyURL("a"))
		svc.Download(context.Background(), svc.KeyURL("b"))

		if elapsed := clock.Now().Sub(start); elapsed < 250*time.Millisecond {
			t.Errorf("expected pacing between downloads, got %v", elapsed)
		}
	})

	t.Run("empty url", func(t *testing.T) {
		svc, _, _ := newTestService(t, ok(""), nil)
		if _, err := svc.Download(context.Background(), ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("connection failures are retried as transient", func(t *testing.T) {
		calls := 0
		transport := tu.RoundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("connection reset by peer")
		})
		svc := newTransportService(transport)

		_, err := svc.Download(context.Background(), "http://beatsaver.invalid/api/download/key/1a2b")
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("unreadable body is transient", func(t *testing.T) {
		transport := tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       &tu.FCloser{},
		}, nil)
		svc := newTransportService(transport)

		_, err := svc.Download(context.Background(), "http://beatsaver.invalid/api/download/key/1a2b")
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
	})
}

func newTransportService(transport http.RoundTripper) *BeatSaverService {
	config := shared.DefaultConfig()
	config.Catalog.JitterSec = 0
	clock := tu.NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewBeatSaverService(config.Catalog, config.Retry,
		WithClock(clock), WithHTTPClient(&http.Client{Transport: transport}))
}

func TestStatusError(t *testing.T) {
	tc := []struct {
		status    int
		transient bool
		sentinel  error
	}{
		{http.StatusTooManyRequests, true, shared.ErrTransient},
		{http.StatusInternalServerError, true, shared.ErrTransient},
		{http.StatusServiceUnavailable, true, shared.ErrTransient},
		{http.StatusNotFound, false, shared.ErrNotFound},
		{http.StatusBadRequest, false, shared.ErrAPIRequest},
		{http.StatusForbidden, false, shared.ErrAPIRequest},
	}

	for _, tt := range tc {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &StatusError{StatusCode: tt.status, URL: "https://example.test"}
			if err.Transient() != tt.transient {
				t.Errorf("Transient() = %v, want %v", err.Transient(), tt.transient)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected %v to wrap %v", err, tt.sentinel)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient mismatch for %d", tt.status)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{"seconds", "5", 5 * time.Second, true},
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second, true},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0, false},
		{"negative", "-1", 0, false},
		{"garbage", "soon", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if got != tt.want || ok != tt.ok {
				t.Errorf("parseRetryAfter(%q) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}
