package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatsync/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultCallbackTimeout bounds how long the flow waits for the browser redirect.
const DefaultCallbackTimeout = 2 * time.Minute

// CallbackFlow runs the authorization code flow against a temporary local server.
type CallbackFlow struct {
	Addr    string             // host:port to listen on
	Path    string             // callback path of the redirect URI
	Open    func(string) error // opens the authorization URL, usually in a browser
	Timeout time.Duration
	Logger  *log.Logger
	Out     io.Writer // receives the authorization URL when Open fails; defaults to stdout
}

// Authorize serves the callback, sends the user to the consent page and waits for the token.
//
// The server is shut down before returning. Returns [shared.ErrTimeout] when no callback
// arrives in time and [shared.ErrAuthFailed] when the callback reports an error.
func (f *CallbackFlow) Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	logger := f.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	state := shared.GenerateState()
	handler := NewOAuthHandler(config, state, f.Path)

	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handler(handler)

	listener, err := net.Listen("tcp", f.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", f.Addr, err)
	}

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback server shutdown", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state)
	logger.Info("waiting for authorization", "callback", "http://"+listener.Addr().String()+handler.Routes()[0])
	if f.Open != nil {
		if err := f.Open(authURL); err != nil {
			logger.Warn("could not open browser", "error", err)
			out := f.Out
			if out == nil {
				out = os.Stdout
			}
			fmt.Fprintf(out, "Open this URL to authorize beatsync:\n\n%s\n\n", authURL)
		}
	}

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return nil, err
		}
		return result.Token, nil
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: no authorization callback within %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
