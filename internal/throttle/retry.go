package throttle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryAfterer is implemented by errors that carry a server-requested delay.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Policy retries a call with exponential backoff.
//
// The wait after attempt n is Multiplier * 2^(n-1) seconds, clamped to [MinBackoff, MaxBackoff].
type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
	// Retryable reports whether err is worth another attempt. Nil retries every error.
	Retryable func(error) bool
	Clock     Clock
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// ExhaustedError wraps the last error once the attempt budget is spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Backoff returns the wait that follows the given 1-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}

	secs := mult * math.Pow(2, float64(attempt-1))
	wait := time.Duration(secs * float64(time.Second))
	if secs*float64(time.Second) > float64(math.MaxInt64) {
		wait = time.Duration(math.MaxInt64)
	}
	return p.clamp(wait)
}

func (p Policy) clamp(d time.Duration) time.Duration {
	if d < p.MinBackoff {
		d = p.MinBackoff
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func (p Policy) waitFor(attempt int, err error) time.Duration {
	wait := p.Backoff(attempt)

	var ra RetryAfterer
	if errors.As(err, &ra) {
		if hint := ra.RetryAfter(); hint > wait {
			wait = p.clamp(hint)
		}
	}
	return wait
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt budget is spent.
//
// fn receives the 1-based attempt number. Nothing is retried once ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	maxAttempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= maxAttempts {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := p.waitFor(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
