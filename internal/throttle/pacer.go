package throttle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound calls at least interval apart.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	jitter  time.Duration
	clock   Clock
	rand    func() float64
}

// NewPacer builds a Pacer. A zero interval disables pacing; a nil clock uses [SystemClock].
func NewPacer(interval, jitter time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		jitter:  jitter,
		clock:   clock,
		rand:    rand.Float64,
	}
}

// WithRand replaces the jitter source, which must return values in [0, 1).
func (p *Pacer) WithRand(fn func() float64) *Pacer {
	p.rand = fn
	return p
}

// Wait blocks until the next call may be issued.
//
// The first call is released immediately (plus jitter).
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if p.jitter > 0 && p.rand != nil {
		extra := time.Duration(p.rand() * float64(p.jitter))
		if err := p.clock.Sleep(ctx, extra); err != nil {
			return err
		}
	}

	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("pacer: reservation exceeds burst")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := p.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(p.clock.Now())
		return err
	}
	return nil
}
