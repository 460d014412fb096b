package queue

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/xraph/formdispatch/job"
)

// Config defines per-queue producer limits.
type Config struct {
	// Name is the job name the limits apply to.
	Name string

	// MaxConcurrency caps simultaneous in-flight adds to this queue.
	// Zero means no cap.
	MaxConcurrency int

	// RateLimit is the maximum sustained adds per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// limited wraps a Client with a rate limiter and a concurrency gate.
type limited struct {
	Client
	limiter *rate.Limiter
	slots   chan struct{}
}

// Limit wraps c with the limits in cfg. A config without limits returns c
// unchanged.
func Limit(c Client, cfg Config) Client {
	if cfg.RateLimit <= 0 && cfg.MaxConcurrency <= 0 {
		return c
	}

	l := &limited{Client: c}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxConcurrency > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	return l
}

// AddJob waits for a token and a free slot, then delegates. Waiting
// respects ctx; a cancelled wait is reported as a failed add.
func (l *limited) AddJob(ctx context.Context, run *job.RunObject) error {
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
			defer func() { <-l.slots }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return l.Client.AddJob(ctx, run)
}

// InFlight returns the number of adds currently holding a slot.
func (l *limited) InFlight() int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}
