// Package backoff provides the wait strategies used between delivery
// attempts, both for the in-process dispatch retry loop and for the retry
// options handed to job queues.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"fmt"
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Strategy names understood by FromName and by queue brokers.
const (
	NameImmediate   = "immediate"
	NameFixed       = "fixed"
	NameExponential = "exponential"
)

// ──────────────────────────────────────────────────
// Immediate
// ──────────────────────────────────────────────────

// Immediate retries without waiting.
type Immediate struct{}

// Delay always returns zero.
func (Immediate) Delay(_ int) time.Duration { return 0 }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy. A zero maxDelay
// means uncapped.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────────

// FromName returns the strategy registered under name, using delay as its
// base interval.
func FromName(name string, delay time.Duration) (Strategy, error) {
	switch name {
	case NameImmediate:
		return Immediate{}, nil
	case NameFixed, "":
		return NewConstant(delay), nil
	case NameExponential:
		return NewExponential(delay, 0), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", name)
	}
}

// DefaultStrategy returns the dispatch retry wait: exponential from one
// second, uncapped. Over five attempts that is 1s, 2s, 4s, then 8s.
func DefaultStrategy() Strategy {
	return NewExponential(1*time.Second, 0)
}
