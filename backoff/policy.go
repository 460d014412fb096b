package backoff

import (
	"context"
	"time"
)

// Policy bounds a retry loop: at most Attempts tries with Strategy
// deciding the wait in between.
type Policy struct {
	Attempts int
	Strategy Strategy
}

// DefaultPolicy is five attempts on DefaultStrategy.
func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Strategy: DefaultStrategy()}
}

// Wait blocks before the given attempt (1-indexed). The first attempt never
// waits; attempt n waits Strategy.Delay(n-1). It returns ctx.Err() if the
// context ends first.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	if attempt <= 1 || p.Strategy == nil {
		return ctx.Err()
	}
	return Sleep(ctx, p.Strategy.Delay(attempt-1))
}

// Retry calls fn until it returns nil or the attempt budget is spent, and
// returns the number of attempts made with the last error.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if waitErr := p.Wait(ctx, attempt); waitErr != nil {
			return attempt - 1, waitErr
		}
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
	}
	return attempts, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
