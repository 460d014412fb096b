package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// PurgerOption configures a Purger.
type PurgerOption func(*Purger)

// WithPurgerLogger sets the purger's logger.
func WithPurgerLogger(l *slog.Logger) PurgerOption {
	return func(p *Purger) { p.logger = l }
}

// WithPurgerClock replaces time.Now.
func WithPurgerClock(now func() time.Time) PurgerOption {
	return func(p *Purger) { p.now = now }
}

// Purger deletes entries older than a retention period on a cron schedule.
type Purger struct {
	store     Store
	schedule  cronlib.Schedule
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPurger creates a Purger that runs on the cron expression expr and
// drops entries whose FailedAt is older than retention.
func NewPurger(store Store, expr string, retention time.Duration, opts ...PurgerOption) (*Purger, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("dlq: purge schedule %q: %w", expr, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("dlq: purge retention must be positive")
	}

	p := &Purger{
		store:     store,
		schedule:  sched,
		retention: retention,
		logger:    slog.Default(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PurgeOnce drops every entry older than the retention period.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.store.PurgeDLQ(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("dlq entries purged",
			slog.Int64("purged", n),
			slog.Time("before", cutoff),
		)
	}
	return n, nil
}

// Next returns the first run time after t.
func (p *Purger) Next(t time.Time) time.Time { return p.schedule.Next(t) }

// Start launches the schedule loop.
func (p *Purger) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.loop(context.WithoutCancel(ctx))
	p.logger.Info("dlq purger started", slog.Duration("retention", p.retention))
	return nil
}

// Stop ends the schedule loop and waits for a running purge to finish.
func (p *Purger) Stop(_ context.Context) error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}

func (p *Purger) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		now := p.now()
		timer := time.NewTimer(p.schedule.Next(now).Sub(now))
		select {
		case <-p.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if _, err := p.PurgeOnce(ctx); err != nil {
				p.logger.Error("dlq purge failed", slog.String("error", err.Error()))
			}
		}
	}
}
