package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/formdispatch/job"
)

// TimeoutFunc resolves the enqueue deadline for a job name. Zero disables it.
type TimeoutFunc func(jobName string) time.Duration

// Timeout returns middleware that bounds a single enqueue attempt.
// When lookup returns a non-zero duration for the run's job, the handler
// gets a context.WithTimeout; a slow broker then fails the attempt with
// context.DeadlineExceeded and the dispatcher retries it.
func Timeout(lookup TimeoutFunc, logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *job.RunObject, next Handler) error {
		if lookup == nil {
			return next(ctx)
		}
		if d := lookup(run.Name()); d > 0 {
			logger.Debug("enqueue timeout set",
				slog.String("run_id", run.ID),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
