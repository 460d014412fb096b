package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/formdispatch/job"
)

// Logging returns middleware that logs each enqueue attempt and its outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *job.RunObject, next Handler) error {
		attempt := Attempt(ctx)
		logger.Debug("enqueue started",
			slog.String("job_name", run.Name()),
			slog.String("run_id", run.ID),
			slog.Int("attempt", attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("enqueue failed",
				slog.String("job_name", run.Name()),
				slog.String("run_id", run.ID),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job enqueued",
				slog.String("job_name", run.Name()),
				slog.String("run_id", run.ID),
				slog.Int("attempt", attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
