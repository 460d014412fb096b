package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/formdispatch/job"
)

// Recover turns a panic inside the enqueue chain into an error for that
// attempt. The stack goes to logger.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *job.RunObject, next Handler) (err error) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			logger.Error("enqueue panicked",
				slog.String("run_id", run.ID),
				slog.String("job_name", run.Name()),
				slog.Int("attempt", Attempt(ctx)),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("enqueue %s: panic: %v", run.ID, p)
		}()
		return next(ctx)
	}
}
