// Package ext defines the extension system for formdispatch.
// Extensions are notified of lifecycle events (response stored, job
// skipped, dispatch failed, etc.) and can react to them: metrics, dead
// letter records, audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Response lifecycle hooks
// ──────────────────────────────────────────────────

// ResponseStored is called after a response is persisted and before its
// dispatch is handed off.
type ResponseStored interface {
	OnResponseStored(ctx context.Context, r *response.Response) error
}

// ──────────────────────────────────────────────────
// Dispatch lifecycle hooks
// ──────────────────────────────────────────────────

// JobSkipped is called for each form job that has no registered queue.
type JobSkipped interface {
	OnJobSkipped(ctx context.Context, r *response.Response, jobName string) error
}

// JobEnqueued is called when a queue accepts a run object.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, run *job.RunObject, attempt int) error
}

// DispatchRetrying is called before a retry round with the jobs still
// pending.
type DispatchRetrying interface {
	OnDispatchRetrying(ctx context.Context, r *response.Response, pending []string, attempt int, lastErr error) error
}

// DispatchCompleted is called after every known job was accepted and the
// response was marked processed.
type DispatchCompleted interface {
	OnDispatchCompleted(ctx context.Context, r *response.Response, jobs []string, elapsed time.Duration) error
}

// DispatchFailed is called when delivery or marking exhausted its retries.
// failed lists the jobs that were never accepted; it is empty when only
// marking failed.
type DispatchFailed interface {
	OnDispatchFailed(ctx context.Context, r *response.Response, failed []string, attempts int, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// RecoveryCompleted is called when a recovery pass ends, successfully or
// not, with the number of responses it reprocessed.
type RecoveryCompleted interface {
	OnRecoveryCompleted(ctx context.Context, reprocessed int, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
