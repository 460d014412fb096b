package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// Each entry keeps the extension name next to the hook for error logs.
type responseStoredEntry struct {
	name string
	hook ResponseStored
}

type jobSkippedEntry struct {
	name string
	hook JobSkipped
}

type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type dispatchRetryingEntry struct {
	name string
	hook DispatchRetrying
}

type dispatchCompletedEntry struct {
	name string
	hook DispatchCompleted
}

type dispatchFailedEntry struct {
	name string
	hook DispatchFailed
}

type recoveryCompletedEntry struct {
	name string
	hook RecoveryCompleted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry fans lifecycle events out to extensions. Hooks are sorted into
// per-event slices once, in Register.
//
// Register all extensions before the engine starts; emits are not
// synchronized with registration.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	responseStored    []responseStoredEntry
	jobSkipped        []jobSkippedEntry
	jobEnqueued       []jobEnqueuedEntry
	dispatchRetrying  []dispatchRetryingEntry
	dispatchCompleted []dispatchCompletedEntry
	dispatchFailed    []dispatchFailedEntry
	recoveryCompleted []recoveryCompletedEntry
	shutdown          []shutdownEntry
}

// NewRegistry logs hook failures to logger, or slog.Default when nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register files e under every hook interface it implements. Emits reach
// extensions in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ResponseStored); ok {
		r.responseStored = append(r.responseStored, responseStoredEntry{name, h})
	}
	if h, ok := e.(JobSkipped); ok {
		r.jobSkipped = append(r.jobSkipped, jobSkippedEntry{name, h})
	}
	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(DispatchRetrying); ok {
		r.dispatchRetrying = append(r.dispatchRetrying, dispatchRetryingEntry{name, h})
	}
	if h, ok := e.(DispatchCompleted); ok {
		r.dispatchCompleted = append(r.dispatchCompleted, dispatchCompletedEntry{name, h})
	}
	if h, ok := e.(DispatchFailed); ok {
		r.dispatchFailed = append(r.dispatchFailed, dispatchFailedEntry{name, h})
	}
	if h, ok := e.(RecoveryCompleted); ok {
		r.recoveryCompleted = append(r.recoveryCompleted, recoveryCompletedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

func (r *Registry) Extensions() []Extension { return r.extensions }

func (r *Registry) EmitResponseStored(ctx context.Context, resp *response.Response) {
	for _, e := range r.responseStored {
		if err := e.hook.OnResponseStored(ctx, resp); err != nil {
			r.logHookError("OnResponseStored", e.name, err)
		}
	}
}

func (r *Registry) EmitJobSkipped(ctx context.Context, resp *response.Response, jobName string) {
	for _, e := range r.jobSkipped {
		if err := e.hook.OnJobSkipped(ctx, resp, jobName); err != nil {
			r.logHookError("OnJobSkipped", e.name, err)
		}
	}
}

func (r *Registry) EmitJobEnqueued(ctx context.Context, run *job.RunObject, attempt int) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, run, attempt); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

func (r *Registry) EmitDispatchRetrying(ctx context.Context, resp *response.Response, pending []string, attempt int, lastErr error) {
	for _, e := range r.dispatchRetrying {
		if err := e.hook.OnDispatchRetrying(ctx, resp, pending, attempt, lastErr); err != nil {
			r.logHookError("OnDispatchRetrying", e.name, err)
		}
	}
}

func (r *Registry) EmitDispatchCompleted(ctx context.Context, resp *response.Response, jobs []string, elapsed time.Duration) {
	for _, e := range r.dispatchCompleted {
		if err := e.hook.OnDispatchCompleted(ctx, resp, jobs, elapsed); err != nil {
			r.logHookError("OnDispatchCompleted", e.name, err)
		}
	}
}

func (r *Registry) EmitDispatchFailed(ctx context.Context, resp *response.Response, failed []string, attempts int, dispatchErr error) {
	for _, e := range r.dispatchFailed {
		if err := e.hook.OnDispatchFailed(ctx, resp, failed, attempts, dispatchErr); err != nil {
			r.logHookError("OnDispatchFailed", e.name, err)
		}
	}
}

func (r *Registry) EmitRecoveryCompleted(ctx context.Context, reprocessed int, recoveryErr error) {
	for _, e := range r.recoveryCompleted {
		if err := e.hook.OnRecoveryCompleted(ctx, reprocessed, recoveryErr); err != nil {
			r.logHookError("OnRecoveryCompleted", e.name, err)
		}
	}
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// Hook errors are logged and dropped.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
