package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.ResponseStored    = (*Extension)(nil)
	_ ext.JobSkipped        = (*Extension)(nil)
	_ ext.JobEnqueued       = (*Extension)(nil)
	_ ext.DispatchRetrying  = (*Extension)(nil)
	_ ext.DispatchCompleted = (*Extension)(nil)
	_ ext.DispatchFailed    = (*Extension)(nil)
	_ ext.RecoveryCompleted = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder returns a Recorder that writes each event as one log record
// at a level matching its severity.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("category", evt.Category),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		if len(evt.Metadata) > 0 {
			meta := make([]any, 0, len(evt.Metadata))
			for k, v := range evt.Metadata {
				meta = append(meta, slog.Any(k, v))
			}
			attrs = append(attrs, slog.Group("metadata", meta...))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges formdispatch lifecycle events to an audit trail.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil records every action
	logger   *slog.Logger
}

// New returns an Extension recording every action through r unless
// WithActions narrows it.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnResponseStored implements ext.ResponseStored.
func (e *Extension) OnResponseStored(ctx context.Context, r *response.Response) error {
	return e.record(ctx, ActionResponseStored, SeverityInfo, OutcomeSuccess,
		ResourceResponse, r.ID.String(), CategoryResponse, nil,
		"form_id", r.FormID,
		"owner", r.Owner,
		"shard", r.ID.Shard(),
	)
}

// OnJobSkipped implements ext.JobSkipped.
func (e *Extension) OnJobSkipped(ctx context.Context, r *response.Response, jobName string) error {
	return e.record(ctx, ActionJobSkipped, SeverityWarning, OutcomeFailure,
		ResourceResponse, r.ID.String(), CategoryDispatch, nil,
		"form_id", r.FormID,
		"job_name", jobName,
	)
}

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, run *job.RunObject, attempt int) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceRun, run.ID, CategoryDispatch, nil,
		"job_name", run.Name(),
		"response_id", run.ResponseID.String(),
		"attempt", attempt,
	)
}

// OnDispatchRetrying implements ext.DispatchRetrying.
func (e *Extension) OnDispatchRetrying(ctx context.Context, r *response.Response, pending []string, attempt int, lastErr error) error {
	return e.record(ctx, ActionDispatchRetrying, SeverityWarning, OutcomeFailure,
		ResourceResponse, r.ID.String(), CategoryDispatch, lastErr,
		"form_id", r.FormID,
		"pending", strings.Join(pending, ","),
		"attempt", attempt,
	)
}

// OnDispatchCompleted implements ext.DispatchCompleted.
func (e *Extension) OnDispatchCompleted(ctx context.Context, r *response.Response, jobs []string, elapsed time.Duration) error {
	return e.record(ctx, ActionDispatchCompleted, SeverityInfo, OutcomeSuccess,
		ResourceResponse, r.ID.String(), CategoryDispatch, nil,
		"form_id", r.FormID,
		"jobs", strings.Join(jobs, ","),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnDispatchFailed implements ext.DispatchFailed.
func (e *Extension) OnDispatchFailed(ctx context.Context, r *response.Response, failed []string, attempts int, dispatchErr error) error {
	return e.record(ctx, ActionDispatchFailed, SeverityCritical, OutcomeFailure,
		ResourceResponse, r.ID.String(), CategoryDispatch, dispatchErr,
		"form_id", r.FormID,
		"failed", strings.Join(failed, ","),
		"attempts", attempts,
	)
}

// OnRecoveryCompleted implements ext.RecoveryCompleted.
func (e *Extension) OnRecoveryCompleted(ctx context.Context, reprocessed int, recoveryErr error) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if recoveryErr != nil {
		severity, outcome = SeverityCritical, OutcomeFailure
	}
	return e.record(ctx, ActionRecoveryCompleted, severity, outcome,
		ResourceShard, "", CategoryRecovery, recoveryErr,
		"reprocessed", reprocessed,
	)
}

// record drops disabled actions. kvPairs become Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
