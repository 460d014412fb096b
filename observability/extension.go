package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// meterName is the instrumentation scope of the extension's instruments.
const meterName = "github.com/xraph/formdispatch/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.ResponseStored    = (*MetricsExtension)(nil)
	_ ext.JobSkipped        = (*MetricsExtension)(nil)
	_ ext.JobEnqueued       = (*MetricsExtension)(nil)
	_ ext.DispatchRetrying  = (*MetricsExtension)(nil)
	_ ext.DispatchCompleted = (*MetricsExtension)(nil)
	_ ext.DispatchFailed    = (*MetricsExtension)(nil)
	_ ext.RecoveryCompleted = (*MetricsExtension)(nil)
)

// MetricsExtension records pipeline-wide lifecycle metrics with
// OpenTelemetry instruments. Register it as an extension to track how many
// responses are stored, dispatched, retried, failed, and recovered.
type MetricsExtension struct {
	ResponsesStored     metric.Int64Counter
	JobsEnqueued        metric.Int64Counter
	JobsSkipped         metric.Int64Counter
	DispatchRetries     metric.Int64Counter
	DispatchesCompleted metric.Int64Counter
	DispatchesFailed    metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
	RecoveryRuns        metric.Int64Counter
	RecoveryReprocessed metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.ResponsesStored, _ = meter.Int64Counter("formdispatch.responses.stored",
		metric.WithDescription("Responses persisted"),
		metric.WithUnit("{response}"))
	m.JobsEnqueued, _ = meter.Int64Counter("formdispatch.jobs.enqueued",
		metric.WithDescription("Run objects accepted by a queue"),
		metric.WithUnit("{job}"))
	m.JobsSkipped, _ = meter.Int64Counter("formdispatch.jobs.skipped",
		metric.WithDescription("Form jobs without a registered queue"),
		metric.WithUnit("{job}"))
	m.DispatchRetries, _ = meter.Int64Counter("formdispatch.dispatch.retries",
		metric.WithDescription("Dispatch retry rounds"),
		metric.WithUnit("{round}"))
	m.DispatchesCompleted, _ = meter.Int64Counter("formdispatch.dispatch.completed",
		metric.WithDescription("Responses dispatched and marked processed"),
		metric.WithUnit("{response}"))
	m.DispatchesFailed, _ = meter.Int64Counter("formdispatch.dispatch.failed",
		metric.WithDescription("Dispatches that exhausted their retries"),
		metric.WithUnit("{response}"))
	m.DispatchDuration, _ = meter.Float64Histogram("formdispatch.dispatch.duration",
		metric.WithDescription("Time from first enqueue to processed, in seconds"),
		metric.WithUnit("s"))
	m.RecoveryRuns, _ = meter.Int64Counter("formdispatch.recovery.runs",
		metric.WithDescription("Recovery scans finished"),
		metric.WithUnit("{run}"))
	m.RecoveryReprocessed, _ = meter.Int64Counter("formdispatch.recovery.reprocessed",
		metric.WithDescription("Responses marked processed by recovery"),
		metric.WithUnit("{response}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Response lifecycle hooks ────────────────────────

// OnResponseStored implements ext.ResponseStored.
func (m *MetricsExtension) OnResponseStored(ctx context.Context, _ *response.Response) error {
	m.ResponsesStored.Add(ctx, 1)
	return nil
}

// ── Dispatch lifecycle hooks ────────────────────────

// OnJobSkipped implements ext.JobSkipped.
func (m *MetricsExtension) OnJobSkipped(ctx context.Context, _ *response.Response, jobName string) error {
	m.JobsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("job_name", jobName)))
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, run *job.RunObject, _ int) error {
	m.JobsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("job_name", run.Name())))
	return nil
}

// OnDispatchRetrying implements ext.DispatchRetrying.
func (m *MetricsExtension) OnDispatchRetrying(ctx context.Context, _ *response.Response, _ []string, _ int, _ error) error {
	m.DispatchRetries.Add(ctx, 1)
	return nil
}

// OnDispatchCompleted implements ext.DispatchCompleted.
func (m *MetricsExtension) OnDispatchCompleted(ctx context.Context, _ *response.Response, _ []string, elapsed time.Duration) error {
	m.DispatchesCompleted.Add(ctx, 1)
	m.DispatchDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnDispatchFailed implements ext.DispatchFailed. The stage attribute is
// "mark" when every job was accepted and only marking failed.
func (m *MetricsExtension) OnDispatchFailed(ctx context.Context, _ *response.Response, failed []string, _ int, _ error) error {
	stage := "delivery"
	if len(failed) == 0 {
		stage = "mark"
	}
	m.DispatchesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	return nil
}

// ── Recovery lifecycle hooks ────────────────────────

// OnRecoveryCompleted implements ext.RecoveryCompleted.
func (m *MetricsExtension) OnRecoveryCompleted(ctx context.Context, reprocessed int, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecoveryRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.RecoveryReprocessed.Add(ctx, int64(reprocessed))
	return nil
}
