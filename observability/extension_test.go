package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/observability"
	"github.com/xraph/formdispatch/response"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestResponse() *response.Response {
	return &response.Response{ID: id.Pack(1, 1), FormID: "f1"}
}

// sumOf returns the total of an Int64 sum across all data points, and
// whether the instrument reported at all.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) (int64, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	r := newTestResponse()
	run := &job.RunObject{ID: job.RunID(r.ID, "email"), Job: job.Spec{Name: "email"}}

	tests := []struct {
		name   string
		metric string
		fire   func(e *observability.MetricsExtension) error
		want   int64
	}{
		{
			name:   "stored",
			metric: "formdispatch.responses.stored",
			fire:   func(e *observability.MetricsExtension) error { return e.OnResponseStored(ctx, r) },
			want:   1,
		},
		{
			name:   "skipped",
			metric: "formdispatch.jobs.skipped",
			fire:   func(e *observability.MetricsExtension) error { return e.OnJobSkipped(ctx, r, "ghost") },
			want:   1,
		},
		{
			name:   "enqueued",
			metric: "formdispatch.jobs.enqueued",
			fire:   func(e *observability.MetricsExtension) error { return e.OnJobEnqueued(ctx, run, 1) },
			want:   1,
		},
		{
			name:   "retrying",
			metric: "formdispatch.dispatch.retries",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnDispatchRetrying(ctx, r, []string{"email"}, 2, errors.New("x"))
			},
			want: 1,
		},
		{
			name:   "completed",
			metric: "formdispatch.dispatch.completed",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnDispatchCompleted(ctx, r, []string{"email"}, 10*time.Millisecond)
			},
			want: 1,
		},
		{
			name:   "failed",
			metric: "formdispatch.dispatch.failed",
			fire: func(e *observability.MetricsExtension) error {
				return e.OnDispatchFailed(ctx, r, []string{"email"}, 5, errors.New("x"))
			},
			want: 1,
		},
		{
			name:   "recovery reprocessed",
			metric: "formdispatch.recovery.reprocessed",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRecoveryCompleted(ctx, 7, nil) },
			want:   7,
		},
		{
			name:   "recovery runs",
			metric: "formdispatch.recovery.runs",
			fire:   func(e *observability.MetricsExtension) error { return e.OnRecoveryCompleted(ctx, 0, errors.New("x")) },
			want:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := sumOf(t, reader, tt.metric)
			if !ok {
				t.Fatalf("%s not reported", tt.metric)
			}
			if got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	r := newTestResponse()
	reg.EmitResponseStored(ctx, r)
	reg.EmitResponseStored(ctx, r)
	reg.EmitDispatchFailed(ctx, r, nil, 5, errors.New("mark"))

	if got, _ := sumOf(t, reader, "formdispatch.responses.stored"); got != 2 {
		t.Errorf("stored = %d, want 2", got)
	}
	if got, _ := sumOf(t, reader, "formdispatch.dispatch.failed"); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}
