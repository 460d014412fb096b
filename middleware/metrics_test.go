package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	mw "github.com/xraph/formdispatch/middleware"
)

func runFor(seq uint64, jobName string) *job.RunObject {
	rid := id.Pack(7, seq)
	return &job.RunObject{
		ID:         job.RunID(rid, jobName),
		Job:        job.Spec{Name: jobName},
		ResponseID: rid,
	}
}

// series keys a data point by its job_name and status attributes.
type series struct{ job, status string }

func seriesOf(set attribute.Set) series {
	var s series
	if v, ok := set.Value("job_name"); ok {
		s.job = v.AsString()
	}
	if v, ok := set.Value("status"); ok {
		s.status = v.AsString()
	}
	return s
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) (map[series]int64, map[series]uint64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	attempts := map[series]int64{}
	durations := map[series]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "formdispatch.enqueue.attempts" {
					continue
				}
				for _, dp := range data.DataPoints {
					attempts[seriesOf(dp.Attributes)] += dp.Value
				}
			case metricdata.Histogram[float64]:
				if m.Name != "formdispatch.enqueue.duration" {
					continue
				}
				for _, dp := range data.DataPoints {
					durations[seriesOf(dp.Attributes)] += dp.Count
				}
			}
		}
	}
	return attempts, durations
}

func TestMetrics_CountsAttemptsByJobAndOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := mw.MetricsWithMeter(mp.Meter("test"))

	queueDown := errors.New("queue down")
	calls := []struct {
		run *job.RunObject
		err error
	}{
		{runFor(1, "email"), nil},
		{runFor(2, "email"), nil},
		{runFor(2, "webhook"), queueDown},
		{runFor(2, "webhook"), nil},
		{runFor(3, "webhook"), queueDown},
	}
	for _, c := range calls {
		err := m(context.Background(), c.run, func(context.Context) error { return c.err })
		if !errors.Is(err, c.err) {
			t.Fatalf("middleware changed the handler result: %v", err)
		}
	}

	attempts, durations := collect(t, reader)
	want := map[series]int64{
		{"email", "ok"}:      2,
		{"webhook", "ok"}:    1,
		{"webhook", "error"}: 2,
	}
	if len(attempts) != len(want) {
		t.Errorf("attempt series = %v, want %v", attempts, want)
	}
	for s, n := range want {
		if attempts[s] != n {
			t.Errorf("attempts%v = %d, want %d", s, attempts[s], n)
		}
		if durations[s] != uint64(n) {
			t.Errorf("duration samples%v = %d, want %d", s, durations[s], n)
		}
	}
}

func TestMetrics_GlobalProviderIsNoopSafe(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), runFor(1, "email"), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
