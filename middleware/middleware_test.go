package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/middleware"
)

func newRun(name string) *job.RunObject {
	rid := id.Pack(3, 42)
	return &job.RunObject{
		ID:         job.RunID(rid, name),
		Job:        job.Spec{Name: name},
		ResponseID: rid,
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.RunObject, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.RunObject, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), newRun("test"), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false

	err := chain(context.Background(), newRun("test"), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.RunObject, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), newRun("test"), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	run := newRun("panicky")

	err := mw(context.Background(), run, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	want := "enqueue " + run.ID + ": panic: test panic"
	if got := err.Error(); got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	err := mw(context.Background(), newRun("normal"), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_PassesResult(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	want := errors.New("fail")

	if err := mw(context.Background(), newRun("log-test"), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mw(context.Background(), newRun("log-test"), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout(t *testing.T) {
	lookup := func(name string) time.Duration {
		if name == "slow" {
			return 20 * time.Millisecond
		}
		return 0
	}
	mw := middleware.Timeout(lookup, slog.Default())

	tests := []struct {
		name         string
		job          string
		wantDeadline bool
	}{
		{name: "configured", job: "slow", wantDeadline: true},
		{name: "unconfigured", job: "fast", wantDeadline: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var has bool
			_ = mw(context.Background(), newRun(tt.job), func(ctx context.Context) error {
				_, has = ctx.Deadline()
				return nil
			})
			if has != tt.wantDeadline {
				t.Errorf("deadline set = %v, want %v", has, tt.wantDeadline)
			}
		})
	}
}

func TestTimeout_ExpiresSlowHandler(t *testing.T) {
	mw := middleware.Timeout(func(string) time.Duration { return 10 * time.Millisecond }, slog.Default())

	err := mw(context.Background(), newRun("slow"), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_NilLookup(t *testing.T) {
	mw := middleware.Timeout(nil, slog.Default())
	called := false
	_ = mw(context.Background(), newRun("x"), func(context.Context) error {
		called = true
		return nil
	})
	if !called {
		t.Fatal("handler not called")
	}
}

func TestAttempt(t *testing.T) {
	if got := middleware.Attempt(context.Background()); got != 1 {
		t.Errorf("default attempt = %d, want 1", got)
	}
	ctx := middleware.WithAttempt(context.Background(), 3)
	if got := middleware.Attempt(ctx); got != 3 {
		t.Errorf("attempt = %d, want 3", got)
	}
}
