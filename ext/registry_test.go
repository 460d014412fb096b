package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnResponseStored(_ context.Context, _ *response.Response) error {
	e.calls = append(e.calls, "OnResponseStored")
	return nil
}

func (e *allHooksExt) OnJobSkipped(_ context.Context, _ *response.Response, _ string) error {
	e.calls = append(e.calls, "OnJobSkipped")
	return nil
}

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.RunObject, _ int) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnDispatchRetrying(_ context.Context, _ *response.Response, _ []string, _ int, _ error) error {
	e.calls = append(e.calls, "OnDispatchRetrying")
	return nil
}

func (e *allHooksExt) OnDispatchCompleted(_ context.Context, _ *response.Response, _ []string, _ time.Duration) error {
	e.calls = append(e.calls, "OnDispatchCompleted")
	return nil
}

func (e *allHooksExt) OnDispatchFailed(_ context.Context, _ *response.Response, _ []string, _ int, _ error) error {
	e.calls = append(e.calls, "OnDispatchFailed")
	return nil
}

func (e *allHooksExt) OnRecoveryCompleted(_ context.Context, _ int, _ error) error {
	e.calls = append(e.calls, "OnRecoveryCompleted")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// storedOnlyExt only implements the stored hook.
type storedOnlyExt struct {
	calls []string
}

func (e *storedOnlyExt) Name() string { return "stored-only" }

func (e *storedOnlyExt) OnResponseStored(_ context.Context, _ *response.Response) error {
	e.calls = append(e.calls, "OnResponseStored")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnResponseStored(_ context.Context, _ *response.Response) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func testResponse() *response.Response {
	return &response.Response{ID: id.Pack(1, 1), FormID: "form-1", Owner: "owner-1"}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	so := &storedOnlyExt{}
	r.Register(all)
	r.Register(so)

	ctx := context.Background()
	resp := testResponse()

	r.EmitResponseStored(ctx, resp)
	if len(all.calls) != 1 || len(so.calls) != 1 {
		t.Fatalf("expected both called once, got all=%v so=%v", all.calls, so.calls)
	}

	r.EmitJobSkipped(ctx, resp, "unknown")
	if len(all.calls) != 2 || all.calls[1] != "OnJobSkipped" {
		t.Fatalf("all: expected OnJobSkipped as 2nd, got %v", all.calls)
	}
	if len(so.calls) != 1 {
		t.Fatalf("so: should still have 1 call, got %v", so.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	resp := testResponse()
	run := &job.RunObject{ID: job.RunID(resp.ID, "email"), ResponseID: resp.ID}

	r.EmitResponseStored(ctx, resp)
	r.EmitJobSkipped(ctx, resp, "unknown")
	r.EmitJobEnqueued(ctx, run, 1)
	r.EmitDispatchRetrying(ctx, resp, []string{"email"}, 2, errors.New("down"))
	r.EmitDispatchCompleted(ctx, resp, []string{"email"}, time.Second)
	r.EmitDispatchFailed(ctx, resp, []string{"email"}, 5, errors.New("down"))
	r.EmitRecoveryCompleted(ctx, 3, nil)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnResponseStored", "OnJobSkipped", "OnJobEnqueued", "OnDispatchRetrying",
		"OnDispatchCompleted", "OnDispatchFailed", "OnRecoveryCompleted", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitResponseStored(ctx, testResponse())
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("all: expected 2 calls despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()
	resp := testResponse()

	r.EmitResponseStored(ctx, resp)
	r.EmitJobSkipped(ctx, resp, "x")
	r.EmitJobEnqueued(ctx, &job.RunObject{}, 1)
	r.EmitDispatchRetrying(ctx, resp, nil, 2, errors.New("x"))
	r.EmitDispatchCompleted(ctx, resp, nil, time.Second)
	r.EmitDispatchFailed(ctx, resp, nil, 5, errors.New("x"))
	r.EmitRecoveryCompleted(ctx, 0, nil)
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())

	var order []string
	r.Register(&orderExt{name: "first", order: &order})
	r.Register(&orderExt{name: "second", order: &order})

	r.EmitShutdown(context.Background())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

type orderExt struct {
	name  string
	order *[]string
}

func (e *orderExt) Name() string { return e.name }

func (e *orderExt) OnShutdown(context.Context) error {
	*e.order = append(*e.order, e.name)
	return nil
}
