package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/ingest"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
	"github.com/xraph/formdispatch/store/memory"
	"github.com/xraph/formdispatch/worker"
)

type recordingPool struct {
	mu   sync.Mutex
	reqs []worker.Request
	err  error
}

func (p *recordingPool) Submit(req worker.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reqs = append(p.reqs, req)
	return nil
}

type storedRecorder struct{ ids []id.ID }

func (r *storedRecorder) Name() string { return "stored" }

func (r *storedRecorder) OnResponseStored(_ context.Context, resp *response.Response) error {
	r.ids = append(r.ids, resp.ID)
	return nil
}

func setup(t *testing.T, opts ...ingest.Option) (*ingest.Service, *memory.Store, *recordingPool, *id.Allocator) {
	t.Helper()
	s := memory.New()
	err := s.SaveForm(context.Background(), &form.Form{
		ID:        "f1",
		Owner:     "owner-1",
		Questions: json.RawMessage(`[{"required":true},{"required":false}]`),
		Jobs:      []job.Spec{{Name: "email"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	alloc, err := id.NewAllocator(2)
	if err != nil {
		t.Fatal(err)
	}
	pool := &recordingPool{}
	svc := ingest.New(s, response.NewService(s, alloc), pool, opts...)
	return svc, s, pool, alloc
}

func TestSubmit_StoresAndHandsOff(t *testing.T) {
	rec := &storedRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(rec)
	svc, s, pool, _ := setup(t, ingest.WithExtensions(reg))

	r, err := svc.Submit(context.Background(), "f1", "alice", []any{"yes", nil})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.ID.Shard() != 2 || r.ID.Sequence() != 1 {
		t.Errorf("ID = %s (shard %d seq %d)", r.ID, r.ID.Shard(), r.ID.Sequence())
	}

	stored, err := s.GetResponse(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if stored.Processed {
		t.Error("new response must be unprocessed")
	}
	if len(pool.reqs) != 1 || pool.reqs[0].Response.ID != r.ID || pool.reqs[0].FormID != "f1" {
		t.Errorf("pool requests = %+v", pool.reqs)
	}
	if len(rec.ids) != 1 || rec.ids[0] != r.ID {
		t.Errorf("ResponseStored hook saw %v", rec.ids)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		formID  string
		answers []any
		want    error
	}{
		{name: "unknown form", formID: "nope", answers: []any{"a", "b"}, want: formdispatch.ErrFormNotFound},
		{name: "wrong count", formID: "f1", answers: []any{"a"}, want: formdispatch.ErrInvalidAnswers},
		{name: "required empty", formID: "f1", answers: []any{"", "b"}, want: formdispatch.ErrInvalidAnswers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s, pool, _ := setup(t)

			_, err := svc.Submit(context.Background(), tt.formID, "alice", tt.answers)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(pool.reqs) != 0 {
				t.Error("rejected submission must not be dispatched")
			}
			if rs, _ := s.ListResponsesByOwner(context.Background(), "alice", response.ListOpts{}); len(rs) != 0 {
				t.Error("rejected submission must not be stored")
			}
		})
	}
}

func TestSubmit_CustomChecker(t *testing.T) {
	svc, _, _, _ := setup(t, ingest.WithChecker(form.CheckerFunc(func(*form.Form, []any) error { return nil })))

	if _, err := svc.Submit(context.Background(), "f1", "alice", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmit_PoolStoppedStillSucceeds(t *testing.T) {
	svc, s, pool, _ := setup(t)
	pool.err = worker.ErrPoolStopped

	r, err := svc.Submit(context.Background(), "f1", "alice", []any{"yes", "no"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.GetResponse(context.Background(), r.ID); err != nil {
		t.Fatalf("response should be stored: %v", err)
	}
}

func TestSubmit_ExhaustionIsFatal(t *testing.T) {
	var fatal error
	svc, _, _, alloc := setup(t, ingest.WithFatalHandler(func(err error) { fatal = err }))
	alloc.Seed(id.MaxSequence)

	_, err := svc.Submit(context.Background(), "f1", "alice", []any{"yes", "no"})
	if !errors.Is(err, formdispatch.ErrSequenceExhausted) {
		t.Fatalf("expected ErrSequenceExhausted, got %v", err)
	}
	if !errors.Is(fatal, formdispatch.ErrSequenceExhausted) {
		t.Errorf("fatal handler got %v", fatal)
	}
}

func TestGet(t *testing.T) {
	svc, _, _, _ := setup(t)
	r, err := svc.Submit(context.Background(), "f1", "alice", []any{"yes", "no"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(context.Background(), r.ID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Owner != "alice" {
		t.Errorf("Owner = %q", got.Owner)
	}

	for _, raw := range []string{"not-a-number", id.Pack(2, 99).String()} {
		if _, err := svc.Get(context.Background(), raw); !errors.Is(err, formdispatch.ErrResponseNotFound) {
			t.Errorf("Get(%q): expected ErrResponseNotFound, got %v", raw, err)
		}
	}
}

func TestListByForm_UnknownForm(t *testing.T) {
	svc, _, _, _ := setup(t)
	if _, err := svc.ListByForm(context.Background(), "nope", response.ListOpts{}); !errors.Is(err, formdispatch.ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound, got %v", err)
	}
}
