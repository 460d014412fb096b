package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Response store tests
// ──────────────────────────────────────────────────

func newResponse(shard, seq uint64, formID, owner string) *response.Response {
	return &response.Response{
		ID:           id.Pack(shard, seq),
		FormID:       formID,
		Owner:        owner,
		Answers:      []any{"a"},
		CreationTime: time.Now().UTC(),
	}
}

func TestInsertResponse_Duplicate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newResponse(1, 1, "f", "o")
	if err := s.InsertResponse(ctx, r); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}
	if err := s.InsertResponse(ctx, r); !errors.Is(err, formdispatch.ErrResponseAlreadyExists) {
		t.Fatalf("expected ErrResponseAlreadyExists, got %v", err)
	}
}

func TestGetResponse_NotFound(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.GetResponse(context.Background(), id.Pack(0, 99))
	if !errors.Is(err, formdispatch.ErrResponseNotFound) {
		t.Fatalf("expected ErrResponseNotFound, got %v", err)
	}
}

func TestFindUnprocessed_BoundsOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	// Insert out of order across two shards.
	for _, seq := range []uint64{5, 2, 8, 1, 3} {
		_ = s.InsertResponse(ctx, newResponse(1, seq, "f", "o"))
	}
	_ = s.InsertResponse(ctx, newResponse(2, 1, "f", "o"))
	_, _ = s.MarkProcessed(ctx, id.Pack(1, 3))

	got, err := s.FindUnprocessed(ctx, id.Pack(1, 0), id.Pack(1, 5), 3)
	if err != nil {
		t.Fatalf("FindUnprocessed: %v", err)
	}
	want := []uint64{1, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("got %d responses, want %d", len(got), len(want))
	}
	for i, seq := range want {
		if got[i].ID != id.Pack(1, seq) {
			t.Errorf("got[%d] = %d, want seq %d", i, got[i].ID.Sequence(), seq)
		}
	}
}

func TestMarkProcessed(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newResponse(0, 1, "f", "o")
	_ = s.InsertResponse(ctx, r)

	for range 2 {
		ok, err := s.MarkProcessed(ctx, r.ID)
		if err != nil || !ok {
			t.Fatalf("MarkProcessed = (%v, %v), want (true, nil)", ok, err)
		}
	}

	got, _ := s.GetResponse(ctx, r.ID)
	if !got.Processed {
		t.Error("response should be processed")
	}

	ok, err := s.MarkProcessed(ctx, id.Pack(0, 42))
	if err != nil || ok {
		t.Fatalf("MarkProcessed(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMaxResponseID(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	lo, hi := id.ShardRange(4)
	if _, ok, _ := s.MaxResponseID(ctx, lo, hi); ok {
		t.Fatal("expected empty range")
	}

	_ = s.InsertResponse(ctx, newResponse(4, 7, "f", "o"))
	_ = s.InsertResponse(ctx, newResponse(4, 3, "f", "o"))
	_ = s.InsertResponse(ctx, newResponse(5, 100, "f", "o"))

	got, ok, err := s.MaxResponseID(ctx, lo, hi)
	if err != nil || !ok {
		t.Fatalf("MaxResponseID = (%v, %v)", ok, err)
	}
	if got != id.Pack(4, 7) {
		t.Errorf("max = %d, want %d", got, id.Pack(4, 7))
	}
}

func TestListResponses(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_ = s.InsertResponse(ctx, newResponse(0, 1, "f1", "alice"))
	_ = s.InsertResponse(ctx, newResponse(0, 2, "f2", "alice"))
	_ = s.InsertResponse(ctx, newResponse(0, 3, "f1", "bob"))

	byForm, _ := s.ListResponsesByForm(ctx, "f1", response.ListOpts{})
	if len(byForm) != 2 {
		t.Errorf("by form = %d, want 2", len(byForm))
	}

	byOwner, _ := s.ListResponsesByOwner(ctx, "alice", response.ListOpts{Limit: 1, Offset: 1})
	if len(byOwner) != 1 || byOwner[0].ID != id.Pack(0, 2) {
		t.Errorf("paged by owner = %v", byOwner)
	}
}

func TestResponseCopiesAreIsolated(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	r := newResponse(0, 1, "f", "o")
	_ = s.InsertResponse(ctx, r)
	r.Answers[0] = "mutated"

	got, _ := s.GetResponse(ctx, r.ID)
	if got.Answers[0] != "a" {
		t.Errorf("stored answers changed: %v", got.Answers)
	}
}

// ──────────────────────────────────────────────────
// Form store tests
// ──────────────────────────────────────────────────

func TestForms(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.GetForm(ctx, "missing"); !errors.Is(err, formdispatch.ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound, got %v", err)
	}

	f := &form.Form{ID: "f1", Owner: "o", Jobs: []job.Spec{{Name: "email"}}}
	if err := s.SaveForm(ctx, f); err != nil {
		t.Fatalf("SaveForm: %v", err)
	}
	f.Jobs[0].Name = "changed"

	got, err := s.GetForm(ctx, "f1")
	if err != nil {
		t.Fatalf("GetForm: %v", err)
	}
	if got.Jobs[0].Name != "email" {
		t.Errorf("job = %q, want email", got.Jobs[0].Name)
	}

	s.DeleteForm(ctx, "f1")
	if _, err := s.GetForm(ctx, "f1"); !errors.Is(err, formdispatch.ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound after delete, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// DLQ store tests
// ──────────────────────────────────────────────────

func TestDLQ(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := &dlq.Entry{ID: id.NewDLQID(), FormID: "f1", FailedAt: time.Now().Add(-2 * time.Hour)}
	recent := &dlq.Entry{ID: id.NewDLQID(), FormID: "f2", FailedAt: time.Now()}
	_ = s.PushDLQ(ctx, recent)
	_ = s.PushDLQ(ctx, old)

	all, _ := s.ListDLQ(ctx, dlq.ListOpts{})
	if len(all) != 2 || all[0].ID != old.ID {
		t.Fatalf("expected oldest first, got %v", all)
	}

	filtered, _ := s.ListDLQ(ctx, dlq.ListOpts{FormID: "f2"})
	if len(filtered) != 1 || filtered[0].ID != recent.ID {
		t.Fatalf("filter by form = %v", filtered)
	}

	if err := s.ReplayDLQ(ctx, recent.ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	got, _ := s.GetDLQ(ctx, recent.ID)
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}

	if err := s.ReplayDLQ(ctx, id.NewDLQID()); !errors.Is(err, formdispatch.ErrDLQNotFound) {
		t.Errorf("expected ErrDLQNotFound, got %v", err)
	}

	n, _ := s.PurgeDLQ(ctx, time.Now().Add(-time.Hour))
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	count, _ := s.CountDLQ(ctx)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
