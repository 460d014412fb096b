// Package storetest is a conformance suite every store.Store backend runs
// from its own tests. Subtests use distinct shards and form IDs so a single
// database can host the whole run.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
	"github.com/xraph/formdispatch/store"
)

// Run exercises s against the store.Store contract.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
	t.Run("InsertGetResponse", func(t *testing.T) { testInsertGet(t, s) })
	t.Run("DuplicateResponse", func(t *testing.T) { testDuplicate(t, s) })
	t.Run("FindUnprocessed", func(t *testing.T) { testFindUnprocessed(t, s) })
	t.Run("MarkProcessed", func(t *testing.T) { testMarkProcessed(t, s) })
	t.Run("MaxResponseID", func(t *testing.T) { testMaxResponseID(t, s) })
	t.Run("ListResponses", func(t *testing.T) { testListResponses(t, s) })
	t.Run("Forms", func(t *testing.T) { testForms(t, s) })
	t.Run("DLQ", func(t *testing.T) { testDLQ(t, s) })
}

func newResponse(shard, seq uint64, formID, owner string) *response.Response {
	return &response.Response{
		ID:           id.Pack(shard, seq),
		FormID:       formID,
		Owner:        owner,
		Answers:      []any{"text", float64(3), map[string]any{"choice": "b"}, nil},
		CreationTime: time.Date(2024, 3, 1, 10, 30, 0, 123000000, time.UTC),
	}
}

func mustInsert(t *testing.T, s store.Store, rs ...*response.Response) {
	t.Helper()
	for _, r := range rs {
		if err := s.InsertResponse(context.Background(), r); err != nil {
			t.Fatalf("InsertResponse(%s): %v", r.ID, err)
		}
	}
}

func ids(rs []*response.Response) []id.ID {
	out := make([]id.ID, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []id.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testInsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	// The top shard exercises identities near the int64 limit.
	r := newResponse(id.MaxShard, id.MaxSequence, "st-get", "owner-get")
	mustInsert(t, s, r)

	got, err := s.GetResponse(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if got.ID != r.ID || got.FormID != r.FormID || got.Owner != r.Owner {
		t.Errorf("got %+v, want %+v", got, r)
	}
	if !got.CreationTime.Equal(r.CreationTime) {
		t.Errorf("CreationTime = %v, want %v", got.CreationTime, r.CreationTime)
	}
	if got.Processed {
		t.Error("new response must be unprocessed")
	}

	gotJSON, _ := json.Marshal(got.Answers)
	wantJSON, _ := json.Marshal(r.Answers)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("Answers = %s, want %s", gotJSON, wantJSON)
	}

	if _, err := s.GetResponse(ctx, id.Pack(id.MaxShard, 1)); !errors.Is(err, formdispatch.ErrResponseNotFound) {
		t.Errorf("expected ErrResponseNotFound, got %v", err)
	}
}

func testDuplicate(t *testing.T, s store.Store) {
	r := newResponse(101, 1, "st-dup", "o")
	mustInsert(t, s, r)

	if err := s.InsertResponse(context.Background(), r); !errors.Is(err, formdispatch.ErrResponseAlreadyExists) {
		t.Fatalf("expected ErrResponseAlreadyExists, got %v", err)
	}
}

func testFindUnprocessed(t *testing.T, s store.Store) {
	ctx := context.Background()
	const shard = 102
	for seq := uint64(1); seq <= 6; seq++ {
		mustInsert(t, s, newResponse(shard, seq, "st-find", "o"))
	}
	// Neighbouring shards must never leak into the range.
	mustInsert(t, s, newResponse(shard-1, id.MaxSequence, "st-find", "o"), newResponse(shard+1, 0, "st-find", "o"))

	if _, err := s.MarkProcessed(ctx, id.Pack(shard, 2)); err != nil {
		t.Fatal(err)
	}

	lo, hi := id.ShardRange(shard)
	tests := []struct {
		name  string
		lo    id.ID
		hi    id.ID
		limit int
		want  []id.ID
	}{
		{name: "whole shard", lo: lo, hi: hi, limit: 10,
			want: []id.ID{id.Pack(shard, 1), id.Pack(shard, 3), id.Pack(shard, 4), id.Pack(shard, 5), id.Pack(shard, 6)}},
		{name: "limited", lo: lo, hi: hi, limit: 2,
			want: []id.ID{id.Pack(shard, 1), id.Pack(shard, 3)}},
		{name: "inclusive bounds", lo: id.Pack(shard, 3), hi: id.Pack(shard, 5), limit: 10,
			want: []id.ID{id.Pack(shard, 3), id.Pack(shard, 4), id.Pack(shard, 5)}},
		{name: "empty range", lo: id.Pack(shard, 7), hi: hi, limit: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindUnprocessed(ctx, tt.lo, tt.hi, tt.limit)
			if err != nil {
				t.Fatalf("FindUnprocessed: %v", err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func testMarkProcessed(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newResponse(103, 1, "st-mark", "o")
	mustInsert(t, s, r)

	for i := range 2 {
		ok, err := s.MarkProcessed(ctx, r.ID)
		if err != nil {
			t.Fatalf("MarkProcessed #%d: %v", i+1, err)
		}
		if !ok {
			t.Errorf("MarkProcessed #%d = false, want true", i+1)
		}
	}

	got, err := s.GetResponse(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Processed {
		t.Error("response not processed")
	}

	ok, err := s.MarkProcessed(ctx, id.Pack(103, 999))
	if err != nil {
		t.Fatalf("MarkProcessed missing: %v", err)
	}
	if ok {
		t.Error("MarkProcessed of a missing response must report false")
	}
}

func testMaxResponseID(t *testing.T, s store.Store) {
	ctx := context.Background()
	const shard = 104
	lo, hi := id.ShardRange(shard)

	if _, ok, err := s.MaxResponseID(ctx, lo, hi); err != nil || ok {
		t.Fatalf("empty shard: ok=%v err=%v", ok, err)
	}

	mustInsert(t, s,
		newResponse(shard, 5, "st-max", "o"),
		newResponse(shard, 42, "st-max", "o"),
		newResponse(shard+1, 1000, "st-max", "o"),
	)
	if _, err := s.MarkProcessed(ctx, id.Pack(shard, 42)); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.MaxResponseID(ctx, lo, hi)
	if err != nil || !ok {
		t.Fatalf("MaxResponseID: ok=%v err=%v", ok, err)
	}
	if got != id.Pack(shard, 42) {
		t.Errorf("MaxResponseID = %s, want %s (processed responses count)", got, id.Pack(shard, 42))
	}
}

func testListResponses(t *testing.T, s store.Store) {
	ctx := context.Background()
	const shard = 105
	mustInsert(t, s,
		newResponse(shard, 1, "st-list-a", "st-alice"),
		newResponse(shard, 2, "st-list-b", "st-alice"),
		newResponse(shard, 3, "st-list-a", "st-bob"),
	)

	byForm, err := s.ListResponsesByForm(ctx, "st-list-a", response.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []id.ID{id.Pack(shard, 1), id.Pack(shard, 3)}; !equalIDs(ids(byForm), want) {
		t.Errorf("by form = %v, want %v", ids(byForm), want)
	}

	byOwner, err := s.ListResponsesByOwner(ctx, "st-alice", response.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if want := []id.ID{id.Pack(shard, 2)}; !equalIDs(ids(byOwner), want) {
		t.Errorf("by owner = %v, want %v", ids(byOwner), want)
	}
}

func testForms(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := &form.Form{
		ID:          "st-form-1",
		Owner:       "st-owner",
		Name:        "Feedback",
		Description: "Quarterly",
		Questions:   json.RawMessage(`[{"required":true,"title":"Name"}]`),
		Jobs: []job.Spec{
			{Name: "email", Params: json.RawMessage(`{"to":"ops@example.com"}`)},
			{Name: "webhook"},
		},
		CreationTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.SaveForm(ctx, f); err != nil {
		t.Fatalf("SaveForm: %v", err)
	}

	got, err := s.GetForm(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetForm: %v", err)
	}
	if got.Name != f.Name || got.Owner != f.Owner || len(got.Jobs) != 2 {
		t.Errorf("got %+v", got)
	}
	if got.Jobs[0].Name != "email" || got.Jobs[1].Name != "webhook" {
		t.Errorf("jobs = %v", got.JobNames())
	}
	var params map[string]string
	if err := json.Unmarshal(got.Jobs[0].Params, &params); err != nil || params["to"] != "ops@example.com" {
		t.Errorf("params = %s (%v)", got.Jobs[0].Params, err)
	}
	var questions []map[string]any
	if err := json.Unmarshal(got.Questions, &questions); err != nil || len(questions) != 1 || questions[0]["required"] != true {
		t.Errorf("questions = %s (%v)", got.Questions, err)
	}

	// Replace keeps one record and the new job list.
	f.Jobs = f.Jobs[:1]
	if err := s.SaveForm(ctx, f); err != nil {
		t.Fatalf("SaveForm replace: %v", err)
	}
	got, err = s.GetForm(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Jobs) != 1 {
		t.Errorf("jobs after replace = %v", got.JobNames())
	}

	if _, err := s.GetForm(ctx, "st-missing"); !errors.Is(err, formdispatch.ErrFormNotFound) {
		t.Errorf("expected ErrFormNotFound, got %v", err)
	}
}

func testDLQ(t *testing.T, s store.Store) {
	ctx := context.Background()
	formID := "st-dlq-" + uuid.NewString()

	before, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatal(err)
	}

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*dlq.Entry{
		{ID: id.NewDLQID(), ResponseID: id.Pack(106, 1), FormID: formID, Jobs: []string{"email"}, Error: "boom", Attempts: 5, FailedAt: old},
		{ID: id.NewDLQID(), ResponseID: id.Pack(106, 2), FormID: formID, Jobs: []string{"webhook", "email"}, Error: "down", Attempts: 5, FailedAt: old.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
	}

	after, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after-before != 2 {
		t.Errorf("count grew by %d, want 2", after-before)
	}

	listed, err := s.ListDLQ(ctx, dlq.ListOpts{FormID: formID})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 || listed[0].ID != entries[0].ID {
		t.Fatalf("ListDLQ = %+v", listed)
	}
	if listed[1].ResponseID != id.Pack(106, 2) || len(listed[1].Jobs) != 2 || listed[1].Jobs[0] != "webhook" {
		t.Errorf("second entry = %+v", listed[1])
	}

	if err := s.ReplayDLQ(ctx, entries[0].ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	got, err := s.GetDLQ(ctx, entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt not set")
	}
	if got.ID != entries[0].ID {
		t.Errorf("GetDLQ id = %s, want %s", got.ID, entries[0].ID)
	}

	if err := s.ReplayDLQ(ctx, id.NewDLQID()); !errors.Is(err, formdispatch.ErrDLQNotFound) {
		t.Errorf("expected ErrDLQNotFound, got %v", err)
	}
	if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, formdispatch.ErrDLQNotFound) {
		t.Errorf("expected ErrDLQNotFound, got %v", err)
	}

	purged, err := s.PurgeDLQ(ctx, old.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if purged < 1 {
		t.Errorf("purged %d, want at least 1", purged)
	}
	if _, err := s.GetDLQ(ctx, entries[0].ID); !errors.Is(err, formdispatch.ErrDLQNotFound) {
		t.Errorf("purged entry still present: %v", err)
	}
}
