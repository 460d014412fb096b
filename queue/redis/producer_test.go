package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	redisqueue "github.com/xraph/formdispatch/queue/redis"
)

func newProducer(t *testing.T) (*redisqueue.Producer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := job.DefaultConfig("email")
	return redisqueue.New(client, cfg), mr
}

func newRun(t *testing.T, seq uint64, at time.Time) *job.RunObject {
	t.Helper()
	run, err := job.NewRunObject(id.Pack(1, seq), job.Spec{Name: "email"}, map[string]string{"id": "f1"}, map[string]int{"n": 1}, at)
	if err != nil {
		t.Fatalf("NewRunObject: %v", err)
	}
	return run
}

func TestProducer_ReadyAndAdd(t *testing.T) {
	p, mr := newProducer(t)
	ctx := context.Background()

	if err := p.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	run := newRun(t, 1, time.Now())
	if err := p.AddJob(ctx, run); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	n, err := p.Waiting(ctx)
	if err != nil {
		t.Fatalf("Waiting: %v", err)
	}
	if n != 1 {
		t.Errorf("waiting = %d, want 1", n)
	}
	if !mr.Exists("bq:email:jobs") {
		t.Error("jobs hash missing")
	}
}

func TestProducer_DuplicateRunIDStoredOnce(t *testing.T) {
	p, _ := newProducer(t)
	ctx := context.Background()

	first := newRun(t, 7, time.Unix(100, 0))
	retry := newRun(t, 7, time.Unix(200, 0))

	if err := p.AddJob(ctx, first); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := p.AddJob(ctx, retry); err != nil {
		t.Fatalf("duplicate AddJob should succeed, got %v", err)
	}

	n, _ := p.Waiting(ctx)
	if n != 1 {
		t.Errorf("waiting = %d, want 1", n)
	}

	// The first accepted envelope wins.
	at, ok, err := p.QueueTime(ctx, first.ID)
	if err != nil || !ok {
		t.Fatalf("QueueTime = (%v, %v)", ok, err)
	}
	if !at.Equal(time.Unix(100, 0)) {
		t.Errorf("queue time = %v, want first attempt", at)
	}
}

func TestProducer_Lookup(t *testing.T) {
	p, _ := newProducer(t)
	ctx := context.Background()

	if _, ok, err := p.Lookup(ctx, "missing"); err != nil || ok {
		t.Fatalf("Lookup(missing) = (%v, %v)", ok, err)
	}

	run := newRun(t, 3, time.Now())
	_ = p.AddJob(ctx, run)

	got, ok, err := p.Lookup(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("Lookup = (%v, %v)", ok, err)
	}
	if got.ID != run.ID || got.Job.Name != "email" {
		t.Errorf("got %+v", got)
	}
}

func TestProducer_AddFailsWhenServerDown(t *testing.T) {
	p, mr := newProducer(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.AddJob(ctx, newRun(t, 1, time.Now())); err == nil {
		t.Fatal("expected error with server down")
	}
	if err := p.Ready(ctx); err == nil {
		t.Fatal("expected Ready error with server down")
	}
}

func TestProducer_WithPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := redisqueue.New(client, job.DefaultConfig("webhook"), redisqueue.WithPrefix("forms"))
	if err := p.AddJob(context.Background(), newRun(t, 1, time.Now())); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if !mr.Exists("forms:webhook:waiting") {
		t.Error("expected prefixed waiting list")
	}
}

func TestOpen_RejectsBadURL(t *testing.T) {
	cfg := job.DefaultConfig("email")
	cfg.RedisURL = "://nope"
	if _, err := redisqueue.Open(cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
