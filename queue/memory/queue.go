// Package memory provides an in-process queue.Client for tests and local
// development. It deduplicates by run ID and can be scripted to fail.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/queue"
)

var _ queue.Client = (*Queue)(nil)

// ErrUnavailable is the default error returned by scripted failures.
var ErrUnavailable = errors.New("memory queue: unavailable")

// Queue stores accepted run objects in memory.
type Queue struct {
	name string

	mu       sync.Mutex
	jobs     map[string]*job.RunObject
	order    []string
	attempts int
	failNext int
	failErr  error
	failFor  func(run *job.RunObject) error
	readyErr error
	closed   bool
}

// New creates an empty queue serving the given job name.
func New(name string) *Queue {
	return &Queue{name: name, jobs: make(map[string]*job.RunObject)}
}

// Name implements queue.Client.
func (q *Queue) Name() string { return q.name }

// AddJob accepts run unless a scripted failure applies. Adding a run ID
// that is already held succeeds without storing a second copy.
func (q *Queue) AddJob(ctx context.Context, run *job.RunObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.attempts++
	if q.closed {
		return errors.New("memory queue: closed")
	}
	if q.failNext > 0 {
		q.failNext--
		return q.failErr
	}
	if q.failFor != nil {
		if err := q.failFor(run); err != nil {
			return err
		}
	}

	if _, dup := q.jobs[run.ID]; dup {
		return nil
	}
	q.jobs[run.ID] = run
	q.order = append(q.order, run.ID)
	return nil
}

// Ready implements queue.Client.
func (q *Queue) Ready(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readyErr
}

// Close implements queue.Client.
func (q *Queue) Close(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Scripting and inspection
// ──────────────────────────────────────────────────

// FailNext makes the next n adds fail with err (ErrUnavailable if nil).
func (q *Queue) FailNext(n int, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failNext = n
	q.failErr = err
}

// FailWhen installs a predicate consulted on every add; a non-nil result
// rejects the add.
func (q *Queue) FailWhen(fn func(run *job.RunObject) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failFor = fn
}

// SetReadyErr makes Ready return err.
func (q *Queue) SetReadyErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.readyErr = err
}

// Jobs returns accepted run objects in acceptance order.
func (q *Queue) Jobs() []*job.RunObject {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.RunObject, len(q.order))
	for i, runID := range q.order {
		out[i] = q.jobs[runID]
	}
	return out
}

// Has reports whether a run ID was accepted.
func (q *Queue) Has(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[runID]
	return ok
}

// Attempts returns the number of AddJob calls, including failed ones.
func (q *Queue) Attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
