// Package dispatcher turns a stored response into run objects, hands them
// to their job queues with bounded retry, and marks the response processed
// once every known job has been accepted.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/backoff"
	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/middleware"
	"github.com/xraph/formdispatch/queue"
	"github.com/xraph/formdispatch/response"
)

// Outcome summarizes one dispatch.
type Outcome struct {
	ResponseID id.ID
	// Enqueued lists the jobs a queue accepted.
	Enqueued []string
	// Skipped lists the form jobs without a registered queue.
	Skipped []string
	// Failed lists the jobs still rejected after the last attempt.
	Failed []string
	// Attempts is the number of enqueue rounds run.
	Attempts int
	// Processed reports whether the response was marked processed.
	Processed bool
}

// Coordinator dispatches responses to the job queues registered in a
// queue.Set. It is safe for concurrent use; dispatches share nothing but
// the queue clients and the store.
type Coordinator struct {
	responses  *response.Service
	forms      form.Store
	queues     *queue.Set
	extensions *ext.Registry
	policy     backoff.Policy
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the retry policy for both delivery and marking.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithMiddleware wraps every enqueue attempt with mws, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Coordinator) { c.mw = middleware.Chain(mws...) }
}

// WithExtensions sets the registry notified of dispatch events.
func WithExtensions(r *ext.Registry) Option {
	return func(c *Coordinator) { c.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides the source of run object queue times.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator. forms is only consulted by Redispatch.
func New(responses *response.Service, forms form.Store, queues *queue.Set, opts ...Option) *Coordinator {
	c := &Coordinator{
		responses: responses,
		forms:     forms,
		queues:    queues,
		policy:    backoff.DefaultPolicy(),
		mw:        middleware.Chain(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extensions == nil {
		c.extensions = ext.NewRegistry(c.logger)
	}
	return c
}

// Policy returns the retry policy in use.
func (c *Coordinator) Policy() backoff.Policy { return c.policy }

// pendingRun pairs a run object with the client that accepts it.
type pendingRun struct {
	run    *job.RunObject
	client queue.Client
}

// Dispatch enqueues one run object per known job of f for r, retrying the
// rejected ones under the coordinator's policy, then marks r processed.
//
// Jobs without a registered queue are skipped and never retried. When no
// job is known the response is left unprocessed and the error is nil.
// Exhausted delivery returns ErrDeliveryFailed without marking; exhausted
// marking returns ErrMarkProcessedFailed after every job was accepted.
func (c *Coordinator) Dispatch(ctx context.Context, f *form.Form, r *response.Response) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{ResponseID: r.ID}

	pending, err := c.partition(ctx, f, r, out)
	if err != nil {
		return out, err
	}
	if len(pending) == 0 {
		c.logger.Warn("no known jobs for response, leaving unprocessed",
			slog.String("response_id", r.ID.String()),
			slog.String("form_id", f.ID),
			slog.Any("skipped", out.Skipped),
		)
		return out, nil
	}

	d, err := c.deliver(ctx, r, pending, out)
	if err == nil && len(d.failed) > 0 {
		err = ctx.Err()
	}
	if err != nil {
		// Interrupted, not exhausted. The response stays unprocessed for
		// the next recovery pass.
		return out, fmt.Errorf("dispatch %s: %w", r.ID, err)
	}
	if len(d.failed) > 0 {
		lastErr := d.lastErr
		out.Failed = names(d.failed)
		dispatchErr := fmt.Errorf("%w: response %s: jobs [%s]: %w",
			formdispatch.ErrDeliveryFailed, r.ID, strings.Join(out.Failed, ","), lastErr)

		c.logger.Error("dispatch failed after exhausting retries",
			slog.String("response_id", r.ID.String()),
			slog.Any("jobs", out.Failed),
			slog.Int("attempts", out.Attempts),
			slog.String("error", lastErr.Error()),
		)
		c.extensions.EmitDispatchFailed(ctx, r, out.Failed, out.Attempts, dispatchErr)
		return out, dispatchErr
	}

	if err := c.markProcessed(ctx, r, out); err != nil {
		return out, err
	}

	c.extensions.EmitDispatchCompleted(ctx, r, out.Enqueued, time.Since(start))
	c.logger.Info("response dispatched",
		slog.String("response_id", r.ID.String()),
		slog.Any("jobs", out.Enqueued),
		slog.Int("attempts", out.Attempts),
	)
	return out, nil
}

// partition builds the run objects for the form's known jobs and records
// the unknown ones in out.Skipped.
func (c *Coordinator) partition(ctx context.Context, f *form.Form, r *response.Response, out *Outcome) ([]pendingRun, error) {
	seen := make(map[string]struct{}, len(f.Jobs))
	pending := make([]pendingRun, 0, len(f.Jobs))
	queueTime := c.now()

	for _, spec := range f.Jobs {
		if _, dup := seen[spec.Name]; dup {
			c.logger.Warn("duplicate job on form ignored",
				slog.String("form_id", f.ID),
				slog.String("job_name", spec.Name),
			)
			continue
		}
		seen[spec.Name] = struct{}{}

		client, ok := c.queues.Get(spec.Name)
		if !ok {
			c.logger.Warn("skipping unknown job",
				slog.String("response_id", r.ID.String()),
				slog.String("job_name", spec.Name),
			)
			out.Skipped = append(out.Skipped, spec.Name)
			c.extensions.EmitJobSkipped(ctx, r, spec.Name)
			continue
		}

		run, err := job.NewRunObject(r.ID, spec, f, r, queueTime)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingRun{run: run, client: client})
	}
	return pending, nil
}

// delivery is the result of the enqueue rounds of one dispatch.
type delivery struct {
	failed  []pendingRun
	lastErr error
}

// deliver runs enqueue rounds until nothing is pending or the attempt
// budget is spent. The error is non-nil only when the context ended during
// a backoff wait.
func (c *Coordinator) deliver(ctx context.Context, r *response.Response, pending []pendingRun, out *Outcome) (delivery, error) {
	attempts := max(c.policy.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			c.extensions.EmitDispatchRetrying(ctx, r, names(pending), attempt, lastErr)
			c.logger.Info("retrying dispatch",
				slog.String("response_id", r.ID.String()),
				slog.Any("pending", names(pending)),
				slog.Int("attempt", attempt),
			)
			if err := c.policy.Wait(ctx, attempt); err != nil {
				return delivery{failed: pending, lastErr: lastErr}, err
			}
		}

		out.Attempts = attempt
		var accepted []string
		pending, accepted, lastErr = c.enqueueRound(ctx, pending, attempt)
		out.Enqueued = append(out.Enqueued, accepted...)
	}
	return delivery{failed: pending, lastErr: lastErr}, nil
}

// enqueueRound submits every pending run concurrently and waits for all of
// them. Each run is stamped with a fresh queue time.
func (c *Coordinator) enqueueRound(ctx context.Context, pending []pendingRun, attempt int) ([]pendingRun, []string, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   []pendingRun
		accepted []string
		errs     []error
	)

	queueTime := c.now()
	actx := middleware.WithAttempt(ctx, attempt)

	for _, p := range pending {
		run := *p.run
		run.QueueTime = queueTime.UTC()
		p.run = &run

		wg.Add(1)
		go func() {
			defer wg.Done()

			err := c.mw(actx, p.run, func(ctx context.Context) error {
				return p.client.AddJob(ctx, p.run)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, p)
				errs = append(errs, fmt.Errorf("%s: %w", p.run.Name(), err))
				return
			}
			accepted = append(accepted, p.run.Name())
			c.extensions.EmitJobEnqueued(ctx, p.run, attempt)
		}()
	}
	wg.Wait()

	return failed, accepted, errors.Join(errs...)
}

var errNotMarked = errors.New("response not marked")

// markProcessed flips the processed flag under the retry policy.
func (c *Coordinator) markProcessed(ctx context.Context, r *response.Response, out *Outcome) error {
	attempts, err := c.policy.Retry(ctx, func(ctx context.Context, _ int) error {
		if c.responses.MarkProcessed(ctx, r.ID) {
			return nil
		}
		return errNotMarked
	})
	if err == nil {
		out.Processed = true
		r.Processed = true
		return nil
	}

	markErr := fmt.Errorf("%w: response %s after %d attempts: %w",
		formdispatch.ErrMarkProcessedFailed, r.ID, attempts, err)
	c.logger.Error("jobs enqueued but response not marked processed",
		slog.String("response_id", r.ID.String()),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
	c.extensions.EmitDispatchFailed(ctx, r, nil, attempts, markErr)
	return markErr
}

// Redispatch loads a stored response and its form and dispatches it again.
// A response whose jobs are all unknown reports ErrUnknownJob.
func (c *Coordinator) Redispatch(ctx context.Context, responseID id.ID) error {
	r, err := c.responses.Get(ctx, responseID)
	if err != nil {
		return err
	}
	f, err := c.forms.GetForm(ctx, r.FormID)
	if err != nil {
		return err
	}

	out, err := c.Dispatch(ctx, f, r)
	if err != nil {
		return err
	}
	if !out.Processed {
		return fmt.Errorf("%w: response %s: %s",
			formdispatch.ErrUnknownJob, responseID, strings.Join(out.Skipped, ","))
	}
	return nil
}

func names(runs []pendingRun) []string {
	out := make([]string, len(runs))
	for i, p := range runs {
		out[i] = p.run.Name()
	}
	return out
}
