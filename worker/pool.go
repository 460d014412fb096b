// Package worker runs dispatches off the request path. Ingestion hands each
// stored response to a Pool, whose goroutines re-read the form and call the
// dispatch coordinator. Submit never blocks and never sheds work: once the
// buffered channel is full, requests wait in an overflow FIFO that a feeder
// goroutine moves onto the channel as workers free up.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xraph/formdispatch/dispatcher"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/response"
)

// ErrPoolStopped is returned by Submit when the pool is not running.
var ErrPoolStopped = errors.New("worker: pool not running")

// Request asks the pool to dispatch one stored response.
type Request struct {
	FormID   string
	Response *response.Response
}

// Dispatcher dispatches one response.
type Dispatcher interface {
	Dispatch(ctx context.Context, f *form.Form, r *response.Response) (*dispatcher.Outcome, error)
}

// Pool manages a set of goroutines that consume dispatch requests from a
// buffered channel backed by an unbounded overflow queue.
type Pool struct {
	forms       form.Store
	dispatcher  Dispatcher
	concurrency int
	bufferSize  int
	logger      *slog.Logger

	requests chan Request
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool

	// overflow holds requests that found the channel full, oldest first.
	// Only the feeder removes from it.
	omu      sync.Mutex
	overflow []Request
	notify   chan struct{}
	closing  chan struct{}
	feederWG sync.WaitGroup

	// base is the parent of every dispatch context; cancelling it aborts
	// in-flight dispatches when a stop deadline passes.
	base   context.Context
	cancel context.CancelFunc

	active     atomic.Int64
	overflowed atomic.Int64
	completed  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithBufferSize sets how many requests may wait for a free worker.
func WithBufferSize(n int) PoolOption {
	return func(p *Pool) { p.bufferSize = n }
}

// NewPool creates a worker pool.
func NewPool(forms form.Store, d Dispatcher, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		forms:       forms,
		dispatcher:  d,
		concurrency: 8,
		bufferSize:  1024,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	if p.bufferSize < 0 {
		p.bufferSize = 0
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.requests = make(chan Request, p.bufferSize)
	p.notify = make(chan struct{}, 1)
	p.closing = make(chan struct{})
	p.base, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("buffer", p.bufferSize),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop(p.requests)
	}
	p.feederWG.Add(1)
	go p.feed()
	return nil
}

// Submit hands req to the pool without blocking. A request that finds
// the channel full, or finds older requests already waiting, joins the
// overflow queue. The only error is ErrPoolStopped.
func (p *Pool) Submit(req Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolStopped
	}

	p.omu.Lock()
	defer p.omu.Unlock()

	if len(p.overflow) == 0 {
		select {
		case p.requests <- req:
			return nil
		default:
		}
	}

	p.overflow = append(p.overflow, req)
	p.overflowed.Add(1)
	if len(p.overflow) == 1 {
		p.logger.Warn("dispatch workers saturated, queueing in overflow",
			slog.String("response_id", req.Response.ID.String()),
			slog.Int("buffer", p.bufferSize),
		)
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// feed moves overflow requests onto the worker channel in order. After
// Stop it keeps going until the overflow is empty or the stop deadline
// cancels the pool.
func (p *Pool) feed() {
	defer p.feederWG.Done()

	for {
		req, ok := p.peekOverflow()
		if !ok {
			select {
			case <-p.notify:
				continue
			case <-p.closing:
				if _, ok := p.peekOverflow(); !ok {
					return
				}
				continue
			}
		}

		select {
		case p.requests <- req:
			p.popOverflow()
		case <-p.base.Done():
			return
		}
	}
}

func (p *Pool) peekOverflow() (Request, bool) {
	p.omu.Lock()
	defer p.omu.Unlock()
	if len(p.overflow) == 0 {
		return Request{}, false
	}
	return p.overflow[0], true
}

func (p *Pool) popOverflow() {
	p.omu.Lock()
	defer p.omu.Unlock()
	p.overflow[0] = Request{}
	p.overflow = p.overflow[1:]
}

// Stop refuses new requests and lets the workers finish everything already
// accepted: in flight, buffered and overflowed. If ctx ends first the
// in-flight dispatches are cancelled and whatever is left stays
// unprocessed for the next recovery scan.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.closing)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.Int("pending", p.Pending()))

	done := make(chan struct{})
	go func() {
		p.feederWG.Wait()
		close(p.requests)
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active dispatches",
			slog.Int64("active", p.active.Load()),
			slog.Int("pending", p.Pending()),
		)
		p.cancel()
		<-done
	}
	p.cancel()

	return nil
}

// Pending returns the number of accepted requests no worker has picked up
// yet, buffered and overflowed.
func (p *Pool) Pending() int {
	p.omu.Lock()
	n := len(p.overflow)
	p.omu.Unlock()
	return n + len(p.requests)
}

// Overflowed returns how many requests had to wait in the overflow queue.
func (p *Pool) Overflowed() int64 { return p.overflowed.Load() }

// Completed returns how many requests a worker finished, successfully or
// not.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// loop is run by each worker goroutine until requests is closed and empty.
func (p *Pool) loop(requests <-chan Request) {
	defer p.wg.Done()

	for req := range requests {
		p.active.Add(1)
		p.handle(p.base, req)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}

func (p *Pool) handle(ctx context.Context, req Request) {
	if err := ctx.Err(); err != nil {
		return
	}

	rid := req.Response.ID.String()

	f, err := p.forms.GetForm(ctx, req.FormID)
	if err != nil {
		p.logger.Error("dispatch skipped, form unavailable",
			slog.String("response_id", rid),
			slog.String("form_id", req.FormID),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := p.dispatcher.Dispatch(ctx, f, req.Response); err != nil {
		p.logger.Error("dispatch failed",
			slog.String("response_id", rid),
			slog.String("error", err.Error()),
		)
	}
}
