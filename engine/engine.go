package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/backoff"
	"github.com/xraph/formdispatch/dispatcher"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/ingest"
	"github.com/xraph/formdispatch/job"
	mw "github.com/xraph/formdispatch/middleware"
	"github.com/xraph/formdispatch/observability"
	"github.com/xraph/formdispatch/queue"
	"github.com/xraph/formdispatch/recovery"
	"github.com/xraph/formdispatch/response"
	"github.com/xraph/formdispatch/store"
	"github.com/xraph/formdispatch/worker"
)

const instrumentationName = "github.com/xraph/formdispatch"

// ErrAlreadyStarted is returned by Start and RunRecovery after either has
// been called once.
var ErrAlreadyStarted = errors.New("engine: already started")

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *formdispatch.Dispatcher
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	queues     *queue.Set
	logger     *slog.Logger

	allocator   *id.Allocator
	responses   *response.Service
	coordinator *dispatcher.Coordinator
	pool        *worker.Pool
	dlqService  *dlq.Service
	ingest      *ingest.Service

	bo      backoff.Strategy
	mws     []mw.Middleware
	checker form.AnswerChecker
	fatal   ingest.FatalHandler

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu             sync.Mutex
	started        bool
	scanner        *recovery.Scanner
	cancelRecovery context.CancelFunc
	recoveryDone   chan struct{}
	recovered      int
	recoveryErr    error
}

// Option configures an Engine.
type Option func(*Engine)

// WithQueues registers the job queue clients. A client whose name has a
// config in the job registry is wrapped with that config's rate limit.
func WithQueues(clients ...queue.Client) Option {
	return func(eng *Engine) {
		for _, c := range clients {
			eng.queues.Add(c)
		}
	}
}

// WithJobRegistry sets the job configurations used for per-job enqueue
// timeouts and rate limits.
func WithJobRegistry(r *job.Registry) Option {
	return func(eng *Engine) {
		eng.registry = r
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the enqueue chain, inside the
// built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the wait strategy between dispatch attempts. If not
// set, an exponential strategy starting at Config.DispatchBaseDelay is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithChecker sets the answer checker used at ingestion.
func WithChecker(c form.AnswerChecker) Option {
	return func(eng *Engine) {
		eng.checker = c
	}
}

// WithFatalHandler sets the function called when the shard runs out of
// identities.
func WithFatalHandler(fn ingest.FatalHandler) Option {
	return func(eng *Engine) {
		eng.fatal = fn
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the enqueue
// tracing middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it. If not set, the
// global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement store.Store.
func Build(d *formdispatch.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	cfg := d.Config()

	if d.Store() == nil {
		return nil, formdispatch.ErrNoStore
	}
	s, ok := d.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("formdispatch: store %T does not implement store.Store", d.Store())
	}

	alloc, err := id.NewAllocator(cfg.ShardID)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		d:            d,
		store:        s,
		extensions:   ext.NewRegistry(logger),
		registry:     job.NewRegistry(),
		queues:       queue.NewSet(),
		logger:       logger,
		allocator:    alloc,
		recoveryDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(eng)
	}

	eng.applyQueueLimits()

	policy := backoff.Policy{Attempts: cfg.DispatchAttempts, Strategy: eng.bo}
	if policy.Attempts <= 0 {
		policy.Attempts = backoff.DefaultPolicy().Attempts
	}
	if policy.Strategy == nil {
		policy.Strategy = backoff.NewExponential(cfg.DispatchBaseDelay, 0)
	}

	eng.extensions.Register(eng.observabilityExtension())

	eng.responses = response.NewService(s, alloc, response.WithLogger(logger))

	eng.coordinator = dispatcher.New(eng.responses, s, eng.queues,
		dispatcher.WithPolicy(policy),
		dispatcher.WithMiddleware(eng.middlewareStack()...),
		dispatcher.WithExtensions(eng.extensions),
		dispatcher.WithLogger(logger),
	)

	eng.pool = worker.NewPool(s, eng.coordinator, logger,
		worker.WithPoolConcurrency(cfg.Workers),
		worker.WithBufferSize(cfg.BufferSize),
	)

	eng.dlqService = dlq.NewService(s, eng.coordinator)
	eng.extensions.Register(dlq.NewExtension(eng.dlqService, logger))

	ingestOpts := []ingest.Option{
		ingest.WithExtensions(eng.extensions),
		ingest.WithLogger(logger),
	}
	if eng.checker != nil {
		ingestOpts = append(ingestOpts, ingest.WithChecker(eng.checker))
	}
	if eng.fatal != nil {
		ingestOpts = append(ingestOpts, ingest.WithFatalHandler(eng.fatal))
	}
	eng.ingest = ingest.New(s, eng.responses, eng.pool, ingestOpts...)

	// Wire back into the Dispatcher.
	d.SetPool(eng.pool)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// applyQueueLimits wraps every registered client that has a job config
// with that config's rate limit and concurrency cap.
func (eng *Engine) applyQueueLimits() {
	limited := queue.NewSet()
	for _, name := range eng.queues.Names() {
		c, _ := eng.queues.Get(name)
		if jc, ok := eng.registry.Get(name); ok {
			c = queue.Limit(c, queue.Config{
				Name:           name,
				MaxConcurrency: jc.MaxConcurrency,
				RateLimit:      jc.RateLimit,
				RateBurst:      jc.RateBurst,
			})
		}
		limited.Add(c)
	}
	eng.queues = limited
}

// middlewareStack builds recover → tracing → metrics → logging → timeout,
// followed by user middleware.
func (eng *Engine) middlewareStack() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	enqueueTimeout := func(jobName string) time.Duration {
		if c, ok := eng.registry.Get(jobName); ok {
			return c.EnqueueTimeout
		}
		return 0
	}

	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(enqueueTimeout, eng.logger),
	}
	return append(all, eng.mws...)
}

func (eng *Engine) observabilityExtension() *observability.MetricsExtension {
	if eng.meterProvider != nil {
		return observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	}
	return observability.NewMetricsExtension()
}

// prepare restores the allocator from storage, checks every queue and
// builds the recovery scanner bounded by the restored sequence.
func (eng *Engine) prepare(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.started {
		return ErrAlreadyStarted
	}

	last, err := eng.responses.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover identity allocator: %w", err)
	}

	if err := eng.queues.ReadyAll(ctx); err != nil {
		return fmt.Errorf("queues not ready: %w", err)
	}

	eng.scanner = recovery.New(eng.responses, eng.store, eng.coordinator,
		recovery.WithBatchSize(eng.d.Config().RecoveryBatchSize),
		recovery.WithUpperBound(last),
		recovery.WithExtensions(eng.extensions),
		recovery.WithLogger(eng.logger),
	)
	eng.started = true
	return nil
}

// Start restores the allocator, waits for every queue to become ready,
// starts the dispatch workers and launches the recovery pass in the
// background. Startup fails if any queue cannot become ready.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.prepare(ctx); err != nil {
		return err
	}
	if err := eng.d.Start(ctx); err != nil {
		// No recovery pass will run, so Stop must not wait for one.
		eng.mu.Lock()
		eng.started = false
		eng.mu.Unlock()
		return err
	}

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eng.mu.Lock()
	eng.cancelRecovery = cancel
	eng.mu.Unlock()

	go func() {
		defer cancel()
		if _, err := eng.runScanner(rctx); err != nil && !errors.Is(err, context.Canceled) {
			eng.logger.Error("recovery pass failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// RunRecovery prepares the engine and runs the recovery pass in the
// foreground without starting the dispatch workers. It returns the number
// of responses reprocessed.
func (eng *Engine) RunRecovery(ctx context.Context) (int, error) {
	if err := eng.prepare(ctx); err != nil {
		return 0, err
	}
	return eng.runScanner(ctx)
}

func (eng *Engine) runScanner(ctx context.Context) (int, error) {
	n, err := eng.scanner.Run(ctx)

	eng.mu.Lock()
	eng.recovered, eng.recoveryErr = n, err
	eng.mu.Unlock()
	close(eng.recoveryDone)

	return n, err
}

// WaitRecovery blocks until the recovery pass finishes or ctx ends and
// returns its result.
func (eng *Engine) WaitRecovery(ctx context.Context) (int, error) {
	select {
	case <-eng.recoveryDone:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.recovered, eng.recoveryErr
}

// Stop cancels a running recovery pass, drains the dispatch workers and
// closes the store, then closes every queue.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	cancel, started := eng.cancelRecovery, eng.started
	eng.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		select {
		case <-eng.recoveryDone:
		case <-ctx.Done():
			eng.logger.Warn("recovery did not stop before shutdown deadline")
		}
	}

	stopErr := eng.d.Stop(ctx)
	if err := eng.queues.CloseAll(ctx); err != nil {
		eng.logger.Error("queue close error", slog.String("error", err.Error()))
		stopErr = errors.Join(stopErr, err)
	}
	return stopErr
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Queues returns the registered queue clients.
func (eng *Engine) Queues() *queue.Set { return eng.queues }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *formdispatch.Dispatcher { return eng.d }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }

// Responses returns the response service.
func (eng *Engine) Responses() *response.Service { return eng.responses }

// Coordinator returns the dispatch coordinator.
func (eng *Engine) Coordinator() *dispatcher.Coordinator { return eng.coordinator }

// Pool returns the dispatch worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// DLQService returns the engine's DLQ service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Ingest returns the ingestion service.
func (eng *Engine) Ingest() *ingest.Service { return eng.ingest }
