package formdispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/formdispatch/id"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the lifecycle slice of store.Store. The root package cannot
// import store without a cycle, so the Dispatcher holds only this much.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher carries the settings, logger and store every subsystem shares
// and owns the dispatch pool's lifecycle. engine.Build attaches the pool
// and the extension registry.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions shutdownEmitter
	pool       poolRunner

	started bool
}

// New applies opts over DefaultConfig and slog.Default.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy.
func (d *Dispatcher) Config() Config { return d.config }

// SetPool is called by engine.Build.
func (d *Dispatcher) SetPool(p poolRunner) { d.pool = p }

// SetExtensions is called by engine.Build.
func (d *Dispatcher) SetExtensions(e shutdownEmitter) { d.extensions = e }

// Start launches the dispatch pool. It needs a store and an attached pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store == nil {
		return ErrNoStore
	}
	if d.pool == nil {
		return errors.New("formdispatch: no dispatch pool attached")
	}
	if err := d.pool.Start(ctx); err != nil {
		return err
	}
	d.started = true
	return nil
}

// Stop drains the pool within ctx, runs the shutdown hooks, then closes
// the store. A pool that misses the deadline is logged, not returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.started {
		if err := d.pool.Stop(ctx); err != nil {
			d.logger.Error("dispatch pool did not drain", slog.String("error", err.Error()))
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		if cfg.ShardID > id.MaxShard {
			return fmt.Errorf("%w: %d", ErrShardOutOfRange, cfg.ShardID)
		}
		d.config = cfg
		return nil
	}
}

// WithShardID sets the shard identities are allocated for.
func WithShardID(shard uint64) Option {
	return func(d *Dispatcher) error {
		if shard > id.MaxShard {
			return fmt.Errorf("%w: %d", ErrShardOutOfRange, shard)
		}
		d.config.ShardID = shard
		return nil
	}
}

// WithWorkers sets the number of dispatch goroutines.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) error {
		d.config.Workers = n
		return nil
	}
}

// WithBufferSize sets the capacity of the ingestion hand-off channel.
// Requests beyond it overflow, they are never dropped.
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) error {
		d.config.BufferSize = n
		return nil
	}
}

// WithDispatchRetry sets the attempt budget and the base delay of the
// exponential wait between attempts.
func WithDispatchRetry(attempts int, baseDelay time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.DispatchAttempts = attempts
		d.config.DispatchBaseDelay = baseDelay
		return nil
	}
}

// WithRecoveryBatchSize sets the page size of the recovery scan.
func WithRecoveryBatchSize(n int) Option {
	return func(d *Dispatcher) error {
		d.config.RecoveryBatchSize = n
		return nil
	}
}

// WithShutdownTimeout sets the graceful shutdown budget.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ShutdownTimeout = timeout
		return nil
	}
}

// WithLogger sets the logger every subsystem derives from.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the backend. engine.Build requires a full store.Store.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
