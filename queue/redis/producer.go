// Package redis implements queue.Client on Redis. Each job type owns a Hash
// of job envelopes keyed by run ID and a List of run IDs waiting for a
// consumer. Adds are idempotent: a run ID already present in the Hash is
// accepted without a second push.
//
// Usage:
//
//	p, err := redisqueue.Open(jobConfig)
//	if err := p.Ready(ctx); err != nil { ... }
//	set.Add(p)
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/queue"
)

var _ queue.Client = (*Producer)(nil)

// addScript stores the envelope and pushes the run ID unless the run ID is
// already known. Returns 1 when added, 0 for a duplicate.
var addScript = goredis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1
`)

// Option configures the Producer.
type Option func(*Producer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(p *Producer) { p.prefix = prefix }
}

// Producer submits run objects for one job type.
type Producer struct {
	client     goredis.UniversalClient
	ownsClient bool
	cfg        job.Config
	prefix     string
	logger     *slog.Logger
}

// New creates a producer over an existing client. The caller owns the
// client lifecycle.
func New(client goredis.UniversalClient, cfg job.Config, opts ...Option) *Producer {
	p := &Producer{
		client: client,
		cfg:    cfg,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open connects to cfg.RedisURL. The producer owns the connection and
// closes it on Close.
func Open(cfg job.Config, opts ...Option) (*Producer, error) {
	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/redis: parse url for %q: %w", cfg.Name, err)
	}
	p := New(goredis.NewClient(redisOpts), cfg, opts...)
	p.ownsClient = true
	return p, nil
}

// Client returns the underlying Redis client.
func (p *Producer) Client() goredis.UniversalClient { return p.client }

// Name implements queue.Client.
func (p *Producer) Name() string { return p.cfg.Name }

// envelope is the stored job record.
type envelope struct {
	Data    *job.RunObject  `json:"data"`
	Options envelopeOptions `json:"options"`
	Status  string          `json:"status"`
}

type envelopeOptions struct {
	Timestamp int64           `json:"timestamp"`
	Timeout   int64           `json:"timeout"`
	Retries   int             `json:"retries"`
	Backoff   envelopeBackoff `json:"backoff"`
}

type envelopeBackoff struct {
	Strategy string `json:"strategy"`
	Delay    int64  `json:"delay"`
}

// AddJob implements queue.Client. The call is bounded by the job type's
// EnqueueTimeout.
func (p *Producer) AddJob(ctx context.Context, run *job.RunObject) error {
	data, err := json.Marshal(envelope{
		Data: run,
		Options: envelopeOptions{
			Timestamp: run.QueueTime.UnixMilli(),
			Timeout:   p.cfg.Timeout.Milliseconds(),
			Retries:   p.cfg.Retries,
			Backoff: envelopeBackoff{
				Strategy: p.cfg.BackoffStrategy,
				Delay:    p.cfg.BackoffDelay.Milliseconds(),
			},
		},
		Status: "created",
	})
	if err != nil {
		return fmt.Errorf("formdispatch/redis: encode %s: %w", run.ID, err)
	}

	if p.cfg.EnqueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.EnqueueTimeout)
		defer cancel()
	}

	keys := []string{jobsKey(p.prefix, p.cfg.Name), waitingKey(p.prefix, p.cfg.Name)}
	added, err := addScript.Run(ctx, p.client, keys, run.ID, data).Int()
	if err != nil {
		return fmt.Errorf("formdispatch/redis: add %s: %w", run.ID, err)
	}
	if added == 0 {
		p.logger.Debug("run already queued",
			slog.String("queue", p.cfg.Name),
			slog.String("run_id", run.ID),
		)
	}
	return nil
}

// Ready pings the server and preloads the add script.
func (p *Producer) Ready(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("formdispatch/redis: ping %q: %w", p.cfg.Name, err)
	}
	if err := addScript.Load(ctx, p.client).Err(); err != nil {
		return fmt.Errorf("formdispatch/redis: load script %q: %w", p.cfg.Name, err)
	}
	return nil
}

// Close closes the connection when the producer opened it.
func (p *Producer) Close(_ context.Context) error {
	if !p.ownsClient {
		return nil
	}
	return p.client.Close()
}

// Waiting returns the number of run IDs awaiting a consumer.
func (p *Producer) Waiting(ctx context.Context) (int64, error) {
	n, err := p.client.LLen(ctx, waitingKey(p.prefix, p.cfg.Name)).Result()
	if err != nil {
		return 0, fmt.Errorf("formdispatch/redis: waiting %q: %w", p.cfg.Name, err)
	}
	return n, nil
}

// Lookup returns the stored run object for a run ID, or false when the
// queue has never accepted it.
func (p *Producer) Lookup(ctx context.Context, runID string) (*job.RunObject, bool, error) {
	raw, err := p.client.HGet(ctx, jobsKey(p.prefix, p.cfg.Name), runID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("formdispatch/redis: lookup %s: %w", runID, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, false, fmt.Errorf("formdispatch/redis: decode %s: %w", runID, err)
	}
	return env.Data, true, nil
}

// QueueTime reports when the stored envelope for runID was created.
func (p *Producer) QueueTime(ctx context.Context, runID string) (time.Time, bool, error) {
	run, ok, err := p.Lookup(ctx, runID)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return run.QueueTime, true, nil
}
