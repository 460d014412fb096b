package job

import (
	"fmt"
	"time"

	"github.com/xraph/formdispatch/backoff"
)

// Config configures one job type: where its queue lives and how the queue
// retries the job after accepting it.
type Config struct {
	// Name is the job name forms refer to.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// RedisURL is the broker connection string for this job's queue.
	RedisURL string `json:"redisURL" yaml:"redis_url" mapstructure:"redis_url"`

	// BackoffStrategy is one of immediate, fixed, exponential.
	BackoffStrategy string `json:"backoffStrategy" yaml:"backoff_strategy" mapstructure:"backoff_strategy"`

	// BackoffDelay is the base delay of BackoffStrategy.
	BackoffDelay time.Duration `json:"backoffDelay" yaml:"backoff_delay" mapstructure:"backoff_delay"`

	// Retries is how many times the queue re-runs a failing job.
	Retries int `json:"retries" yaml:"retries" mapstructure:"retries"`

	// Timeout is how long a consumer may run the job.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// EnqueueTimeout bounds a single add call to the queue.
	EnqueueTimeout time.Duration `json:"enqueueTimeout" yaml:"enqueue_timeout" mapstructure:"enqueue_timeout"`

	// RateLimit caps enqueues per second. Zero means unlimited.
	RateLimit float64 `json:"rateLimit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int `json:"rateBurst" yaml:"rate_burst" mapstructure:"rate_burst"`

	// MaxConcurrency caps simultaneous in-flight adds. Zero means no cap.
	MaxConcurrency int `json:"maxConcurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// DefaultConfig returns the config a job type gets for every field left
// unset.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		RedisURL:        "redis://127.0.0.1:6379",
		BackoffStrategy: backoff.NameFixed,
		BackoffDelay:    1 * time.Second,
		Retries:         5,
		Timeout:         5 * time.Minute,
		EnqueueTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults(name string) Config {
	d := DefaultConfig(name)
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.RedisURL == "" {
		c.RedisURL = d.RedisURL
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = d.BackoffStrategy
	}
	if c.BackoffDelay == 0 {
		c.BackoffDelay = d.BackoffDelay
	}
	if c.Retries == 0 {
		c.Retries = d.Retries
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = d.EnqueueTimeout
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// Validate checks the config for values no broker can honour.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job: config has no name")
	}
	if _, err := backoff.FromName(c.BackoffStrategy, c.BackoffDelay); err != nil {
		return fmt.Errorf("job %q: %w", c.Name, err)
	}
	if c.Retries < 0 {
		return fmt.Errorf("job %q: retries must not be negative", c.Name)
	}
	if c.Timeout < 0 || c.EnqueueTimeout < 0 || c.BackoffDelay < 0 {
		return fmt.Errorf("job %q: durations must not be negative", c.Name)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("job %q: rate limit must not be negative", c.Name)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("job %q: max concurrency must not be negative", c.Name)
	}
	return nil
}
