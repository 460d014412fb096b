package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/formdispatch/job"
)

// jobDocument is one entry of FORMDISPATCH_JOB_CONFIGURATION.
type jobDocument struct {
	Name            string          `json:"name"`
	RedisURL        string          `json:"redisURL"`
	BackoffStrategy string          `json:"backoffStrategy"`
	BackoffDelay    json.RawMessage `json:"backoffDelay"`
	Retries         int             `json:"retries"`
	Timeout         json.RawMessage `json:"timeout"`
	EnqueueTimeout  json.RawMessage `json:"enqueueTimeout"`
	RateLimit       float64         `json:"rateLimit"`
	RateBurst       int             `json:"rateBurst"`
	MaxConcurrency  int             `json:"maxConcurrency"`
}

// ParseJobConfiguration decodes a JSON object of job configs keyed by job
// name. Durations are milliseconds when numeric and Go duration strings
// otherwise.
func ParseJobConfiguration(data []byte) (map[string]job.Config, error) {
	var docs map[string]jobDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("config: job configuration: %w", err)
	}

	out := make(map[string]job.Config, len(docs))
	for name, d := range docs {
		c := job.Config{
			Name:            d.Name,
			RedisURL:        d.RedisURL,
			BackoffStrategy: d.BackoffStrategy,
			Retries:         d.Retries,
			RateLimit:       d.RateLimit,
			RateBurst:       d.RateBurst,
			MaxConcurrency:  d.MaxConcurrency,
		}
		if c.Name == "" {
			c.Name = name
		}

		var err error
		if c.BackoffDelay, err = parseMillis(d.BackoffDelay); err != nil {
			return nil, fmt.Errorf("config: job %q: backoffDelay: %w", name, err)
		}
		if c.Timeout, err = parseMillis(d.Timeout); err != nil {
			return nil, fmt.Errorf("config: job %q: timeout: %w", name, err)
		}
		if c.EnqueueTimeout, err = parseMillis(d.EnqueueTimeout); err != nil {
			return nil, fmt.Errorf("config: job %q: enqueueTimeout: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func parseMillis(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return time.ParseDuration(s)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %s", raw)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
