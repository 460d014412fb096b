// Package config loads the process configuration of formdispatchd from
// FORMDISPATCH_* environment variables and an optional YAML file.
//
// Job types come from two keys. allowed_jobs names the job types forms may
// use; each allowed job needs an entry under jobs. In the environment,
// FORMDISPATCH_ALLOWED_JOBS is a comma list and FORMDISPATCH_JOB_CONFIGURATION
// is a JSON object keyed by job name whose duration fields are either
// milliseconds or Go duration strings:
//
//	FORMDISPATCH_ALLOWED_JOBS=email,webhook
//	FORMDISPATCH_JOB_CONFIGURATION='{"email":{"redisURL":"redis://cache:6379","backoffDelay":2000}}'
//
// In a YAML file the same settings are a list and a map:
//
//	allowed_jobs: [email]
//	jobs:
//	  email:
//	    redis_url: redis://cache:6379
//	    backoff_delay: 2s
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "FORMDISPATCH"

// Store backends.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config is the effective process configuration.
type Config struct {
	ShardID         uint64                `yaml:"shard_id"`
	LogLevel        string                `yaml:"log_level"`
	Store           string                `yaml:"store"`
	Mongo           Mongo                 `yaml:"mongo"`
	Postgres        Postgres              `yaml:"postgres"`
	SQLite          SQLite                `yaml:"sqlite"`
	HTTP            HTTP                  `yaml:"http"`
	AllowedJobs     []string              `yaml:"allowed_jobs"`
	Jobs            map[string]job.Config `yaml:"jobs"`
	Dispatch        Dispatch              `yaml:"dispatch"`
	Recovery        Recovery              `yaml:"recovery"`
	DLQ             DLQ                   `yaml:"dlq"`
	Audit           Audit                 `yaml:"audit"`
	ShutdownTimeout time.Duration         `yaml:"shutdown_timeout"`
}

// Mongo configures the mongo store.
type Mongo struct {
	URL       string `yaml:"url"`
	Database  string `yaml:"database"`
	Responses string `yaml:"responses"`
	Forms     string `yaml:"forms"`
}

// Postgres configures the postgres store.
type Postgres struct {
	URL string `yaml:"url"`
}

// SQLite configures the sqlite store.
type SQLite struct {
	Path string `yaml:"path"`
}

// HTTP configures the ingestion API listener.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Dispatch configures the worker pool and the enqueue retry policy.
type Dispatch struct {
	Workers   int           `yaml:"workers"`
	Buffer    int           `yaml:"buffer"`
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Recovery configures the boot-time scan.
type Recovery struct {
	BatchSize int `yaml:"batch_size"`
}

// DLQ configures dead-letter retention. An empty PurgeSchedule disables
// the scheduled purge.
type DLQ struct {
	PurgeSchedule string        `yaml:"purge_schedule"`
	Retention     time.Duration `yaml:"retention"`
}

// Audit configures the audit trail written to the process log.
type Audit struct {
	Enabled bool     `yaml:"enabled"`
	Actions []string `yaml:"actions,omitempty"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	def := formdispatch.DefaultConfig()

	v.SetDefault("shard_id", def.ShardID)
	v.SetDefault("log_level", "info")
	v.SetDefault("store", StoreMongo)
	v.SetDefault("mongo.url", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "default")
	v.SetDefault("mongo.responses", "responses")
	v.SetDefault("mongo.forms", "forms")
	v.SetDefault("postgres.url", "")
	v.SetDefault("sqlite.path", "formdispatch.db")
	v.SetDefault("http.addr", "0.0.0.0:3000")
	v.SetDefault("allowed_jobs", "")
	v.SetDefault("job_configuration", "")
	v.SetDefault("dispatch.workers", def.Workers)
	v.SetDefault("dispatch.buffer", def.BufferSize)
	v.SetDefault("dispatch.attempts", def.DispatchAttempts)
	v.SetDefault("dispatch.base_delay", def.DispatchBaseDelay)
	v.SetDefault("recovery.batch_size", def.RecoveryBatchSize)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("dlq.purge_schedule", "")
	v.SetDefault("dlq.retention", 30*24*time.Hour)
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.actions", "")
}

// Bind points v at the FORMDISPATCH_ environment. Nested keys use an
// underscore, so mongo.url is read from FORMDISPATCH_MONGO_URL.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the configuration held by v. Callers that want
// the environment call Bind first, and ReadInConfig for a file.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	c := &Config{
		ShardID:  v.GetUint64("shard_id"),
		LogLevel: v.GetString("log_level"),
		Store:    strings.ToLower(v.GetString("store")),
		Mongo: Mongo{
			URL:       v.GetString("mongo.url"),
			Database:  v.GetString("mongo.database"),
			Responses: v.GetString("mongo.responses"),
			Forms:     v.GetString("mongo.forms"),
		},
		Postgres: Postgres{URL: v.GetString("postgres.url")},
		SQLite:   SQLite{Path: v.GetString("sqlite.path")},
		HTTP:     HTTP{Addr: v.GetString("http.addr")},
		Dispatch: Dispatch{
			Workers:   v.GetInt("dispatch.workers"),
			Buffer:    v.GetInt("dispatch.buffer"),
			Attempts:  v.GetInt("dispatch.attempts"),
			BaseDelay: v.GetDuration("dispatch.base_delay"),
		},
		Recovery:        Recovery{BatchSize: v.GetInt("recovery.batch_size")},
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		DLQ:             DLQ{PurgeSchedule: v.GetString("dlq.purge_schedule"), Retention: v.GetDuration("dlq.retention")},
		Audit:           Audit{Enabled: v.GetBool("audit.enabled")},
	}
	c.AllowedJobs = nameList(v.Get("allowed_jobs"))
	c.Audit.Actions = nameList(v.Get("audit.actions"))

	jobs, err := loadJobs(v)
	if err != nil {
		return nil, err
	}
	c.Jobs = jobs

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadJobs prefers the JSON document of FORMDISPATCH_JOB_CONFIGURATION and
// falls back to the jobs map of a YAML file.
func loadJobs(v *viper.Viper) (map[string]job.Config, error) {
	if raw := strings.TrimSpace(v.GetString("job_configuration")); raw != "" {
		jobs, err := ParseJobConfiguration([]byte(raw))
		if err != nil {
			return nil, err
		}
		return jobs, nil
	}

	jobs := map[string]job.Config{}
	if !v.IsSet("jobs") {
		return jobs, nil
	}
	if err := v.UnmarshalKey("jobs", &jobs); err != nil {
		return nil, fmt.Errorf("config: jobs: %w", err)
	}
	return jobs, nil
}

// nameList accepts either a comma list or a list of names. Blank and
// repeated names are dropped.
func nameList(raw any) []string {
	var names []string
	switch v := raw.(type) {
	case string:
		names = strings.Split(v, ",")
	case []string:
		names = v
	case []any:
		for _, n := range v {
			names = append(names, fmt.Sprint(n))
		}
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Validate checks values no component can start with.
func (c *Config) Validate() error {
	if c.ShardID > id.MaxShard {
		return fmt.Errorf("config: shard_id %d: %w", c.ShardID, formdispatch.ErrShardOutOfRange)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Store {
	case StoreMongo:
		if c.Mongo.URL == "" || c.Mongo.Database == "" {
			return fmt.Errorf("config: mongo store needs mongo.url and mongo.database")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("config: postgres store needs postgres.url")
		}
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("config: sqlite store needs sqlite.path")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}

	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("config: dispatch.workers must be positive")
	}
	if c.Dispatch.Buffer < 0 {
		return fmt.Errorf("config: dispatch.buffer must not be negative")
	}
	if c.Dispatch.Attempts <= 0 {
		return fmt.Errorf("config: dispatch.attempts must be positive")
	}
	if c.Dispatch.BaseDelay < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	if c.Recovery.BatchSize <= 0 {
		return fmt.Errorf("config: recovery.batch_size must be positive")
	}
	if c.DLQ.Retention <= 0 {
		return fmt.Errorf("config: dlq.retention must be positive")
	}
	if c.DLQ.PurgeSchedule != "" {
		if _, err := dlq.ParseSchedule(c.DLQ.PurgeSchedule); err != nil {
			return fmt.Errorf("config: dlq.purge_schedule: %w", err)
		}
	}

	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Registry builds the job registry of the allowed jobs.
func (c *Config) Registry() (*job.Registry, error) {
	return job.LoadConfigs(c.AllowedJobs, c.Jobs)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// DispatcherOptions translates the settings the Dispatcher owns.
func (c *Config) DispatcherOptions() []formdispatch.Option {
	return []formdispatch.Option{
		formdispatch.WithConfig(formdispatch.Config{
			ShardID:           c.ShardID,
			Workers:           c.Dispatch.Workers,
			BufferSize:        c.Dispatch.Buffer,
			DispatchAttempts:  c.Dispatch.Attempts,
			DispatchBaseDelay: c.Dispatch.BaseDelay,
			RecoveryBatchSize: c.Recovery.BatchSize,
			ShutdownTimeout:   c.ShutdownTimeout,
		}),
	}
}

// YAML renders the configuration with connection passwords masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.Mongo.URL = redact(c.Mongo.URL)
	out.Postgres.URL = redact(c.Postgres.URL)
	out.Jobs = make(map[string]job.Config, len(c.Jobs))
	for name, jc := range c.Jobs {
		jc.RedisURL = redact(jc.RedisURL)
		out.Jobs[name] = jc
	}
	return yaml.Marshal(&out)
}

// ParseLevel maps debug, info, warn (or warning) and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
	}
}

func redact(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
