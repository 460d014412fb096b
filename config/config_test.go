package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/config"
)

func envViper(t *testing.T, env map[string]string) *viper.Viper {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	v := viper.New()
	config.Bind(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Store != config.StoreMongo {
		t.Errorf("Store = %q", c.Store)
	}
	if c.Mongo.URL != "mongodb://127.0.0.1:27017" || c.Mongo.Database != "default" {
		t.Errorf("Mongo = %+v", c.Mongo)
	}
	if c.Mongo.Responses != "responses" || c.Mongo.Forms != "forms" {
		t.Errorf("collections = %+v", c.Mongo)
	}
	if c.HTTP.Addr != "0.0.0.0:3000" {
		t.Errorf("HTTP.Addr = %q", c.HTTP.Addr)
	}
	if c.Dispatch.Workers != 8 || c.Dispatch.Buffer != 1024 {
		t.Errorf("Dispatch = %+v", c.Dispatch)
	}
	if c.Recovery.BatchSize != 10 {
		t.Errorf("Recovery.BatchSize = %d", c.Recovery.BatchSize)
	}
	if c.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", c.ShutdownTimeout)
	}
	if c.DLQ.PurgeSchedule != "" || c.DLQ.Retention != 30*24*time.Hour {
		t.Errorf("DLQ = %+v", c.DLQ)
	}
	if len(c.AllowedJobs) != 0 || len(c.Jobs) != 0 {
		t.Errorf("jobs = %v %v", c.AllowedJobs, c.Jobs)
	}
	if c.Level() != slog.LevelInfo {
		t.Errorf("Level = %v", c.Level())
	}
}

func TestLoad_Environment(t *testing.T) {
	v := envViper(t, map[string]string{
		"FORMDISPATCH_SHARD_ID":          "7",
		"FORMDISPATCH_LOG_LEVEL":         "debug",
		"FORMDISPATCH_STORE":             "sqlite",
		"FORMDISPATCH_SQLITE_PATH":       "/tmp/fd.db",
		"FORMDISPATCH_HTTP_ADDR":         ":8080",
		"FORMDISPATCH_DISPATCH_WORKERS":  "3",
		"FORMDISPATCH_SHUTDOWN_TIMEOUT":  "2s",
		"FORMDISPATCH_ALLOWED_JOBS":      " email, webhook ,email,",
		"FORMDISPATCH_JOB_CONFIGURATION": `{"email":{"redisURL":"redis://a:6379","backoffDelay":2500},"webhook":{"backoffStrategy":"exponential","timeout":"1m"}}`,
	})

	c, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.ShardID != 7 || c.Store != config.StoreSQLite || c.SQLite.Path != "/tmp/fd.db" {
		t.Errorf("config = %+v", c)
	}
	if c.HTTP.Addr != ":8080" || c.Dispatch.Workers != 3 || c.ShutdownTimeout != 2*time.Second {
		t.Errorf("config = %+v", c)
	}
	if c.Level() != slog.LevelDebug {
		t.Errorf("Level = %v", c.Level())
	}
	if got := strings.Join(c.AllowedJobs, ","); got != "email,webhook" {
		t.Errorf("AllowedJobs = %q", got)
	}

	reg, err := c.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	email, ok := reg.Get("email")
	if !ok {
		t.Fatal("email not registered")
	}
	if email.RedisURL != "redis://a:6379" || email.BackoffDelay != 2500*time.Millisecond {
		t.Errorf("email = %+v", email)
	}
	if email.Retries != 5 || email.Timeout != 5*time.Minute {
		t.Errorf("email defaults = %+v", email)
	}
	webhook, _ := reg.Get("webhook")
	if webhook.BackoffStrategy != "exponential" || webhook.Timeout != time.Minute {
		t.Errorf("webhook = %+v", webhook)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formdispatch.yaml")
	doc := `
store: memory
shard_id: 2
allowed_jobs: [email]
jobs:
  email:
    redis_url: redis://queue:6379
    backoff_strategy: immediate
    enqueue_timeout: 3s
    rate_limit: 50
    max_concurrency: 4
recovery:
  batch_size: 25
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Store != config.StoreMemory || c.ShardID != 2 || c.Recovery.BatchSize != 25 {
		t.Errorf("config = %+v", c)
	}

	reg, err := c.Registry()
	if err != nil {
		t.Fatal(err)
	}
	email, ok := reg.Get("email")
	if !ok {
		t.Fatal("email not registered")
	}
	if email.RedisURL != "redis://queue:6379" || email.EnqueueTimeout != 3*time.Second {
		t.Errorf("email = %+v", email)
	}
	if email.RateLimit != 50 || email.RateBurst != 1 {
		t.Errorf("rate = %v/%d", email.RateLimit, email.RateBurst)
	}
	if email.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", email.MaxConcurrency)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"FORMDISPATCH_STORE": "cassandra"}, "unknown store"},
		{"postgres without url", map[string]string{"FORMDISPATCH_STORE": "postgres"}, "postgres.url"},
		{"bad log level", map[string]string{"FORMDISPATCH_LOG_LEVEL": "loud"}, "log level"},
		{"zero workers", map[string]string{"FORMDISPATCH_DISPATCH_WORKERS": "0"}, "dispatch.workers"},
		{"zero batch", map[string]string{"FORMDISPATCH_RECOVERY_BATCH_SIZE": "0"}, "batch_size"},
		{"bad purge schedule", map[string]string{"FORMDISPATCH_DLQ_PURGE_SCHEDULE": "every day"}, "purge_schedule"},
		{"zero retention", map[string]string{"FORMDISPATCH_DLQ_RETENTION": "0s"}, "dlq.retention"},
		{"allowed job without config", map[string]string{"FORMDISPATCH_ALLOWED_JOBS": "email"}, `"email"`},
		{"bad job json", map[string]string{"FORMDISPATCH_JOB_CONFIGURATION": "{"}, "job configuration"},
		{
			"unknown strategy",
			map[string]string{
				"FORMDISPATCH_ALLOWED_JOBS":      "email",
				"FORMDISPATCH_JOB_CONFIGURATION": `{"email":{"backoffStrategy":"random"}}`,
			},
			"email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(envViper(t, tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ShardOutOfRange(t *testing.T) {
	v := envViper(t, map[string]string{"FORMDISPATCH_SHARD_ID": "8192"})
	_, err := config.Load(v)
	if !errors.Is(err, formdispatch.ErrShardOutOfRange) {
		t.Errorf("err = %v, want ErrShardOutOfRange", err)
	}
}

func TestParseJobConfiguration_Durations(t *testing.T) {
	jobs, err := config.ParseJobConfiguration([]byte(`{
		"a": {"backoffDelay": 1500, "timeout": "90s", "enqueueTimeout": null},
		"b": {"name": "b", "backoffDelay": 0.5, "maxConcurrency": 3}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	a := jobs["a"]
	if a.Name != "a" || a.BackoffDelay != 1500*time.Millisecond || a.Timeout != 90*time.Second || a.EnqueueTimeout != 0 {
		t.Errorf("a = %+v", a)
	}
	if b := jobs["b"]; b.BackoffDelay != 500*time.Microsecond || b.MaxConcurrency != 3 {
		t.Errorf("b = %+v", b)
	}

	if _, err := config.ParseJobConfiguration([]byte(`{"a":{"timeout":true}}`)); err == nil {
		t.Error("expected error for boolean duration")
	}
}

func TestDispatcherOptions(t *testing.T) {
	v := envViper(t, map[string]string{
		"FORMDISPATCH_STORE":               "memory",
		"FORMDISPATCH_SHARD_ID":            "4",
		"FORMDISPATCH_DISPATCH_ATTEMPTS":   "2",
		"FORMDISPATCH_DISPATCH_BASE_DELAY": "10ms",
	})
	c, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}

	d, err := formdispatch.New(c.DispatcherOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	got := d.Config()
	if got.ShardID != 4 || got.DispatchAttempts != 2 || got.DispatchBaseDelay != 10*time.Millisecond {
		t.Errorf("dispatcher config = %+v", got)
	}
}

func TestYAML_RedactsPasswords(t *testing.T) {
	v := envViper(t, map[string]string{
		"FORMDISPATCH_STORE":             "postgres",
		"FORMDISPATCH_POSTGRES_URL":      "postgres://app:hunter2@db:5432/forms",
		"FORMDISPATCH_ALLOWED_JOBS":      "email",
		"FORMDISPATCH_JOB_CONFIGURATION": `{"email":{"redisURL":"redis://:s3cret@cache:6379"}}`,
	})
	c, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.YAML()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, secret := range []string{"hunter2", "s3cret"} {
		if strings.Contains(text, secret) {
			t.Errorf("YAML leaks %q:\n%s", secret, text)
		}
	}
	for _, want := range []string{"store: postgres", "shutdown_timeout: 10s", "db:5432"} {
		if !strings.Contains(text, want) {
			t.Errorf("YAML missing %q:\n%s", want, text)
		}
	}
	if c.Postgres.URL != "postgres://app:hunter2@db:5432/forms" {
		t.Error("YAML mutated the config")
	}
}

func TestLoad_Audit(t *testing.T) {
	v := envViper(t, map[string]string{
		"FORMDISPATCH_AUDIT_ENABLED": "true",
		"FORMDISPATCH_AUDIT_ACTIONS": "dispatch.failed, recovery.completed",
	})
	c, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Audit.Enabled {
		t.Error("audit not enabled")
	}
	if got := strings.Join(c.Audit.Actions, ","); got != "dispatch.failed,recovery.completed" {
		t.Errorf("Actions = %q", got)
	}
}
