package job_test

import (
	"testing"
	"time"

	"github.com/xraph/formdispatch/job"
)

func TestLoadConfigs_AppliesDefaults(t *testing.T) {
	r, err := job.LoadConfigs([]string{"email"}, map[string]job.Config{
		"email": {RedisURL: "redis://cache:6379/2"},
	})
	if err != nil {
		t.Fatalf("LoadConfigs: %v", err)
	}

	c, ok := r.Get("email")
	if !ok {
		t.Fatal("expected email config")
	}
	if c.Name != "email" {
		t.Errorf("Name = %q, want %q", c.Name, "email")
	}
	if c.RedisURL != "redis://cache:6379/2" {
		t.Errorf("RedisURL = %q", c.RedisURL)
	}
	if c.BackoffStrategy != "fixed" {
		t.Errorf("BackoffStrategy = %q, want fixed", c.BackoffStrategy)
	}
	if c.BackoffDelay != time.Second {
		t.Errorf("BackoffDelay = %v, want 1s", c.BackoffDelay)
	}
	if c.Retries != 5 {
		t.Errorf("Retries = %d, want 5", c.Retries)
	}
	if c.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", c.Timeout)
	}
}

func TestLoadConfigs_MissingConfigFails(t *testing.T) {
	_, err := job.LoadConfigs([]string{"email", "webhook"}, map[string]job.Config{
		"email": {},
	})
	if err == nil {
		t.Fatal("expected error for allowed job without config")
	}
}

func TestLoadConfigs_IgnoresUnlistedJobs(t *testing.T) {
	r, err := job.LoadConfigs([]string{"email"}, map[string]job.Config{
		"email":   {},
		"archive": {},
	})
	if err != nil {
		t.Fatalf("LoadConfigs: %v", err)
	}
	if _, ok := r.Get("archive"); ok {
		t.Error("archive should not be registered")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "email" {
		t.Errorf("Names = %v, want [email]", names)
	}
}

func TestLoadConfigs_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  job.Config
	}{
		{"unknown strategy", job.Config{BackoffStrategy: "linear"}},
		{"negative retries", job.Config{Retries: -1}},
		{"negative rate", job.Config{RateLimit: -2}},
		{"mismatched name", job.Config{Name: "other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := job.LoadConfigs([]string{"email"}, map[string]job.Config{"email": tt.cfg})
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := job.NewRegistry()
	for _, n := range []string{"webhook", "archive", "email"} {
		if err := r.Register(job.Config{Name: n}); err != nil {
			t.Fatalf("Register(%q): %v", n, err)
		}
	}
	names := r.Names()
	want := []string{"archive", "email", "webhook"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}
}
