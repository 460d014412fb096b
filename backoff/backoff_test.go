package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/formdispatch/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestImmediate_NeverWaits(t *testing.T) {
	var s backoff.Immediate
	for attempt := 1; attempt <= 5; attempt++ {
		if got := s.Delay(attempt); got != 0 {
			t.Errorf("Delay(%d) = %v, want 0", attempt, got)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 3*time.Second)
	if got := e.Delay(10); got != 3*time.Second {
		t.Errorf("Delay(10) = %v, want %v", got, 3*time.Second)
	}
}

func TestDefaultStrategy_MatchesDispatchSchedule(t *testing.T) {
	s := backoff.DefaultStrategy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		delay2  time.Duration
	}{
		{"immediate", backoff.NameImmediate, false, 0},
		{"fixed", backoff.NameFixed, false, 500 * time.Millisecond},
		{"empty defaults to fixed", "", false, 500 * time.Millisecond},
		{"exponential", backoff.NameExponential, false, time.Second},
		{"unknown", "linear", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := backoff.FromName(tt.input, 500*time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromName(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := s.Delay(2); got != tt.delay2 {
				t.Errorf("Delay(2) = %v, want %v", got, tt.delay2)
			}
		})
	}
}

func TestPolicy_RetryStopsOnSuccess(t *testing.T) {
	p := backoff.Policy{Attempts: 5, Strategy: backoff.Immediate{}}

	calls := 0
	n, err := p.Retry(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if n != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", n, calls)
	}
}

func TestPolicy_RetryExhausts(t *testing.T) {
	p := backoff.Policy{Attempts: 4, Strategy: backoff.Immediate{}}
	boom := errors.New("boom")

	calls := 0
	n, err := p.Retry(context.Background(), func(context.Context, int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if n != 4 || calls != 4 {
		t.Errorf("attempts = %d, calls = %d, want 4", n, calls)
	}
}

func TestPolicy_WaitHonorsContext(t *testing.T) {
	p := backoff.Policy{Attempts: 5, Strategy: backoff.NewConstant(time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPolicy_FirstAttemptDoesNotWait(t *testing.T) {
	p := backoff.Policy{Attempts: 5, Strategy: backoff.NewConstant(time.Hour)}

	start := time.Now()
	if err := p.Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first attempt waited %v", elapsed)
	}
}
