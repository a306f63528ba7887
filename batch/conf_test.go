package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewExecutor_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		policy ExecutionPolicy
		opts   []Option
	}{
		{"nil policy", nil, nil},
		{"nil pointer policy", (*StreamedPolicy)(nil), nil},
		{"zero batch size", BatchedPolicy{}, nil},
		{"negative batch size", BatchedPolicy{BatchSize: -2}, nil},
		{"zero concurrency", StreamedPolicy{}, nil},
		{"rate limited without concurrency", RateLimitedPolicy{JobsPerSecond: 5}, nil},
		{"rate limited without rate", RateLimitedPolicy{MaxConcurrency: 2}, nil},
		{"rate limited negative burst", RateLimitedPolicy{MaxConcurrency: 2, JobsPerSecond: 5, Burst: -1}, nil},
		{"negative attempts", UnboundedPolicy{}, []Option{WithRetryPolicy(Attempts(-1))}},
		{"negative job timeout", UnboundedPolicy{}, []Option{WithJobTimeout(-time.Second)}},
		{"zero burst option", RateLimitedPolicy{MaxConcurrency: 2, JobsPerSecond: 5}, []Option{WithBurst(0)}},
		{"fail fast with unbounded retries", UnboundedPolicy{}, []Option{WithFailFast(), WithRetryPolicy(Forever(time.Second))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := NewExecutor[int](tt.policy, tt.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if exec != nil {
				t.Error("expected no executor on invalid config")
			}
		})
	}
}

func TestRunHelpers_RejectInvalidConfigBeforeRunning(t *testing.T) {
	started := false
	jobs := []Job[int]{func(ctx context.Context) (int, error) {
		started = true
		return 0, nil
	}}

	if _, err := RunBatched(context.Background(), jobs, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunBatched: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := RunStreamed(context.Background(), jobs, -1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunStreamed: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := RunRateLimited(context.Background(), jobs, 1, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunRateLimited: expected ErrInvalidConfig, got %v", err)
	}
	if started {
		t.Error("no job may start when the configuration is invalid")
	}
}

func TestNewExecutor_OnJobEndTypeMismatch(t *testing.T) {
	_, err := NewExecutor[int](UnboundedPolicy{},
		WithOnJobEnd(func(o Outcome[string]) {}),
	)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "string") || !strings.Contains(err.Error(), "int") {
		t.Errorf("error should name both types, got %q", err)
	}
}

func TestNewExecutor_PointerPolicies(t *testing.T) {
	exec := mustExecutor[int](t, &StreamedPolicy{MaxConcurrency: 2})

	if _, ok := exec.Policy().(StreamedPolicy); !ok {
		t.Fatalf("expected a StreamedPolicy value, got %T", exec.Policy())
	}

	probe := &concurrencyProbe{}
	jobs := make([]Job[int], 8)
	for i := range jobs {
		jobs[i] = sleepJob(i, 10*time.Millisecond, probe)
	}
	if _, err := exec.Run(context.Background(), jobs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probe.Peak() > 2 {
		t.Errorf("pointer policy was not enforced, peak %d", probe.Peak())
	}
}

func TestNewExecutor_WithBurstOverridesPolicy(t *testing.T) {
	exec := mustExecutor[int](t,
		RateLimitedPolicy{MaxConcurrency: 4, JobsPerSecond: 10, Burst: 7},
		WithBurst(2),
	)

	p := exec.Policy().(RateLimitedPolicy)
	if p.Burst != 2 {
		t.Errorf("expected burst 2, got %d", p.Burst)
	}

	// Ignored by policies without a token bucket.
	exec2 := mustExecutor[int](t, StreamedPolicy{MaxConcurrency: 1}, WithBurst(3))
	if _, ok := exec2.Policy().(StreamedPolicy); !ok {
		t.Errorf("unexpected policy %v", exec2.Policy())
	}
}

func TestNewExecutor_RetryOptionIsReusable(t *testing.T) {
	opt := WithRetryPolicy(Attempts(3))

	first := mustExecutor[int](t, UnboundedPolicy{}, opt, WithJobTimeout(time.Second))
	second := mustExecutor[int](t, UnboundedPolicy{}, opt)

	if got := first.conf.retry.AttemptTimeout; got != time.Second {
		t.Errorf("first executor: expected attempt timeout 1s, got %v", got)
	}
	if got := second.conf.retry.AttemptTimeout; got != 0 {
		t.Errorf("job timeout of another executor leaked through the option: %v", got)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeout := time.Duration(i+1) * time.Millisecond
			exec, err := NewExecutor[int](UnboundedPolicy{}, opt, WithJobTimeout(timeout))
			if err != nil {
				t.Error(err)
				return
			}
			if got := exec.conf.retry.AttemptTimeout; got != timeout {
				t.Errorf("expected attempt timeout %v, got %v", timeout, got)
			}
		}()
	}
	wg.Wait()
}

func TestNewExecutor_JobTimeoutAppliesToRetryAttempts(t *testing.T) {
	exec := mustExecutor[int](t, UnboundedPolicy{},
		WithRetryPolicy(Attempts(2)),
		WithJobTimeout(20*time.Millisecond),
	)

	outcomes, err := exec.Run(context.Background(), []Job[int]{
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	o := outcomes[0]
	var exhausted *RetryExhaustedError
	if !errors.As(o.Err, &exhausted) || !errors.Is(o.Err, ErrJobTimeout) {
		t.Fatalf("expected exhausted retries of timed out attempts, got %v", o.Err)
	}
	if o.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", o.Attempts)
	}
}

func TestPolicy_String(t *testing.T) {
	tests := []struct {
		policy ExecutionPolicy
		want   string
	}{
		{UnboundedPolicy{}, "unbounded"},
		{BatchedPolicy{BatchSize: 4}, "batched(size=4)"},
		{StreamedPolicy{MaxConcurrency: 3}, "streamed(concurrency=3)"},
		{RateLimitedPolicy{MaxConcurrency: 2, JobsPerSecond: 2.5}, "rate-limited(concurrency=2, rate=2.5/s, burst=3)"},
	}

	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
