package batch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// policyConfig defines a test configuration for an execution policy
type policyConfig struct {
	name   string
	policy ExecutionPolicy
}

// getAllPolicies returns every execution policy bounded to concurrency where it applies
func getAllPolicies(concurrency int) []policyConfig {
	return []policyConfig{
		{name: "Unbounded", policy: UnboundedPolicy{}},
		{name: "Batched", policy: BatchedPolicy{BatchSize: concurrency}},
		{name: "Streamed", policy: StreamedPolicy{MaxConcurrency: concurrency}},
		{name: "RateLimited", policy: RateLimitedPolicy{MaxConcurrency: concurrency, JobsPerSecond: 10_000}},
	}
}

func runPolicyTest(t *testing.T, testFunc func(t *testing.T, p policyConfig), concurrency int) {
	for _, p := range getAllPolicies(concurrency) {
		t.Run(p.name, func(t *testing.T) {
			testFunc(t, p)
		})
	}
}

func mustExecutor[V any](t *testing.T, policy ExecutionPolicy, opts ...Option) *Executor[V] {
	t.Helper()
	exec, err := NewExecutor[V](policy, opts...)
	if err != nil {
		t.Fatalf("NewExecutor(%v) failed: %v", policy, err)
	}
	return exec
}

// concurrencyProbe records how many instrumented jobs run at the same time.
type concurrencyProbe struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (p *concurrencyProbe) enter() {
	n := p.current.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			return
		}
	}
}

func (p *concurrencyProbe) exit() { p.current.Add(-1) }

func (p *concurrencyProbe) Peak() int { return int(p.peak.Load()) }

// sleepJob returns index*10 after sleeping d while tracked by probe (which may be nil).
func sleepJob(index int, d time.Duration, probe *concurrencyProbe) Job[int] {
	return func(ctx context.Context) (int, error) {
		if probe != nil {
			probe.enter()
			defer probe.exit()
		}
		select {
		case <-time.After(d):
			return index * 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// flakyJob fails the first failures invocations and then returns value.
func flakyJob(failures int, value int, calls *atomic.Int32) Job[int] {
	return func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if int(n) <= failures {
			return 0, errTransient
		}
		return value, nil
	}
}

var errTransient = errors.New("transient failure")

// admissionLog records admission timestamps of jobs.
type admissionLog struct {
	mu    sync.Mutex
	times []time.Time
}

func (l *admissionLog) record() {
	l.mu.Lock()
	l.times = append(l.times, time.Now())
	l.mu.Unlock()
}

// maxInWindow returns the largest number of admissions inside any window of length w.
func (l *admissionLog) maxInWindow(w time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	times := slices.Clone(l.times)
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })

	best := 0
	for i := range times {
		n := 0
		for j := i; j < len(times) && times[j].Sub(times[i]) < w; j++ {
			n++
		}
		best = max(best, n)
	}
	return best
}
