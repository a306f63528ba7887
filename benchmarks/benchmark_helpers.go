package benchmarks

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/utkarsh5026/jobsched/batch"
)

// policyConfig defines a benchmark configuration for an execution policy
type policyConfig struct {
	name   string
	policy batch.ExecutionPolicy
	opts   []batch.Option
}

// getAllPolicies returns every execution policy bounded to concurrency where it applies
func getAllPolicies(concurrency int) []policyConfig {
	return []policyConfig{
		{name: "Unbounded", policy: batch.UnboundedPolicy{}},
		{name: "Batched", policy: batch.BatchedPolicy{BatchSize: concurrency}},
		{name: "Streamed", policy: batch.StreamedPolicy{MaxConcurrency: concurrency}},
		{
			name:   "RateLimited",
			policy: batch.RateLimitedPolicy{MaxConcurrency: concurrency, JobsPerSecond: 1e9},
		},
	}
}

// getBoundedPolicies returns the policies that accept a concurrency bound
func getBoundedPolicies(concurrency int) []policyConfig {
	return getAllPolicies(concurrency)[1:]
}

// runPolicyBenchmark runs benchFunc for each policy as a sub-benchmark
func runPolicyBenchmark(b *testing.B, policies []policyConfig, benchFunc func(b *testing.B, p policyConfig)) {
	for _, p := range policies {
		b.Run(p.name, func(b *testing.B) {
			benchFunc(b, p)
		})
	}
}

// runOnce builds a fresh executor for p and runs jobs through it
func runOnce[V any](b *testing.B, p policyConfig, jobs []batch.Job[V], extra ...batch.Option) []batch.Outcome[V] {
	b.Helper()
	exec, err := batch.NewExecutor[V](p.policy, append(p.opts, extra...)...)
	if err != nil {
		b.Fatal(err)
	}
	outcomes, err := exec.Run(context.Background(), jobs)
	if err != nil {
		b.Fatal(err)
	}
	return outcomes
}

// makeJobs builds n jobs from a task function, like a closure over its argument
func makeJobs(n int, work func(ctx context.Context, task int) (int, error)) []batch.Job[int] {
	jobs := make([]batch.Job[int], n)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) (int, error) { return work(ctx, i) }
	}
	return jobs
}

// cpuBoundWork simulates a CPU-intensive operation
func cpuBoundWork(iterations int) func(ctx context.Context, task int) (int, error) {
	return func(ctx context.Context, task int) (int, error) {
		result := 0
		for i := 0; i < iterations; i++ {
			result += i * task
		}
		return result, nil
	}
}

// ioBoundWork simulates an I/O operation with a delay
func ioBoundWork(delay time.Duration) func(ctx context.Context, task int) (int, error) {
	return func(ctx context.Context, task int) (int, error) {
		select {
		case <-time.After(delay):
			return task * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// mixedWork simulates a realistic workload with variable processing time
func mixedWork() func(ctx context.Context, task int) (int, error) {
	return func(ctx context.Context, task int) (int, error) {
		// Simulate variable processing time (0-3ms)
		time.Sleep(time.Duration(task%4) * time.Millisecond)

		result := 0
		for i := 0; i < 1000; i++ {
			result += i
		}
		return result + task, nil
	}
}

// reportThroughput reports jobs/sec based on the elapsed benchmark time
func reportThroughput(b *testing.B, jobsPerOp int) {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	b.ReportMetric(float64(jobsPerOp)/nsPerOp*1e9, "jobs/sec")
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(math.Ceil(float64(len(sorted))*p/100.0)) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
