package batch

import (
	"fmt"
	"math"
)

// ExecutionPolicy selects how an Executor admits jobs. It is one of
// UnboundedPolicy, BatchedPolicy, StreamedPolicy or RateLimitedPolicy.
type ExecutionPolicy interface {
	fmt.Stringer
	validate() error
}

// UnboundedPolicy admits every job immediately. There is no backpressure.
type UnboundedPolicy struct{}

// BatchedPolicy splits the jobs into consecutive groups of BatchSize. A group
// runs concurrently and must drain completely before the next one is admitted.
type BatchedPolicy struct {
	BatchSize int
}

// StreamedPolicy keeps a sliding window of at most MaxConcurrency jobs in
// flight; a finishing job immediately makes room for the next one.
type StreamedPolicy struct {
	MaxConcurrency int
}

// RateLimitedPolicy admits a job only when both a concurrency slot and a
// rate token are available. Burst is the token bucket capacity; zero means
// one second worth of tokens (ceil(JobsPerSecond)).
type RateLimitedPolicy struct {
	MaxConcurrency int
	JobsPerSecond  float64
	Burst          int
}

func (UnboundedPolicy) String() string { return "unbounded" }

func (p BatchedPolicy) String() string { return fmt.Sprintf("batched(size=%d)", p.BatchSize) }

func (p StreamedPolicy) String() string {
	return fmt.Sprintf("streamed(concurrency=%d)", p.MaxConcurrency)
}

func (p RateLimitedPolicy) String() string {
	return fmt.Sprintf("rate-limited(concurrency=%d, rate=%g/s, burst=%d)",
		p.MaxConcurrency, p.JobsPerSecond, p.burst())
}

func (UnboundedPolicy) validate() error { return nil }

func (p BatchedPolicy) validate() error {
	if p.BatchSize <= 0 {
		return invalidConfig("batch size must be positive, got %d", p.BatchSize)
	}
	return nil
}

func (p StreamedPolicy) validate() error {
	if p.MaxConcurrency <= 0 {
		return invalidConfig("max concurrency must be positive, got %d", p.MaxConcurrency)
	}
	return nil
}

func (p RateLimitedPolicy) validate() error {
	if p.MaxConcurrency <= 0 {
		return invalidConfig("max concurrency must be positive, got %d", p.MaxConcurrency)
	}
	if err := validateRate(p.JobsPerSecond, p.Burst); err != nil {
		return err
	}
	return nil
}

func (p RateLimitedPolicy) burst() int {
	return defaultBurst(p.JobsPerSecond, p.Burst)
}

func validateRate(jobsPerSecond float64, burst int) error {
	if math.IsNaN(jobsPerSecond) || math.IsInf(jobsPerSecond, 0) || jobsPerSecond <= 0 {
		return invalidConfig("jobs per second must be a positive finite number, got %v", jobsPerSecond)
	}
	if burst < 0 {
		return invalidConfig("burst must not be negative, got %d", burst)
	}
	return nil
}

// defaultBurst returns burst, or one second worth of tokens when burst is zero.
func defaultBurst(jobsPerSecond float64, burst int) int {
	if burst > 0 {
		return burst
	}
	return max(1, int(math.Min(math.Ceil(jobsPerSecond), math.MaxInt32)))
}

// normalizePolicy dereferences pointer policies so that executors only ever
// switch over value types. A nil pointer yields nil.
func normalizePolicy(p ExecutionPolicy) ExecutionPolicy {
	switch v := p.(type) {
	case *UnboundedPolicy:
		if v != nil {
			return *v
		}
		return nil
	case *BatchedPolicy:
		if v != nil {
			return *v
		}
		return nil
	case *StreamedPolicy:
		if v != nil {
			return *v
		}
		return nil
	case *RateLimitedPolicy:
		if v != nil {
			return *v
		}
		return nil
	}
	return p
}
