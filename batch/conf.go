package batch

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Option is a functional option for configuring an Executor.
type Option func(*execConfig)

type execConfig struct {
	retry      *RetryPolicy
	failFast   bool
	jobTimeout time.Duration
	burst      int
	logger     *zap.Logger
	runID      string

	beforeJobStart func(int)
	onRetry        func(RetryEvent)

	// onJobEnd is typed by the executor's value type, checked in NewExecutor.
	onJobEnd     any
	onJobEndType string

	errs []error
}

// WithRetryPolicy wraps every submitted job with policy.
// Without it each job runs exactly once and its failure is reported unwrapped.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(cfg *execConfig) {
		if err := policy.Validate(); err != nil {
			cfg.errs = append(cfg.errs, err)
			return
		}
		p := policy
		cfg.retry = &p
	}
}

// WithFailFast makes the first failed job cancel every other job. The run then
// returns a *BatchFailure. By default every job runs to completion and
// failures are only reported in the outcomes.
func WithFailFast() Option {
	return func(cfg *execConfig) {
		cfg.failFast = true
	}
}

// WithJobTimeout bounds every job invocation to d. When a retry policy is set
// and has no AttemptTimeout of its own, d applies to each of its attempts.
func WithJobTimeout(d time.Duration) Option {
	return func(cfg *execConfig) {
		if d < 0 {
			cfg.errs = append(cfg.errs, invalidConfig("job timeout must not be negative, got %v", d))
			return
		}
		cfg.jobTimeout = d
	}
}

// WithBurst overrides the token bucket capacity of a RateLimitedPolicy.
// It has no effect on other policies.
func WithBurst(burst int) Option {
	return func(cfg *execConfig) {
		if burst <= 0 {
			cfg.errs = append(cfg.errs, invalidConfig("burst must be positive, got %d", burst))
			return
		}
		cfg.burst = burst
	}
}

// WithLogger sets the logger used for run lifecycle and retry diagnostics.
// Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *execConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithRunID fixes the identifier attached to every run of the executor.
// By default each run gets a fresh UUID.
func WithRunID(id string) Option {
	return func(cfg *execConfig) {
		cfg.runID = id
	}
}

// WithBeforeJobStart registers a hook called with the submission index of
// every job right after it was admitted and before its first attempt.
func WithBeforeJobStart(fn func(index int)) Option {
	return func(cfg *execConfig) {
		cfg.beforeJobStart = fn
	}
}

// WithOnJobEnd registers a hook called with the final outcome of every job
// that ran. V must match the executor's value type, otherwise NewExecutor
// fails with ErrInvalidConfig.
//
// Example:
//
//	exec, err := NewExecutor[string](StreamedPolicy{MaxConcurrency: 4},
//	    WithOnJobEnd(func(o Outcome[string]) { bar.Add(1) }),
//	)
func WithOnJobEnd[V any](fn func(Outcome[V])) Option {
	return func(cfg *execConfig) {
		cfg.onJobEnd = fn
		var zero V
		cfg.onJobEndType = fmt.Sprintf("%T", zero)
	}
}

// WithOnRetry registers a hook receiving every RetryEvent of the run,
// in addition to the retry policy's own Observer.
func WithOnRetry(fn func(RetryEvent)) Option {
	return func(cfg *execConfig) {
		cfg.onRetry = fn
	}
}

func createConfig(opts ...Option) *execConfig {
	cfg := &execConfig{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Options may be reused across executors, so never write through theirs.
	if cfg.retry != nil {
		retry := *cfg.retry
		if retry.AttemptTimeout == 0 {
			retry.AttemptTimeout = cfg.jobTimeout
		}
		cfg.retry = &retry
	}

	return cfg
}

// checkOnJobEnd validates the user-supplied end hook against the executor's
// value type and returns it typed.
func checkOnJobEnd[V any](cfg *execConfig) (func(Outcome[V]), error) {
	if cfg.onJobEnd == nil {
		return nil, nil
	}

	fn, ok := cfg.onJobEnd.(func(Outcome[V]))
	if !ok {
		var zero V
		return nil, invalidConfig("WithOnJobEnd hook expects value type %s, but executor produces type %T",
			cfg.onJobEndType, zero)
	}
	return fn, nil
}
