package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/utkarsh5026/jobsched/internal/algorithms"
)

// UnboundedAttempts as RetryPolicy.MaxAttempts retries a job until it
// succeeds. Such a job never surfaces a transient failure, so pair it with an
// AttemptTimeout and never with fail-fast runs.
const UnboundedAttempts = 0

// BackoffKind selects the delay algorithm between attempts.
type BackoffKind = algorithms.Kind

const (
	// BackoffExponential doubles the delay after every failure (default).
	BackoffExponential = algorithms.Exponential
	// BackoffJittered is exponential backoff randomised by ±Jitter.
	BackoffJittered = algorithms.Jittered
	// BackoffDecorrelated is AWS-style decorrelated jitter.
	BackoffDecorrelated = algorithms.Decorrelated
)

// Backoff configures the wait between attempts. The zero value does not
// wait: a failed job only yields to the scheduler before its next attempt.
//
// Fields:
//   - Kind: The delay algorithm
//   - Initial: Delay before the first retry
//   - Max: Upper bound of any delay (0 = no bound)
//   - Jitter: Randomisation factor between 0 and 1, only used by BackoffJittered
type Backoff = algorithms.Config

// RetryPolicy controls how a failing job is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations allowed, first one included.
	// UnboundedAttempts (0) never gives up.
	MaxAttempts int

	// Backoff is the wait between attempts.
	Backoff Backoff

	// AttemptTimeout bounds every single invocation. An attempt still running
	// when it expires fails with ErrJobTimeout and may be retried. 0 disables it.
	AttemptTimeout time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// nil retries everything except errors marked with Permanent.
	Retryable func(error) bool

	// Observer receives a RetryEvent for every failed attempt that will be
	// retried. It runs on its own goroutine and cannot affect the job.
	Observer func(RetryEvent)
}

// Attempts returns a policy allowing n invocations without delay between them.
func Attempts(n int) RetryPolicy {
	return RetryPolicy{MaxAttempts: n}
}

// Forever returns an unbounded policy where each invocation is limited to timeout.
func Forever(timeout time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: UnboundedAttempts, AttemptTimeout: timeout}
}

// Unbounded reports whether the policy retries without limit.
func (p RetryPolicy) Unbounded() bool { return p.MaxAttempts == UnboundedAttempts }

// Validate reports ErrInvalidConfig for negative attempts, timeouts or delays.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return invalidConfig("max attempts must not be negative, got %d", p.MaxAttempts)
	}
	if p.AttemptTimeout < 0 {
		return invalidConfig("attempt timeout must not be negative, got %v", p.AttemptTimeout)
	}
	if p.Backoff.Initial < 0 || p.Backoff.Max < 0 {
		return invalidConfig("backoff delays must not be negative")
	}
	if p.Backoff.Jitter < 0 || p.Backoff.Jitter > 1 {
		return invalidConfig("backoff jitter must be between 0 and 1, got %v", p.Backoff.Jitter)
	}
	return nil
}

func (p RetryPolicy) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// WithRetry returns a new Job that invokes job until it succeeds or the
// policy gives up. The original job is not modified.
//
// After every failure the wrapper yields to the scheduler, waits the
// backoff delay and tries again. When a finite budget runs out it returns a
// *RetryExhaustedError carrying the last failure. Permanent errors, errors
// rejected by Retryable and context cancellation are returned as they are.
//
// WithRetry panics if the policy is invalid.
//
// Example:
//
//	fetch := WithRetry(func(ctx context.Context) (string, error) {
//	    return client.Get(ctx, url)
//	}, RetryPolicy{MaxAttempts: 3, Backoff: Backoff{Initial: 100 * time.Millisecond}})
func WithRetry[V any](job Job[V], policy RetryPolicy) Job[V] {
	if err := policy.Validate(); err != nil {
		panic(err)
	}

	return func(ctx context.Context) (V, error) {
		v, _, err := retryLoop(ctx, job, policy, policy.Observer)
		return v, err
	}
}

// retryLoop runs job under policy and returns its value, the number of
// invocations made and the final failure.
func retryLoop[V any](
	ctx context.Context,
	job Job[V],
	policy RetryPolicy,
	sinks ...func(RetryEvent),
) (result V, attempts int, err error) {
	schedule := algorithms.NewSchedule(policy.Backoff)
	stop := stopSignal(ctx)

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return result, attempts, err
		}

		attempts = attempt
		result, err = runAttempt(context.WithValue(ctx, attemptKey, attempt), job, policy.AttemptTimeout)
		if err == nil {
			return result, attempts, nil
		}

		if !policy.retryable(err) || ctx.Err() != nil || stopped(stop) {
			return result, attempts, err
		}

		if !policy.Unbounded() && attempt >= policy.MaxAttempts {
			return result, attempts, &RetryExhaustedError{Attempts: attempt, Last: err}
		}

		delay := schedule.Next(attempt - 1)
		emit(RetryEvent{
			RunID:   RunID(ctx),
			Index:   JobIndex(ctx),
			Attempt: attempt,
			Err:     err,
			Delay:   delay,
		}, sinks...)

		// Yield point: a job failing instantly must not monopolise its thread.
		runtime.Gosched()

		if delay > 0 {
			if waitErr := sleepCtx(ctx, stop, delay); waitErr != nil {
				if ctx.Err() == nil {
					// Stopped by the run: report the job's own failure.
					return result, attempts, err
				}
				return result, attempts, waitErr
			}
		}
	}
}

type attemptResult[V any] struct {
	value V
	err   error
}

// runAttempt invokes job once. The call runs on its own goroutine whenever ctx
// can end, so a job that ignores its context still releases the caller when
// the timeout or a cancellation fires.
func runAttempt[V any](ctx context.Context, job Job[V], timeout time.Duration) (V, error) {
	if timeout <= 0 && ctx.Done() == nil {
		return callSafely(ctx, job)
	}

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan attemptResult[V], 1)
	go func() {
		v, err := callSafely(attemptCtx, job)
		done <- attemptResult[V]{value: v, err: err}
	}()

	var zero V
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(timeout)
		}
		return r.value, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, timeoutError(timeout)
	}
}

// callSafely converts a panic inside job into an ErrJobPanic failure.
func callSafely[V any](ctx context.Context, job Job[V]) (result V, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\nstack trace:\n%s", ErrJobPanic, r, buf[:n])
		}
	}()

	return job(ctx)
}

func timeoutError(timeout time.Duration) error {
	return fmt.Errorf("%w after %v: %w", ErrJobTimeout, timeout, context.DeadlineExceeded)
}

// emit hands ev to every non-nil sink on a separate goroutine. Sinks are
// diagnostics only: a slow or panicking sink never reaches the job.
func emit(ev RetryEvent, sinks ...func(RetryEvent)) {
	active := sinks[:0:0]
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return
	}

	go func() {
		for _, s := range active {
			func() {
				defer func() { _ = recover() }()
				s(ev)
			}()
		}
	}()
}

// sleepCtx waits d unless ctx ends or stop closes first.
func sleepCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return context.Canceled
	}
}

// stopped reports whether stop is closed. A nil channel never is.
func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
