package batch

import (
	"context"
	"time"
)

// Job is a single unit of asynchronous work. Arguments are bound by closure
// before submission; the context carries cancellation, the attempt deadline
// and the job's identity within a run (see JobIndex and RunID).
//
// Type parameters:
//   - V: The value produced by a successful run
type Job[V any] func(ctx context.Context) (V, error)

// Outcome is the final result of one submitted job.
//
// Fields:
//   - Index: Submission index of the originating job
//   - Value: The value produced by the job (only valid if Err is nil)
//   - Err: Failure of the job, nil on success
//   - Attempts: Number of invocations the job needed (0 if it was never admitted)
type Outcome[V any] struct {
	Index    int
	Value    V
	Err      error
	Attempts int
}

// OK reports whether the outcome is a success.
func (o Outcome[V]) OK() bool { return o.Err == nil }

// RetryEvent is the diagnostic record emitted after a failed attempt that
// is going to be retried.
type RetryEvent struct {
	RunID   string
	Index   int // -1 when the job runs outside an executor
	Attempt int // 1-based number of the attempt that failed
	Err     error
	Delay   time.Duration // backoff before the next attempt
}

type ctxKey int

const (
	indexKey ctxKey = iota
	runIDKey
	attemptKey
	stopKey
)

// JobIndex returns the submission index of the job running with ctx,
// or -1 when the job is not run by an executor.
func JobIndex(ctx context.Context) int {
	if v, ok := ctx.Value(indexKey).(int); ok {
		return v
	}
	return -1
}

// RunID returns the identifier of the executor run the job belongs to.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Attempt returns the 1-based attempt number of a retry-wrapped job,
// or 0 outside a retry wrapper.
func Attempt(ctx context.Context) int {
	v, _ := ctx.Value(attemptKey).(int)
	return v
}

func withJobIdentity(ctx context.Context, runID string, index int) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return context.WithValue(ctx, indexKey, index)
}

// withStopSignal attaches a channel that, once closed, forbids further
// retries without cancelling the attempt in progress.
func withStopSignal(ctx context.Context, stop <-chan struct{}) context.Context {
	return context.WithValue(ctx, stopKey, stop)
}

func stopSignal(ctx context.Context) <-chan struct{} {
	v, _ := ctx.Value(stopKey).(<-chan struct{})
	return v
}

// Values returns the values of all outcomes in submission order.
// Failed outcomes contribute the zero value of V.
func Values[V any](outcomes []Outcome[V]) []V {
	values := make([]V, len(outcomes))
	for i, o := range outcomes {
		values[i] = o.Value
	}
	return values
}

// FirstError returns the error of the lowest-indexed failed outcome, or nil.
func FirstError[V any](outcomes []Outcome[V]) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

// Failed counts the failed outcomes.
func Failed[V any](outcomes []Outcome[V]) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
