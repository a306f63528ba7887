package batch

import "context"

// Run executes every job at once and returns their outcomes in submission order.
//
// Example:
//
//	outcomes, err := Run(ctx, []Job[int]{fetchA, fetchB},
//	    WithRetryPolicy(Attempts(3)),
//	)
func Run[V any](ctx context.Context, jobs []Job[V], opts ...Option) ([]Outcome[V], error) {
	return runWith(ctx, UnboundedPolicy{}, jobs, opts)
}

// RunBatched executes jobs in consecutive groups of batchSize, starting a
// group only after the previous one fully finished.
func RunBatched[V any](ctx context.Context, jobs []Job[V], batchSize int, opts ...Option) ([]Outcome[V], error) {
	return runWith(ctx, BatchedPolicy{BatchSize: batchSize}, jobs, opts)
}

// RunStreamed executes jobs with at most maxConcurrency in flight, admitting
// the next job as soon as any running one finishes.
func RunStreamed[V any](ctx context.Context, jobs []Job[V], maxConcurrency int, opts ...Option) ([]Outcome[V], error) {
	return runWith(ctx, StreamedPolicy{MaxConcurrency: maxConcurrency}, jobs, opts)
}

// RunRateLimited executes jobs with at most maxConcurrency in flight and at
// most jobsPerSecond admissions per second on average. The burst defaults to
// one second worth of tokens saved up while admission is idle; change it
// with WithBurst.
//
// Example:
//
//	// 20 instantaneous jobs at 5/s: roughly 4 seconds
//	outcomes, err := RunRateLimited(ctx, jobs, 20, 5)
func RunRateLimited[V any](
	ctx context.Context,
	jobs []Job[V],
	maxConcurrency int,
	jobsPerSecond float64,
	opts ...Option,
) ([]Outcome[V], error) {
	return runWith(ctx, RateLimitedPolicy{MaxConcurrency: maxConcurrency, JobsPerSecond: jobsPerSecond}, jobs, opts)
}

func runWith[V any](ctx context.Context, policy ExecutionPolicy, jobs []Job[V], opts []Option) ([]Outcome[V], error) {
	exec, err := NewExecutor[V](policy, opts...)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx, jobs)
}
