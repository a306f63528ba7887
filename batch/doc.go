// Package batch runs collections of independent asynchronous jobs with
// bounded concurrency, rate limiting and retries.
//
// A Job[V] is a context-aware function producing a V. A batch of jobs is
// executed under an ExecutionPolicy and always yields exactly one Outcome per
// job, in submission order, regardless of completion order.
//
// # Basic Usage
//
//	jobs := []batch.Job[string]{fetch("a"), fetch("b"), fetch("c")}
//	outcomes, err := batch.RunStreamed(ctx, jobs, 2)
//	for _, o := range outcomes {
//	    if o.Err != nil {
//	        log.Printf("job %d failed: %v", o.Index, o.Err)
//	    }
//	}
//
// # Execution Policies
//
// Four admission strategies are available:
//
//   - UnboundedPolicy (Run): every job starts immediately
//   - BatchedPolicy (RunBatched): consecutive groups, each fully drained before the next starts
//   - StreamedPolicy (RunStreamed): a sliding window of at most N jobs in flight
//   - RateLimitedPolicy (RunRateLimited): a sliding window plus a token bucket on admissions
//
// The Run helpers build a throwaway Executor. Build one with NewExecutor to
// reuse a validated configuration across runs:
//
//	exec, err := batch.NewExecutor[int](batch.StreamedPolicy{MaxConcurrency: 8},
//	    batch.WithRetryPolicy(batch.Attempts(3)),
//	    batch.WithLogger(logger),
//	)
//
// # Retry Logic
//
// WithRetry wraps a single job; WithRetryPolicy applies a RetryPolicy to every
// job of a run. Retries happen inside the slot the job was admitted with, so
// they never exceed the concurrency bound and never consume rate tokens.
//
//	job := batch.WithRetry(callAPI, batch.RetryPolicy{
//	    MaxAttempts: 5,
//	    Backoff:     batch.Backoff{Initial: 100 * time.Millisecond, Max: 5 * time.Second},
//	})
//
// A finite budget ends with a *RetryExhaustedError. UnboundedAttempts retries
// until success; pair it with an AttemptTimeout so that a hanging attempt is
// turned into a retryable ErrJobTimeout. Wrap an error with Permanent to stop
// retrying immediately.
//
// # Failure Handling
//
// By default a failing job only fails its own outcome. WithFailFast turns the
// first failure into a *BatchFailure that cancels every running job and stops
// admission. Cancelling the run context also stops admission: jobs never
// started are reported with ErrNotAdmitted.
//
// Panics in jobs are recovered and reported as ErrJobPanic failures.
//
// # Hooks
//
//   - WithBeforeJobStart: called with the index of every admitted job
//   - WithOnJobEnd: called with every final Outcome
//   - WithOnRetry: called with every RetryEvent, asynchronously
//
// Jobs can read their identity from their context with JobIndex, RunID and Attempt.
package batch
