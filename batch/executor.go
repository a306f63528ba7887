package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Executor runs batches of jobs under one ExecutionPolicy and returns their
// outcomes in submission order. An Executor holds no state between runs:
// every Run gets its own gate, limiter and result slots, so concurrent Run
// calls on the same Executor are independent.
//
// Type parameters:
//   - V: The value produced by the jobs
type Executor[V any] struct {
	policy   ExecutionPolicy
	conf     *execConfig
	onJobEnd func(Outcome[V])
}

// NewExecutor validates policy and options and returns a ready Executor.
// Every invalid parameter is reported here as ErrInvalidConfig, never during a run.
//
// Example:
//
//	exec, err := NewExecutor[int](
//	    StreamedPolicy{MaxConcurrency: 8},
//	    WithRetryPolicy(Attempts(3)),
//	    WithJobTimeout(2*time.Second),
//	)
//	outcomes, err := exec.Run(ctx, jobs)
func NewExecutor[V any](policy ExecutionPolicy, opts ...Option) (*Executor[V], error) {
	policy = normalizePolicy(policy)
	if policy == nil {
		return nil, invalidConfig("execution policy is required")
	}

	cfg := createConfig(opts...)
	if len(cfg.errs) > 0 {
		return nil, errors.Join(cfg.errs...)
	}

	if rl, ok := policy.(RateLimitedPolicy); ok && cfg.burst > 0 {
		rl.Burst = cfg.burst
		policy = rl
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	if cfg.failFast && cfg.retry != nil && cfg.retry.Unbounded() {
		return nil, invalidConfig("fail-fast runs cannot use unbounded retries")
	}

	onJobEnd, err := checkOnJobEnd[V](cfg)
	if err != nil {
		return nil, err
	}

	return &Executor[V]{
		policy:   policy,
		conf:     cfg,
		onJobEnd: onJobEnd,
	}, nil
}

// Policy returns the execution policy of the executor.
func (e *Executor[V]) Policy() ExecutionPolicy { return e.policy }

// Run executes jobs and returns exactly one outcome per job, in submission order.
//
// Without fail-fast, Run waits for every admitted job and returns a nil error
// even if some outcomes failed; inspect them individually. With fail-fast, the
// first failure cancels the rest and Run returns a *BatchFailure next to the
// partial outcomes.
//
// Cancelling ctx stops admission: jobs not yet started are reported with
// ErrNotAdmitted and Run returns ctx.Err(). Jobs already running are only
// interrupted in fail-fast mode.
func (e *Executor[V]) Run(ctx context.Context, jobs []Job[V]) ([]Outcome[V], error) {
	if len(jobs) == 0 {
		return []Outcome[V]{}, nil
	}

	r, err := e.newRun(jobs)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx)
}

// run is the state of a single Executor.Run call.
type run[V any] struct {
	exec    *Executor[V]
	id      string
	jobs    []Job[V]
	results *ResultCollector[V]
	gate    *ConcurrencyGate
	limiter *RateLimiter
	log     *zap.Logger

	// retryLog is nil unless the logger records debug entries.
	retryLog func(RetryEvent)
}

func (e *Executor[V]) newRun(jobs []Job[V]) (*run[V], error) {
	id := e.conf.runID
	if id == "" {
		id = uuid.NewString()
	}

	r := &run[V]{
		exec:    e,
		id:      id,
		jobs:    jobs,
		results: NewResultCollector[V](len(jobs)),
		log:     e.conf.logger.With(zap.String("run_id", id)),
	}
	if r.log.Core().Enabled(zapcore.DebugLevel) {
		r.retryLog = r.logRetry
	}

	var err error
	switch p := e.policy.(type) {
	case StreamedPolicy:
		r.gate, err = NewConcurrencyGate(p.MaxConcurrency)
	case RateLimitedPolicy:
		if r.gate, err = NewConcurrencyGate(p.MaxConcurrency); err == nil {
			r.limiter, err = NewRateLimiter(p.JobsPerSecond, p.Burst)
		}
	}
	return r, err
}

// waves splits the jobs into admission groups: one group for every policy
// but BatchedPolicy.
func (r *run[V]) waves() [][2]int {
	size := len(r.jobs)
	if b, ok := r.exec.policy.(BatchedPolicy); ok {
		size = b.BatchSize
	}

	waves := make([][2]int, 0, (len(r.jobs)+size-1)/size)
	for from := 0; from < len(r.jobs); from += size {
		waves = append(waves, [2]int{from, min(from+size, len(r.jobs))})
	}
	return waves
}

func (r *run[V]) execute(ctx context.Context) ([]Outcome[V], error) {
	start := time.Now()
	r.log.Debug("run started",
		zap.Stringer("policy", r.exec.policy),
		zap.Int("jobs", len(r.jobs)),
		zap.Bool("fail_fast", r.exec.conf.failFast),
	)

	var runErr error
	for _, w := range r.waves() {
		if runErr = r.wave(ctx, w[0], w[1]); runErr != nil {
			break
		}
	}

	// Parent cancellation takes precedence over any failure it caused.
	if err := ctx.Err(); err != nil {
		runErr = err
	}
	if runErr != nil {
		r.results.FillRemaining(runErr)
	}

	outcomes := r.results.Outcomes()
	fields := []zap.Field{
		zap.Int("jobs", len(outcomes)),
		zap.Int("failed", Failed(outcomes)),
		zap.Duration("duration", time.Since(start)),
	}
	if r.gate != nil {
		fields = append(fields, zap.Int("peak_concurrency", r.gate.Peak()))
	}
	if runErr != nil {
		r.log.Warn("run aborted", append(fields, zap.Error(runErr))...)
	} else {
		r.log.Debug("run finished", fields...)
	}

	return outcomes, runErr
}

// wave admits jobs [from, to) and waits until all admitted ones finished.
// It returns the first failure in fail-fast mode, or the reason admission stopped.
func (r *run[V]) wave(ctx context.Context, from, to int) error {
	wctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	// Outside fail-fast mode a cancellation only stops admission and further
	// retries; attempts in progress run to completion.
	jobCtx := wctx
	if !r.exec.conf.failFast {
		jobCtx = withStopSignal(context.WithoutCancel(wctx), wctx.Done())
	}

	var g errgroup.Group
	var admitErr error
	for i := from; i < to; i++ {
		if admitErr = r.admit(wctx); admitErr != nil {
			debugLog("run %s: admission stopped before job %d: %v", r.id, i, admitErr)
			break
		}
		g.Go(func() error {
			// abort must happen before the slot is released so that no
			// waiting job can be admitted after a fail-fast failure.
			defer r.release()
			err := r.runJob(jobCtx, i)
			if err != nil {
				debugLog("run %s: job %d aborts the wave: %v", r.id, i, err)
				abort(err)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if cause := context.Cause(wctx); cause != nil {
			return cause
		}
		return err
	}
	return admitErr
}

// admit blocks until job admission is allowed: a gate slot first, then a
// rate token. Tokens are only taken by jobs that already hold a slot.
func (r *run[V]) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.gate != nil {
		if err := r.gate.Acquire(ctx); err != nil {
			return err
		}
		// The slot may have been freed by a job that just aborted the wave.
		if err := ctx.Err(); err != nil {
			r.release()
			return err
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Acquire(ctx); err != nil {
			r.release()
			return err
		}
	}
	return nil
}

func (r *run[V]) release() {
	if r.gate != nil {
		r.gate.Release()
	}
}

// runJob runs job i through the retry policy and stores its outcome.
// In fail-fast mode a failure is returned so the wave aborts its siblings.
func (r *run[V]) runJob(ctx context.Context, i int) error {
	conf := r.exec.conf
	ctx = withJobIdentity(ctx, r.id, i)

	if conf.beforeJobStart != nil {
		conf.beforeJobStart(i)
	}

	out := Outcome[V]{Index: i}
	if conf.retry != nil {
		out.Value, out.Attempts, out.Err = retryLoop(ctx, r.jobs[i], *conf.retry,
			conf.retry.Observer, conf.onRetry, r.retryLog)
	} else {
		out.Value, out.Err = runAttempt(ctx, r.jobs[i], conf.jobTimeout)
		out.Attempts = 1
	}

	if errors.Is(out.Err, ErrJobPanic) {
		r.log.Warn("job panicked", zap.Int("index", i), zap.Error(out.Err))
	}

	r.results.Set(out)
	if r.exec.onJobEnd != nil {
		r.exec.onJobEnd(out)
	}

	if out.Err != nil && conf.failFast {
		return &BatchFailure{Index: i, Err: out.Err}
	}
	return nil
}

func (r *run[V]) logRetry(ev RetryEvent) {
	r.log.Debug("retrying job",
		zap.Int("index", ev.Index),
		zap.Int("attempt", ev.Attempt),
		zap.Duration("delay", ev.Delay),
		zap.Error(ev.Err),
	)
}
