// Command jobsched runs a synthetic workload of flaky jobs through one of the
// batch execution policies and reports the outcome of every job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/utkarsh5026/jobsched/batch"
	"github.com/utkarsh5026/jobsched/internal/config"
	"github.com/utkarsh5026/jobsched/internal/observability"
	"github.com/utkarsh5026/jobsched/internal/term"
)

var errSimulated = errors.New("simulated failure")

type cliFlags struct {
	configPath  string
	mode        string
	jobs        int
	concurrency int
	rate        float64
	attempts    int
	failRate    float64
	latency     time.Duration
	failFast    bool
	plain       bool
	seed        uint64
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.configPath, "config", "", "Path to a YAML config file (default: ./jobsched.yaml if present)")
	flag.StringVar(&f.mode, "mode", "", "Execution policy: unbounded, batched, streamed or rate-limited")
	flag.IntVar(&f.jobs, "jobs", 0, "Number of synthetic jobs")
	flag.IntVar(&f.concurrency, "concurrency", 0, "Batch size or maximum jobs in flight")
	flag.Float64Var(&f.rate, "rate", 0, "Admissions per second for rate-limited mode")
	flag.IntVar(&f.attempts, "attempts", 0, "Attempts per job (0 = until success, 1 = no retries)")
	flag.Float64Var(&f.failRate, "fail-rate", 0, "Probability that an attempt fails, between 0 and 1")
	flag.DurationVar(&f.latency, "latency", 0, "Mean duration of an attempt")
	flag.BoolVar(&f.failFast, "fail-fast", false, "Cancel the run on the first failed job")
	flag.BoolVar(&f.plain, "plain", false, "Disable colors and the progress bar")
	flag.Uint64Var(&f.seed, "seed", 1, "Seed of the synthetic workload")
	flag.Parse()
	return f
}

// apply overrides cfg with the flags given on the command line.
func (f *cliFlags) apply(cfg *config.Config) error {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.Policy.Mode = f.mode
		case "jobs":
			cfg.Demo.Jobs = f.jobs
		case "concurrency":
			cfg.Policy.BatchSize = f.concurrency
			cfg.Policy.MaxConcurrency = f.concurrency
		case "rate":
			cfg.Policy.JobsPerSecond = f.rate
		case "attempts":
			cfg.Retry.MaxAttempts = f.attempts
		case "fail-rate":
			cfg.Demo.FailRate = f.failRate
		case "latency":
			cfg.Demo.Latency = f.latency
		case "fail-fast":
			cfg.FailFast = f.failFast
		}
	})
	return cfg.Validate()
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		red.Fprintf(os.Stderr, "jobsched: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cliFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if err := flags.apply(cfg); err != nil {
		return err
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	interactive := !flags.plain && term.Interactive(os.Stderr)
	setupColor(!flags.plain && term.Interactive(os.Stdout))

	policy, err := cfg.ExecutionPolicy()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	jobs := makeJobs(cfg.Demo, flags.seed)
	bar := makeProgressBar(len(jobs), interactive)
	tracker := &flightTracker{}

	opts := append(cfg.Options(),
		batch.WithLogger(logger),
		batch.WithRunID(runID),
		batch.WithBeforeJobStart(func(int) { tracker.start() }),
		batch.WithOnJobEnd(func(batch.Outcome[time.Duration]) {
			tracker.end()
			_ = bar.Add(1)
		}),
	)

	exec, err := batch.NewExecutor[time.Duration](policy, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting run",
		zap.String("run_id", runID),
		zap.Stringer("policy", exec.Policy()),
		zap.Int("jobs", len(jobs)),
	)

	start := time.Now()
	outcomes, runErr := exec.Run(ctx, jobs)
	elapsed := time.Since(start)
	_ = bar.Finish()

	printHeader(runID, exec.Policy(), cfg)
	renderOutcomes(os.Stdout, outcomes)
	printSummary(os.Stdout, summarize(outcomes, elapsed, tracker.Peak()), runErr)

	if runErr != nil {
		logger.Warn("run ended early", zap.Error(runErr))
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	return nil
}

// makeJobs generates n jobs whose attempts take about latency and fail with
// probability failRate. The workload is reproducible for a given seed.
func makeJobs(demo config.DemoConfig, seed uint64) []batch.Job[time.Duration] {
	jobs := make([]batch.Job[time.Duration], demo.Jobs)
	for i := range jobs {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		jobs[i] = func(ctx context.Context) (time.Duration, error) {
			d := demo.Latency
			if d > 0 {
				d = d/2 + time.Duration(rng.Int64N(int64(d)))
			}
			fails := rng.Float64() < demo.FailRate

			select {
			case <-time.After(d):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if fails {
				return 0, fmt.Errorf("%w in job %d (attempt %d)", errSimulated, batch.JobIndex(ctx), batch.Attempt(ctx))
			}
			return d, nil
		}
	}
	return jobs
}

// flightTracker measures the number of jobs between their start and end hooks.
type flightTracker struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (t *flightTracker) start() {
	n := t.current.Add(1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (t *flightTracker) end() { t.current.Add(-1) }

func (t *flightTracker) Peak() int { return int(t.peak.Load()) }
