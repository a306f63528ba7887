package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/utkarsh5026/jobsched/batch"
	"github.com/utkarsh5026/jobsched/internal/config"
)

func TestMakeJobs_Reproducible(t *testing.T) {
	demo := config.DemoConfig{Jobs: 20, FailRate: 0.5}

	run := func() []bool {
		outcomes, err := batch.Run(context.Background(), makeJobs(demo, 7))
		if err != nil {
			t.Fatal(err)
		}
		failed := make([]bool, len(outcomes))
		for i, o := range outcomes {
			failed[i] = !o.OK()
			if !o.OK() && !errors.Is(o.Err, errSimulated) {
				t.Errorf("unexpected failure %v", o.Err)
			}
		}
		return failed
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("job %d differs between runs with the same seed", i)
		}
	}
}

func TestMakeJobs_NeverFailWithZeroRate(t *testing.T) {
	demo := config.DemoConfig{Jobs: 10, Latency: time.Millisecond}
	outcomes, err := batch.RunStreamed(context.Background(), makeJobs(demo, 1), 3)
	if err != nil {
		t.Fatal(err)
	}
	if n := batch.Failed(outcomes); n != 0 {
		t.Errorf("expected no failures, got %d", n)
	}
}

func TestSummarize(t *testing.T) {
	outcomes := []batch.Outcome[time.Duration]{
		{Index: 0, Value: time.Millisecond, Attempts: 1},
		{Index: 1, Err: &batch.RetryExhaustedError{Attempts: 3, Last: errSimulated}, Attempts: 3},
		{Index: 2, Err: batch.ErrNotAdmitted},
		{Index: 3, Value: time.Millisecond, Attempts: 2},
	}

	s := summarize(outcomes, 2*time.Second, 2)
	want := runSummary{Jobs: 4, Succeeded: 2, Failed: 1, Skipped: 1, Attempts: 6, Peak: 2, Elapsed: 2 * time.Second, Throughput: 1}
	if s != want {
		t.Errorf("summarize() = %+v, want %+v", s, want)
	}
}

func TestRenderOutcomes(t *testing.T) {
	setupColor(false)

	var buf bytes.Buffer
	renderOutcomes(&buf, []batch.Outcome[time.Duration]{
		{Index: 0, Value: 12 * time.Millisecond, Attempts: 1},
		{Index: 1, Err: &batch.RetryExhaustedError{Attempts: 3, Last: errSimulated}, Attempts: 3},
	})

	out := buf.String()
	for _, want := range []string{"ok", "12ms", "failed", "gave up after 3 attempts"} {
		if !strings.Contains(out, want) {
			t.Errorf("table is missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary_FailFast(t *testing.T) {
	setupColor(false)

	var buf bytes.Buffer
	printSummary(&buf, runSummary{Jobs: 3, Succeeded: 1, Failed: 1, Skipped: 1},
		&batch.BatchFailure{Index: 1, Err: errSimulated})

	if !strings.Contains(buf.String(), "Run aborted by job 1") {
		t.Errorf("unexpected summary:\n%s", buf.String())
	}
}

func writeRunConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobsched.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_FailFastAbortIsReturned(t *testing.T) {
	path := writeRunConfig(t, `
policy:
  mode: streamed
  max_concurrency: 1
retry:
  max_attempts: 1
fail_fast: true
log:
  level: error
demo:
  jobs: 3
  fail_rate: 1
`)

	err := run(&cliFlags{configPath: path, plain: true, seed: 1})

	var failure *batch.BatchFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected the aborted run to fail with *BatchFailure, got %v", err)
	}
	if !errors.Is(err, errSimulated) {
		t.Errorf("expected the simulated failure underneath, got %v", err)
	}
}

func TestRun_SucceedsWithoutFailures(t *testing.T) {
	path := writeRunConfig(t, `
policy:
  mode: batched
  batch_size: 2
retry:
  max_attempts: 1
log:
  level: error
demo:
  jobs: 4
  fail_rate: 0
`)

	if err := run(&cliFlags{configPath: path, plain: true, seed: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
