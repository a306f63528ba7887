package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/jobsched/batch"
	"github.com/utkarsh5026/jobsched/internal/config"
	"github.com/utkarsh5026/jobsched/internal/term"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

func setupColor(enabled bool) {
	color.NoColor = !enabled
}

func makeProgressBar(jobs int, enabled bool) *progressbar.ProgressBar {
	if !enabled {
		return progressbar.DefaultSilent(int64(jobs))
	}
	width := min(50, term.WidthOr(os.Stderr.Fd(), term.DefaultWidth)/2)
	return progressbar.NewOptions(jobs,
		progressbar.OptionSetDescription("Running jobs"),
		progressbar.OptionSetWidth(width),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func printHeader(runID string, policy batch.ExecutionPolicy, cfg *config.Config) {
	fmt.Println()
	bold.Println("═══════════════════════════════════════════════════════════")
	bold.Printf("RUN %s\n", runID)
	bold.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  Policy:    %s\n", policy)
	if cfg.Retries() {
		attempts := "until success"
		if cfg.Retry.MaxAttempts > 0 {
			attempts = fmt.Sprintf("%d", cfg.Retry.MaxAttempts)
		}
		fmt.Printf("  Attempts:  %s (%s backoff from %v)\n", attempts, cfg.Retry.Backoff, cfg.Retry.InitialDelay)
	}
	fmt.Printf("  Fail fast: %v\n", cfg.FailFast)
	fmt.Println()
}

// renderOutcomes writes one row per job in submission order.
func renderOutcomes(w io.Writer, outcomes []batch.Outcome[time.Duration]) {
	table := tablewriter.NewWriter(w)
	table.Header("Job", "Status", "Attempts", "Latency", "Error")

	for _, o := range outcomes {
		_ = table.Append(
			fmt.Sprintf("%d", o.Index),
			statusOf(o),
			fmt.Sprintf("%d", o.Attempts),
			latencyOf(o),
			errorOf(o),
		)
	}

	if err := table.Render(); err != nil {
		red.Fprintf(w, "Error in rendering outcome table: %v\n", err)
	}
}

func statusOf(o batch.Outcome[time.Duration]) string {
	switch {
	case o.OK():
		return green.Sprint("ok")
	case errors.Is(o.Err, batch.ErrNotAdmitted):
		return yellow.Sprint("skipped")
	default:
		return red.Sprint("failed")
	}
}

func latencyOf(o batch.Outcome[time.Duration]) string {
	if !o.OK() {
		return "-"
	}
	return o.Value.Round(time.Millisecond).String()
}

func errorOf(o batch.Outcome[time.Duration]) string {
	if o.OK() {
		return ""
	}
	var exhausted *batch.RetryExhaustedError
	if errors.As(o.Err, &exhausted) {
		return fmt.Sprintf("gave up after %d attempts", exhausted.Attempts)
	}
	msg := o.Err.Error()
	if len(msg) > 60 {
		msg = msg[:57] + "..."
	}
	return msg
}

// runSummary aggregates the outcomes of a run.
type runSummary struct {
	Jobs       int
	Succeeded  int
	Failed     int
	Skipped    int
	Attempts   int
	Peak       int
	Elapsed    time.Duration
	Throughput float64
}

func summarize(outcomes []batch.Outcome[time.Duration], elapsed time.Duration, peak int) runSummary {
	s := runSummary{Jobs: len(outcomes), Peak: peak, Elapsed: elapsed}
	for _, o := range outcomes {
		s.Attempts += o.Attempts
		switch {
		case o.OK():
			s.Succeeded++
		case errors.Is(o.Err, batch.ErrNotAdmitted):
			s.Skipped++
		default:
			s.Failed++
		}
	}
	if elapsed > 0 {
		s.Throughput = float64(s.Succeeded) / elapsed.Seconds()
	}
	return s
}

func printSummary(w io.Writer, s runSummary, runErr error) {
	fmt.Fprintln(w)
	green.Fprintf(w, "✅ Succeeded: %d/%d\n", s.Succeeded, s.Jobs)
	if s.Failed > 0 {
		red.Fprintf(w, "❌ Failed:    %d\n", s.Failed)
	}
	if s.Skipped > 0 {
		yellow.Fprintf(w, "⏭  Skipped:   %d\n", s.Skipped)
	}
	fmt.Fprintf(w, "   Attempts:  %d\n", s.Attempts)
	fmt.Fprintf(w, "   Peak:      %d jobs in flight\n", s.Peak)
	fmt.Fprintf(w, "   Elapsed:   %v (%.1f jobs/sec)\n", s.Elapsed.Round(time.Millisecond), s.Throughput)

	if runErr != nil {
		var failure *batch.BatchFailure
		if errors.As(runErr, &failure) {
			red.Fprintf(w, "\n⚠️  Run aborted by job %d: %v\n", failure.Index, failure.Err)
		} else {
			yellow.Fprintf(w, "\n⚠️  Run interrupted: %v\n", runErr)
		}
	}
	fmt.Fprintln(w)
}
