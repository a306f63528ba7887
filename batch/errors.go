package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a policy or option carries an invalid parameter.
	// It is always raised while building an executor, never during a run.
	ErrInvalidConfig = errors.New("batch: invalid configuration")

	// ErrJobTimeout is the failure of an attempt that did not finish within its timeout.
	ErrJobTimeout = errors.New("batch: job attempt timed out")

	// ErrNotAdmitted fills the slot of a job that was never started because
	// the run was cancelled first.
	ErrNotAdmitted = errors.New("batch: job not admitted")

	// ErrJobPanic wraps a panic recovered from a job.
	ErrJobPanic = errors.New("batch: job panicked")
)

// RetryExhaustedError is returned by a retry-wrapped job whose finite attempt
// budget ran out. It unwraps to the last failure observed.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("batch: retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// BatchFailure is returned by a fail-fast run. It carries the first failure
// observed across the batch; every other job was cancelled.
type BatchFailure struct {
	Index int
	Err   error
}

func (e *BatchFailure) Error() string {
	return fmt.Sprintf("batch: job %d failed: %v", e.Index, e.Err)
}

func (e *BatchFailure) Unwrap() error { return e.Err }

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that retry wrappers return it immediately instead of
// retrying. Use it for failures that another attempt cannot fix, such as
// invalid arguments. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
