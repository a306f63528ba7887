package algorithms

import "time"

// Schedule yields the delays a single job waits between its attempts.
//
// A Schedule belongs to exactly one job invocation and is not safe for
// concurrent use; create a fresh one per invocation with NewSchedule.
type Schedule interface {
	// Next returns the delay before retry number retry.
	// retry is 0-indexed (0 = first retry after the initial failure).
	Next(retry int) time.Duration
}
