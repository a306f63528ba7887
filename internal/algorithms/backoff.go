package algorithms

import (
	"math/rand/v2"
	"time"
)

const (
	maxShift = 62 // Prevent overflow in backoff calculation
)

// noBackoff never waits. Retries rely only on the scheduler yield point.
type noBackoff struct{}

func (noBackoff) Next(int) time.Duration { return 0 }

// decorrelatedJitterBackoff implements AWS-style decorrelated jitter backoff.
// Algorithm: sleep = min(maxDelay, random(initialDelay, prevSleep * 3))
//
// Each retry's delay depends on the previous delay rather than only on the
// retry number, which decorrelates jobs that failed at the same moment.
//
// Reference: AWS Architecture Blog - "Exponential Backoff And Jitter" (Marc Brooker, 2015)
type decorrelatedJitterBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	prevDelay    time.Duration
}

func newDecorrelatedJitterBackoff(initialDelay, maxDelay time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		prevDelay:    initialDelay,
	}
}

// Next returns a delay chosen between initialDelay and 3x the previous
// delay, capped at maxDelay. The first retry always waits initialDelay.
func (djb *decorrelatedJitterBackoff) Next(retry int) time.Duration {
	if retry <= 0 {
		djb.prevDelay = djb.initialDelay
		return djb.initialDelay
	}

	upperBound := min(time.Duration(float64(djb.prevDelay)*3), djb.maxDelay)

	delayRange := upperBound - djb.initialDelay
	if delayRange <= 0 {
		djb.prevDelay = djb.initialDelay
		return djb.initialDelay
	}

	delay := djb.initialDelay + rand.N(delayRange) // #nosec G404 -- crypto rand not needed for backoff jitter
	djb.prevDelay = delay
	return delay
}

// jitteredBackoff adds randomization to exponential backoff to prevent thundering herd.
// Delay formula: exponentialDelay * (1 ± jitterFactor)
//
// Example with jitterFactor=0.1:
// Base delay of 1s becomes random value between 900ms and 1100ms
type jitteredBackoff struct {
	initialDelay, maxDelay time.Duration
	jitterFactor           float64
}

func newJitteredBackoff(initialDelay, maxDelay time.Duration, jitterFactor float64) *jitteredBackoff {
	return &jitteredBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		jitterFactor: clamp(jitterFactor, 0, 1),
	}
}

func (jb *jitteredBackoff) Next(retry int) time.Duration {
	if retry < 0 {
		return 0
	}

	baseDelay := calcExponentialDelay(retry, jb.initialDelay, jb.maxDelay)
	jitterMultiplier := 1.0 + (rand.Float64()*2-1)*jb.jitterFactor // #nosec G404

	actualDelay := time.Duration(float64(baseDelay) * jitterMultiplier)
	return clamp(actualDelay, 0, jb.maxDelay)
}

// exponentialBackoff implements simple exponential backoff.
// Delay formula: initialDelay * 2^retry, capped at maxDelay.
type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

func newExponentialBackoff(initialDelay, maxDelay time.Duration) *exponentialBackoff {
	return &exponentialBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

func (eb *exponentialBackoff) Next(retry int) time.Duration {
	return calcExponentialDelay(retry, eb.initialDelay, eb.maxDelay)
}

func calcExponentialDelay(retry int, initialDelay, maxDelay time.Duration) time.Duration {
	if retry < 0 {
		return 0
	}

	if retry >= maxShift {
		return maxDelay
	}

	factor := time.Duration(int64(1) << uint(retry))
	delay := factor * initialDelay

	if delay > maxDelay || delay < 0 || delay/factor != initialDelay {
		return maxDelay
	}

	return delay
}

func clamp[T float64 | time.Duration](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
