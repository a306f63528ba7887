package batch

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds how fast jobs are admitted, independently of how many
// run at once. It is a token bucket refilled continuously at jobsPerSecond
// with capacity burst. Tokens are consumed, never returned.
type RateLimiter struct {
	limiter  *rate.Limiter
	admitted atomic.Int64
}

// NewRateLimiter creates a limiter admitting jobsPerSecond jobs on average.
// A zero burst defaults to one second worth of tokens, ceil(jobsPerSecond).
// The bucket starts empty, so the first token accrues after 1/jobsPerSecond
// and admissions never outpace the rate from a cold start.
//
// It returns ErrInvalidConfig for a non-positive or non-finite rate, or a
// negative burst.
//
// Example:
//
//	limiter, _ := NewRateLimiter(5, 0) // 5 jobs/sec, up to 5 saved up while idle
//	limiter, _ := NewRateLimiter(5, 1) // 5 jobs/sec, strictly spaced 200ms apart
func NewRateLimiter(jobsPerSecond float64, burst int) (*RateLimiter, error) {
	if err := validateRate(jobsPerSecond, burst); err != nil {
		return nil, err
	}
	burst = defaultBurst(jobsPerSecond, burst)
	limiter := rate.NewLimiter(rate.Limit(jobsPerSecond), burst)
	limiter.AllowN(time.Now(), burst)

	return &RateLimiter{limiter: limiter}, nil
}

// Acquire consumes one token, blocking until one accrues or ctx is done.
// It fails early with context.DeadlineExceeded when ctx carries a deadline
// the next token cannot meet.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return context.DeadlineExceeded
	}
	l.admitted.Add(1)
	return nil
}

// TryAcquire consumes a token only if one is available right now.
func (l *RateLimiter) TryAcquire() bool {
	if !l.limiter.Allow() {
		return false
	}
	l.admitted.Add(1)
	return true
}

// Rate returns the refill rate in tokens per second.
func (l *RateLimiter) Rate() float64 { return float64(l.limiter.Limit()) }

// Burst returns the bucket capacity.
func (l *RateLimiter) Burst() int { return l.limiter.Burst() }

// Admitted returns how many tokens have been consumed.
func (l *RateLimiter) Admitted() int64 { return l.admitted.Load() }
