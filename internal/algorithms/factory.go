package algorithms

import "time"

// Kind defines the retry backoff algorithm to use.
type Kind int

const (
	// Exponential uses simple exponential backoff (default).
	Exponential Kind = iota
	// Jittered adds random jitter to prevent thundering herd.
	Jittered
	// Decorrelated uses AWS-style decorrelated jitter.
	Decorrelated
)

func (k Kind) String() string {
	switch k {
	case Jittered:
		return "jittered"
	case Decorrelated:
		return "decorrelated"
	default:
		return "exponential"
	}
}

// ParseKind maps a configuration string to a Kind. Unknown names fall back to Exponential.
func ParseKind(s string) Kind {
	switch s {
	case "jittered", "jitter":
		return Jittered
	case "decorrelated":
		return Decorrelated
	default:
		return Exponential
	}
}

// Config describes a backoff algorithm. The zero value disables backoff:
// every Schedule built from it returns 0.
type Config struct {
	Kind    Kind
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // 0.0 to 1.0, only used by Jittered
}

// Enabled reports whether the configuration produces non-zero delays.
func (c Config) Enabled() bool { return c.Initial > 0 }

// NewSchedule creates a fresh schedule for one job invocation.
// A zero Max is treated as "no cap".
func NewSchedule(cfg Config) Schedule {
	if !cfg.Enabled() {
		return noBackoff{}
	}

	maxDelay := cfg.Max
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}
	maxDelay = max(maxDelay, cfg.Initial)

	switch cfg.Kind {
	case Jittered:
		return newJitteredBackoff(cfg.Initial, maxDelay, cfg.Jitter)

	case Decorrelated:
		return newDecorrelatedJitterBackoff(cfg.Initial, maxDelay)

	default:
		return newExponentialBackoff(cfg.Initial, maxDelay)
	}
}
