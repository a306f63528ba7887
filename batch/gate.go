package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyGate bounds the number of jobs holding a slot at the same time.
// It is a counting semaphore with in-flight and peak bookkeeping.
// Waiters are admitted in FIFO order.
type ConcurrencyGate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewConcurrencyGate creates a gate with n slots.
// It returns ErrInvalidConfig if n is not positive.
func NewConcurrencyGate(n int) (*ConcurrencyGate, error) {
	if n <= 0 {
		return nil, invalidConfig("gate capacity must be positive, got %d", n)
	}
	return &ConcurrencyGate{
		sem:      semaphore.NewWeighted(int64(n)),
		capacity: int64(n),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
// On failure it returns ctx.Err() and holds no slot.
func (g *ConcurrencyGate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.enter()
	return nil
}

// TryAcquire takes a slot without blocking and reports whether it succeeded.
func (g *ConcurrencyGate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.enter()
	return true
}

// Release frees a slot taken by Acquire or TryAcquire.
// Releasing more slots than were acquired panics.
func (g *ConcurrencyGate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Capacity returns the number of slots.
func (g *ConcurrencyGate) Capacity() int { return int(g.capacity) }

// InFlight returns the number of slots currently held.
func (g *ConcurrencyGate) InFlight() int { return int(g.inFlight.Load()) }

// Peak returns the highest number of slots held at once since creation.
func (g *ConcurrencyGate) Peak() int { return int(g.peak.Load()) }

func (g *ConcurrencyGate) enter() {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}
