package batch

import (
	"fmt"
	"sync/atomic"
)

// ResultCollector holds one pre-allocated slot per submitted job, indexed by
// submission index. Every slot is filled at most once; concurrent Set calls
// on distinct slots need no locking.
type ResultCollector[V any] struct {
	slots     []Outcome[V]
	filled    []atomic.Bool
	completed atomic.Int64
}

// NewResultCollector creates a collector with n empty slots.
func NewResultCollector[V any](n int) *ResultCollector[V] {
	return &ResultCollector[V]{
		slots:  make([]Outcome[V], n),
		filled: make([]atomic.Bool, n),
	}
}

// Set stores o in the slot o.Index. It returns false if the index is out of
// range or the slot was already filled, in which case o is dropped.
func (c *ResultCollector[V]) Set(o Outcome[V]) bool {
	if o.Index < 0 || o.Index >= len(c.slots) {
		return false
	}
	if !c.filled[o.Index].CompareAndSwap(false, true) {
		return false
	}
	c.slots[o.Index] = o
	c.completed.Add(1)
	return true
}

// FillRemaining stores a failure wrapping ErrNotAdmitted and cause in every
// empty slot and returns how many slots it filled.
func (c *ResultCollector[V]) FillRemaining(cause error) int {
	err := ErrNotAdmitted
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrNotAdmitted, cause)
	}

	n := 0
	for i := range c.slots {
		if c.Set(Outcome[V]{Index: i, Err: err}) {
			n++
		}
	}
	return n
}

// Len returns the number of slots.
func (c *ResultCollector[V]) Len() int { return len(c.slots) }

// Completed returns the number of filled slots.
func (c *ResultCollector[V]) Completed() int { return int(c.completed.Load()) }

// Done reports whether every slot is filled.
func (c *ResultCollector[V]) Done() bool { return c.Completed() == len(c.slots) }

// Outcomes returns a copy of the slots in submission order. It must only be
// called once every writer has finished.
func (c *ResultCollector[V]) Outcomes() []Outcome[V] {
	out := make([]Outcome[V], len(c.slots))
	copy(out, c.slots)
	return out
}
