package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestResultCollector_SetOncePerSlot(t *testing.T) {
	c := NewResultCollector[string](3)

	if !c.Set(Outcome[string]{Index: 1, Value: "first"}) {
		t.Fatal("first write to an empty slot should succeed")
	}
	if c.Set(Outcome[string]{Index: 1, Value: "second"}) {
		t.Error("second write to the same slot should be rejected")
	}
	if c.Set(Outcome[string]{Index: 3}) || c.Set(Outcome[string]{Index: -1}) {
		t.Error("out of range indexes should be rejected")
	}

	if got := c.Outcomes()[1].Value; got != "first" {
		t.Errorf("expected the first write to win, got %q", got)
	}
	if c.Completed() != 1 || c.Done() {
		t.Errorf("expected 1 of 3 completed, got %d (done=%v)", c.Completed(), c.Done())
	}
}

func TestResultCollector_ConcurrentWriters(t *testing.T) {
	const n = 500
	c := NewResultCollector[int](n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Set(Outcome[int]{Index: i, Value: i * 2})
		}()
	}
	wg.Wait()

	if !c.Done() {
		t.Fatalf("expected all %d slots filled, got %d", n, c.Completed())
	}
	for i, o := range c.Outcomes() {
		if o.Index != i || o.Value != i*2 {
			t.Fatalf("slot %d holds %+v", i, o)
		}
	}
}

func TestResultCollector_FillRemaining(t *testing.T) {
	c := NewResultCollector[int](4)
	c.Set(Outcome[int]{Index: 0, Value: 1, Attempts: 1})
	c.Set(Outcome[int]{Index: 2, Value: 3, Attempts: 1})

	if n := c.FillRemaining(context.Canceled); n != 2 {
		t.Errorf("expected 2 filled slots, got %d", n)
	}

	out := c.Outcomes()
	for _, i := range []int{1, 3} {
		if !errors.Is(out[i].Err, ErrNotAdmitted) || !errors.Is(out[i].Err, context.Canceled) {
			t.Errorf("slot %d: expected ErrNotAdmitted wrapping the cause, got %v", i, out[i].Err)
		}
		if out[i].Attempts != 0 {
			t.Errorf("slot %d: a job never admitted has 0 attempts, got %d", i, out[i].Attempts)
		}
	}
	if !out[0].OK() || !out[2].OK() {
		t.Error("filled slots must be left untouched")
	}
	if c.FillRemaining(context.Canceled) != 0 {
		t.Error("a full collector has nothing left to fill")
	}
}

func TestOutcomeHelpers(t *testing.T) {
	boom := errors.New("boom")
	outcomes := []Outcome[int]{
		{Index: 0, Value: 1},
		{Index: 1, Err: boom},
		{Index: 2, Value: 3},
		{Index: 3, Err: errTransient},
	}

	if got := Values(outcomes); len(got) != 4 || got[0] != 1 || got[1] != 0 || got[2] != 3 {
		t.Errorf("unexpected values %v", got)
	}
	if err := FirstError(outcomes); !errors.Is(err, boom) {
		t.Errorf("expected the lowest-indexed failure, got %v", err)
	}
	if n := Failed(outcomes); n != 2 {
		t.Errorf("expected 2 failures, got %d", n)
	}
	if FirstError(outcomes[:1]) != nil {
		t.Error("expected no error for successful outcomes")
	}
}
