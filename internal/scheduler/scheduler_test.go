package scheduler

import (
	"testing"
	"time"
)

func TestPopReadyMonotonicOrder(t *testing.T) {
	s := New()
	base := time.Unix(1000, 0)
	s.now = func() time.Time { return base }

	s.ScheduleAt("b", base.Add(2*time.Second))
	s.ScheduleAt("a", base.Add(1*time.Second))
	s.ScheduleAt("c", base.Add(3*time.Second))

	ready := s.PopReady(base.Add(1 * time.Second))
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected only a ready at t+1s, got %v", ready)
	}

	ready = s.PopReady(base.Add(2 * time.Second))
	if len(ready) != 1 || ready[0] != "b" {
		t.Fatalf("expected only b ready at t+2s, got %v", ready)
	}
}

func TestPopReadyDeduplicatesStaleEntries(t *testing.T) {
	s := New()
	base := time.Unix(0, 0)

	s.ScheduleAt("x", base.Add(1*time.Second))
	s.ScheduleAt("x", base.Add(2*time.Second)) // stale duplicate for same output

	ready := s.PopReady(base.Add(5 * time.Second))
	if len(ready) != 1 {
		t.Fatalf("expected exactly one entry for output x, got %v", ready)
	}
}

func TestRemoveOutputIsIdempotent(t *testing.T) {
	s := New()
	base := time.Unix(0, 0)

	s.ScheduleAt("x", base.Add(1*time.Second))
	s.RemoveOutput("x")

	ready := s.PopReady(base.Add(10 * time.Second))
	if len(ready) != 0 {
		t.Fatalf("expected no ready outputs after removal, got %v", ready)
	}

	// Re-scheduling after removal must work again.
	s.ScheduleAt("x", base.Add(1*time.Second))
	ready = s.PopReady(base.Add(10 * time.Second))
	if len(ready) != 1 || ready[0] != "x" {
		t.Fatalf("expected x ready after re-schedule, got %v", ready)
	}
}

func TestNextDeadlineReportsZeroForPastDeadline(t *testing.T) {
	s := New()
	base := time.Unix(0, 0)
	s.now = func() time.Time { return base.Add(10 * time.Second) }

	s.ScheduleAt("x", base)

	d, ok := s.NextDeadline()
	if !ok {
		t.Fatal("expected a deadline to be present")
	}
	if d != 0 {
		t.Fatalf("expected Duration(0) for a past deadline, got %v", d)
	}
}

func TestNextDeadlineEmpty(t *testing.T) {
	s := New()
	if _, ok := s.NextDeadline(); ok {
		t.Fatal("expected no deadline on empty scheduler")
	}
}
