// Package scheduler implements the Frame Scheduler (C4): a min-heap of
// per-output deadlines that yields the next ready output(s) to the Core
// Orchestrator.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// OutputName identifies the output an entry belongs to.
type OutputName string

// entry is one scheduled deadline. Ties are broken by insertion order
// (seq), matching spec.md 4.4: "Tie-break by insertion order ensures
// determinism for tests."
type entry struct {
	deadline time.Time
	output   OutputName
	seq      uint64
	index    int // maintained by container/heap
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the Frame Scheduler. It is safe for concurrent use, though
// spec.md's single-threaded event-loop invariant means in practice only
// the Orchestrator goroutine calls it.
type Scheduler struct {
	mu   sync.Mutex
	heap entryHeap
	seq  uint64

	now func() time.Time // overridable for deterministic tests
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// nextID returns a monotonically increasing insertion id, used only for
// the heap's deterministic tie-break.
func (s *Scheduler) nextID() uint64 {
	s.seq++
	return s.seq
}

// Schedule inserts (now + duration, output, next_id()). It does not
// deduplicate: the same output may hold multiple entries, but only the
// earliest governs, per spec.md 4.4.
func (s *Scheduler) Schedule(output OutputName, duration time.Duration) {
	s.ScheduleAt(output, s.now().Add(duration))
}

// ScheduleAt inserts an explicit deadline instant for output.
func (s *Scheduler) ScheduleAt(output OutputName, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, &entry{deadline: at, output: output, seq: s.nextID()})
}

// RemoveOutput drops all entries for output, used on detach or source
// change (testable property 3: idempotent removal).
func (s *Scheduler) RemoveOutput(output OutputName) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.heap[:0]
	for _, e := range s.heap {
		if e.output == output {
			continue
		}
		kept = append(kept, e)
	}
	s.heap = kept
	heap.Init(&s.heap)
}

// NextDeadline peeks the earliest entry and returns the duration from now
// until it fires, or (0, false) if the scheduler is empty. A deadline
// already in the past yields Duration(0).
func (s *Scheduler) NextDeadline() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return 0, false
	}
	d := s.heap[0].deadline.Sub(s.now())
	if d < 0 {
		return 0, true
	}
	return d, true
}

// PopReady yields the set of distinct output names whose earliest entry is
// due at or before now. For each such output only the earliest entry is
// consumed; later stale entries for the same output encountered along the
// way are dropped, per spec.md 4.4.
func (s *Scheduler) PopReady(now time.Time) []OutputName {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[OutputName]bool)
	var ready []OutputName

	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		if seen[e.output] {
			continue // stale duplicate for an output already yielded this pop
		}
		seen[e.output] = true
		ready = append(ready, e.output)
	}
	return ready
}

// Len reports the number of outstanding entries, for diagnostics and tests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}
