// Package sched is a single-threaded delayed-callback queue driven by the
// engine tick. It plays the part of the host's task scheduler: callbacks only
// run from Tick, on the goroutine that calls Tick.
package sched

import (
	"container/heap"
	"io"
	"log"
)

// Runner is the narrow scheduling surface components depend on.
type Runner interface {
	RunNextTick(fn func())
	RunAfterDelay(fn func(), ticks int)
}

type task struct {
	due uint64
	seq uint64
	fn  func()
}

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = task{}
	*h = old[:n-1]
	return t
}

// Scheduler is not safe for concurrent use.
type Scheduler struct {
	now     uint64
	nextSeq uint64
	queue   taskHeap
	ran     uint64
	log     *log.Logger
}

func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{log: logger}
}

// Now returns the last completed tick.
func (s *Scheduler) Now() uint64 { return s.now }

// Pending returns the number of callbacks waiting to run.
func (s *Scheduler) Pending() int { return len(s.queue) }

// Executed returns the number of callbacks run so far.
func (s *Scheduler) Executed() uint64 { return s.ran }

func (s *Scheduler) RunNextTick(fn func()) { s.RunAfterDelay(fn, 1) }

// RunAfterDelay queues fn to run ticks ticks from now. Delays below one tick
// are rounded up so a callback never runs during the tick that queued it.
func (s *Scheduler) RunAfterDelay(fn func(), ticks int) {
	if fn == nil {
		return
	}
	if ticks < 1 {
		ticks = 1
	}
	s.nextSeq++
	heap.Push(&s.queue, task{due: s.now + uint64(ticks), seq: s.nextSeq, fn: fn})
}

// Tick advances the clock by one and runs every callback due at or before the
// new tick, ordered by due tick then submission order. It returns the number
// of callbacks run.
func (s *Scheduler) Tick() int {
	s.now++
	n := 0
	for len(s.queue) > 0 && s.queue[0].due <= s.now {
		t := heap.Pop(&s.queue).(task)
		s.run(t)
		n++
	}
	return n
}

// Drain ticks until nothing is queued or maxTicks have elapsed. It returns the
// number of ticks advanced.
func (s *Scheduler) Drain(maxTicks int) int {
	ticks := 0
	for len(s.queue) > 0 && ticks < maxTicks {
		s.Tick()
		ticks++
	}
	return ticks
}

func (s *Scheduler) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("task due=%d panicked: %v", t.due, r)
		}
	}()
	s.ran++
	t.fn()
}
