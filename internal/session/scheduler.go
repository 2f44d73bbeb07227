package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler runs deferred plugin callbacks for one session. Fired callbacks
// go through the executor supplied by the tracker so they never overlap a
// poll tick.
type Scheduler struct {
	clock clockwork.Clock
	exec  func(fn func())

	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

// NewScheduler creates a scheduler. exec may be nil, in which case callbacks
// run directly on the timer goroutine.
func NewScheduler(clock clockwork.Clock, exec func(fn func())) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Scheduler{
		clock: clock,
		exec:  exec,
		tasks: make(map[*Task]struct{}),
	}
}

// Task is a cancellable handle to one scheduled callback.
type Task struct {
	sched *Scheduler

	mu    sync.Mutex
	timer clockwork.Timer
	done  bool
}

// After schedules fn to run once after d. On a closed scheduler the
// returned task is already done and fn never runs.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{sched: s}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.done = true
		return t
	}
	s.tasks[t] = struct{}{}
	s.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = s.clock.AfterFunc(d, func() {
		s.exec(func() {
			if !t.finish() {
				return
			}
			fn()
		})
	})
	return t
}

// finish marks the task done and reports whether it was still pending.
func (t *Task) finish() bool {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	t.mu.Unlock()

	t.sched.forget(t)
	return true
}

// Cancel stops the task. It reports whether the task was still pending;
// cancelling a fired or cancelled task is a no-op.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	t.sched.forget(t)
	return true
}

// Pending reports whether the task has neither fired nor been cancelled.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (s *Scheduler) forget(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}

// Pending returns the number of outstanding tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every outstanding task and refuses new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}
