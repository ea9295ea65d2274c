package amd

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Scheduler is the single logical thread the loader runs on. Every engine
// callback is executed by it, one at a time.
type Scheduler interface {
	// Defer queues fn to run on the scheduler thread. It is safe to call
	// from any goroutine.
	Defer(fn func())

	// After queues fn to run on the scheduler thread once d has elapsed.
	// stop prevents fn from being queued and reports whether it did so.
	After(d time.Duration, fn func()) (stop func() bool)
}

// EventLoop is a Scheduler backed by one goroutine draining an unbounded
// task queue.
type EventLoop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	running bool
}

// NewEventLoop creates a stopped event loop. Call Run or Start.
func NewEventLoop() *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine until Close is called.
func (l *EventLoop) Start() {
	go func() {
		_ = l.Run(context.Background())
	}()
}

// Run executes queued tasks until ctx is done or Close is called.
func (l *EventLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		closed := l.closed
		l.mu.Unlock()

		for _, task := range tasks {
			task()
		}
		if closed {
			return ErrLoaderClosed
		}
		if len(tasks) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
		case <-l.wake:
		}
	}
}

// Defer implements Scheduler. Tasks queued after Close are dropped.
func (l *EventLoop) Defer(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After implements Scheduler.
func (l *EventLoop) After(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() {
		l.Defer(fn)
	})
	return t.Stop
}

// Closed reports whether Close has been called.
func (l *EventLoop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops the loop after the tasks already queued have run.
func (l *EventLoop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.done)
}

// StepScheduler is a deterministic Scheduler driven by its caller. Tasks
// run only inside Drain, and timers fire only when Advance moves the
// virtual clock past them.
type StepScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	tasks  []func()
	timers []*stepTimer
}

type stepTimer struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
}

// NewStepScheduler creates a scheduler at virtual time zero.
func NewStepScheduler() *StepScheduler {
	return &StepScheduler{}
}

// Defer implements Scheduler.
func (s *StepScheduler) Defer(fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()
}

// After implements Scheduler.
func (s *StepScheduler) After(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &stepTimer{at: s.now + d, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Now returns the virtual time.
func (s *StepScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of queued tasks and armed timers.
func (s *StepScheduler) Pending() (tasks, timers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		if !t.stopped {
			timers++
		}
	}
	return len(s.tasks), timers
}

// Drain runs queued tasks, including the ones they queue, until none are
// left. It returns how many ran.
func (s *StepScheduler) Drain() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return n
		}
		task := s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		task()
		n++
	}
}

// Advance drains, then moves the virtual clock forward by d, firing due
// timers in deadline order and draining after each one.
func (s *StepScheduler) Advance(d time.Duration) {
	s.Drain()

	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		sort.SliceStable(s.timers, func(i, j int) bool {
			if s.timers[i].at != s.timers[j].at {
				return s.timers[i].at < s.timers[j].at
			}
			return s.timers[i].seq < s.timers[j].seq
		})
		var next *stepTimer
		for len(s.timers) > 0 {
			t := s.timers[0]
			if t.stopped {
				s.timers = s.timers[1:]
				continue
			}
			if t.at <= target {
				next = t
				s.timers = s.timers[1:]
				t.stopped = true
				s.now = t.at
			}
			break
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.tasks = append(s.tasks, next.fn)
		s.mu.Unlock()

		s.Drain()
	}
}
