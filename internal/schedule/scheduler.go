// Package schedule provides the cancellable single-shot timers behind
// debounced highlighting and auto-save. Arming an id that already has a
// pending timer cancels the old one first, so two timers for the same
// purpose never coexist.
package schedule

import (
	"sync"
	"time"
)

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop cancels the timer. It reports false if the callback already
	// started running.
	Stop() bool
}

// Clock creates timers. Production code uses the real clock; tests drive
// a ManualClock instead.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

type realTimer struct {
	t *time.Timer
}

func (t realTimer) Stop() bool { return t.t.Stop() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// Scheduler tracks at most one pending timer per id.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]Timer
}

func New() *Scheduler {
	return NewWithClock(realClock{})
}

func NewWithClock(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]Timer),
	}
}

// Arm schedules fn to run once after delay, cancelling any pending timer
// for the same id. The callback runs off the owning loop; callers that
// touch loop-owned state must marshal back onto it.
func (s *Scheduler) Arm(id string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending timer for id, if any.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports whether id has an armed timer.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}
