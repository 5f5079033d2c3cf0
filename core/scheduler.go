package core

import "iox16/protocol"

// Timer represents a scheduled event
type Timer struct {
	WakeTime protocol.Ticks
	Handler  func(*Timer) uint8
	Next     *Timer
	queued   bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// maxDispatch bounds the handlers run by one Dispatch call so a timer that
// keeps rescheduling itself into the past cannot stall the loop.
const maxDispatch = 32

// Scheduler keeps timers sorted by wake time. Wake times are compared
// relative to each other, so the list stays ordered across tick wraps as long
// as no timer is more than 2^31 microseconds away.
type Scheduler struct {
	list *Timer
}

// Schedule adds a timer. A timer that is already queued is moved.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if t.queued {
		s.remove(t)
	}
	s.insert(t)
}

// Cancel removes a timer if it is queued.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if t.queued {
		s.remove(t)
	}
}

// Next returns the earliest queued timer, or nil.
func (s *Scheduler) Next() *Timer {
	return s.list
}

// Dispatch runs every timer whose wake time has been reached and returns
// the number of handlers called.
func (s *Scheduler) Dispatch(now protocol.Ticks) int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := 0
	for s.list != nil && protocol.Reached(now, s.list.WakeTime) && n < maxDispatch {
		timer := s.list
		s.list = timer.Next
		timer.Next = nil
		timer.queued = false

		n++
		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insert(timer)
		}
	}
	return n
}

// insert inserts a timer in sorted order by WakeTime
func (s *Scheduler) insert(t *Timer) {
	t.queued = true
	if s.list == nil || before(t.WakeTime, s.list.WakeTime) {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && !before(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	t.queued = false
	if s.list == t {
		s.list = t.Next
		t.Next = nil
		return
	}
	for current := s.list; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

func before(a, b protocol.Ticks) bool {
	return int32(a-b) < 0
}
