package core

import (
	"testing"

	"iox16/protocol"
)

func TestSchedulerOrder(t *testing.T) {
	var s Scheduler
	var fired []int

	mk := func(id int, wake protocol.Ticks) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}}
	}

	s.Schedule(mk(3, 300))
	s.Schedule(mk(1, 100))
	s.Schedule(mk(2, 200))

	if n := s.Dispatch(50); n != 0 {
		t.Errorf("Expected no timers before 100, got %d", n)
	}
	if n := s.Dispatch(250); n != 2 {
		t.Errorf("Expected 2 timers by 250, got %d", n)
	}
	s.Dispatch(300)

	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("Expected order [1 2 3], got %v", fired)
	}
	if s.Next() != nil {
		t.Error("Expected empty schedule")
	}
}

func TestSchedulerWrap(t *testing.T) {
	var s Scheduler
	var fired []string

	late := &Timer{WakeTime: 0x00000010, Handler: func(*Timer) uint8 {
		fired = append(fired, "after-wrap")
		return SF_DONE
	}}
	early := &Timer{WakeTime: 0xFFFFFFF0, Handler: func(*Timer) uint8 {
		fired = append(fired, "before-wrap")
		return SF_DONE
	}}

	s.Schedule(late)
	s.Schedule(early)

	if s.Next() != early {
		t.Fatal("Expected timer before the wrap to be first")
	}

	// Just before the wrap only the early timer is due
	if n := s.Dispatch(0xFFFFFFF8); n != 1 {
		t.Errorf("Expected 1 timer before wrap, got %d", n)
	}
	// After the wrap the late timer is due although its tick value is smaller
	if n := s.Dispatch(0x00000020); n != 1 {
		t.Errorf("Expected 1 timer after wrap, got %d", n)
	}
	if len(fired) != 2 || fired[0] != "before-wrap" || fired[1] != "after-wrap" {
		t.Errorf("Unexpected firing order %v", fired)
	}
}

func TestSchedulerReschedule(t *testing.T) {
	var s Scheduler
	count := 0

	periodic := &Timer{WakeTime: 1000}
	periodic.Handler = func(tm *Timer) uint8 {
		count++
		tm.WakeTime += 1000
		return SF_RESCHEDULE
	}
	s.Schedule(periodic)

	for now := protocol.Ticks(0); now <= 5000; now += 500 {
		s.Dispatch(now)
	}
	if count != 5 {
		t.Errorf("Expected 5 runs, got %d", count)
	}
}

func TestSchedulerRunawayBounded(t *testing.T) {
	var s Scheduler
	count := 0

	stuck := &Timer{WakeTime: 0}
	stuck.Handler = func(*Timer) uint8 {
		count++
		return SF_RESCHEDULE // never advances
	}
	s.Schedule(stuck)

	if n := s.Dispatch(10); n != maxDispatch {
		t.Errorf("Expected dispatch bounded at %d, got %d", maxDispatch, n)
	}
}

func TestSchedulerCancelAndMove(t *testing.T) {
	var s Scheduler
	fired := 0
	tm := &Timer{WakeTime: 100, Handler: func(*Timer) uint8 {
		fired++
		return SF_DONE
	}}

	s.Schedule(tm)
	tm.WakeTime = 500
	s.Schedule(tm) // moved, not duplicated

	s.Dispatch(200)
	if fired != 0 {
		t.Errorf("Expected moved timer not to fire at 200, fired %d", fired)
	}
	s.Cancel(tm)
	s.Dispatch(1000)
	if fired != 0 {
		t.Errorf("Expected cancelled timer not to fire, fired %d", fired)
	}
}
