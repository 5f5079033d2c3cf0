package core

import (
	"time"

	"iox16/protocol"
)

// SystemClock is a Clock backed by the Go runtime's monotonic time.
// Targets with a free-running hardware timer read it directly instead.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock that starts at tick zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns microseconds since the clock was created, wrapped to 32 bits.
func (c *SystemClock) Now() protocol.Ticks {
	return protocol.Ticks(uint64(time.Since(c.start) / time.Microsecond))
}

// Uptime accumulates a 64-bit microsecond uptime from wrapping ticks.
// Update must be called at least once per tick wrap (about 71 minutes).
type Uptime struct {
	last    protocol.Ticks
	total   uint64
	started bool
}

// Update folds the ticks elapsed since the previous call into the total
// and returns it.
func (u *Uptime) Update(now protocol.Ticks) uint64 {
	if !u.started {
		u.started = true
		u.last = now
		return u.total
	}
	u.total += uint64(protocol.Elapsed(now, u.last))
	u.last = now
	return u.total
}

// Micros returns the accumulated uptime in microseconds.
func (u *Uptime) Micros() uint64 {
	return u.total
}

// Seconds returns the accumulated uptime in whole seconds.
func (u *Uptime) Seconds() uint32 {
	return uint32(u.total / 1000000)
}
