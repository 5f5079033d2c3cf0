//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"iox16/protocol"
)

// RP2350 TIMER0 raw counter registers. The RP2040 timer lives at
// 0x40054000 instead.
//
// timeRawH @ 0x24 - raw read from upper 32b
// timeRawL @ 0x28 - raw read from lower 32b (what TinyGo uses)
const (
	timerBase     = 0x400B0000
	timerTimeRawH = timerBase + 0x24
	timerTimeRawL = timerBase + 0x28
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// hwClock is the 1 MHz hardware timer as a core.Clock.
type hwClock struct{}

// InitClock waits for the timer to settle after TinyGo's clock setup.
// TinyGo's runtime already starts the tick generators.
func InitClock() {
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	_ = timerRawL.Get()
}

func (hwClock) Now() protocol.Ticks {
	return protocol.Ticks(timerRawL.Get())
}

// GetHardwareUptime reads the full 64-bit microsecond counter.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// delayMicros spins on the timer. Used for settle times far below the
// scheduler's sleep granularity.
func delayMicros(us uint32) {
	start := timerRawL.Get()
	for timerRawL.Get()-start < us {
	}
}
