//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"iox16/protocol"
)

// RP2040 timer raw counter registers
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // raw timer high word, no latching
	timerTIMERAWL = timerBase + 0x28 // raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// hwClock is the 1 MHz hardware timer as a core.Clock.
type hwClock struct{}

func (hwClock) Now() protocol.Ticks {
	return protocol.Ticks(timerRAWL.Get())
}

// GetHardwareUptime reads the full 64-bit microsecond counter.
// High is read on both sides of low to detect a carry.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}
