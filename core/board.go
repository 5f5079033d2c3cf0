package core

import "iox16/protocol"

// Clock is the monotonic microsecond tick source.
type Clock interface {
	Now() protocol.Ticks
}

// Board is everything the firmware core needs from the hardware.
// Optional capabilities (FrequencyDriver, Rebooter, StatusLED) are
// discovered by type assertion.
type Board interface {
	Line
	InputSampler
	OutputDriver
	Clock
}

// Rebooter is implemented by boards that can restart themselves.
type Rebooter interface {
	Reboot()
}
