// Package serial opens the PC side of the bus: a USB/RS-485 adapter seen as
// a serial port. Two backends are available, github.com/tarm/serial and
// go.bug.st/serial; the latter can drive the transceiver enable through RTS.
package serial

import (
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - go.bug.st/serial, with RTS and port enumeration
// - The simulated bus of package sim (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush discards received bytes that were not read yet
	Flush() error
}

// DirectionControl is implemented by ports that can switch an external
// transceiver between transmit and receive.
type DirectionControl interface {
	SetTransmit(on bool) error
}

// Backend names accepted in Config.Backend.
const (
	BackendTarm  = "tarm"
	BackendBugst = "bugst"
)

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the bus
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	// Backend selects the driver, BackendTarm by default
	Backend string

	// RTSTransmit drives RTS high while transmitting (bugst backend only)
	RTSTransmit bool
}

// DefaultConfig returns the configuration of a 115200 baud bus
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 20,
		Backend:     BackendTarm,
	}
}

func (c *Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Millisecond
}

// ByteTime returns the wire time of one 10-bit character.
func ByteTime(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(10 * int64(time.Second) / int64(baud))
}
