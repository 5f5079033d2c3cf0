package core

// Direction is the state of the half-duplex transceiver.
type Direction uint8

const (
	Receive Direction = iota
	Transmit
)

func (d Direction) String() string {
	if d == Transmit {
		return "transmit"
	}
	return "receive"
}

// Line is the half-duplex serial bus as seen by the firmware.
// Platform-specific implementations handle UART and transceiver control.
type Line interface {
	// TryReadByte returns the next received byte without blocking.
	// ok is false when nothing is buffered.
	TryReadByte() (b byte, ok bool)

	// WriteBytes queues bytes for transmission. Only called while the
	// direction is Transmit.
	WriteBytes(p []byte) error

	// SetDirection drives the transceiver enable.
	SetDirection(d Direction)

	// TransmitComplete reports whether every queued byte has physically
	// left the wire, including the stop bit of the last one.
	TransmitComplete() bool
}
