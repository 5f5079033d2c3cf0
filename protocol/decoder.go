package protocol

// State is the phase of the frame decoder.
type State uint8

// Decoder states, in the order a frame walks through them.
const (
	StateIdle       State = iota // waiting for a start byte
	StateSync                    // start byte seen, waiting for the address
	StateGotAddress              // waiting for the command
	StateGotCommand              // waiting for the length
	StateGotLength               // length known, waiting for the first payload byte
	StatePayload                 // collecting payload bytes
	StateCRC                     // collecting the two checksum bytes
	StateComplete                // a valid frame is available from Frame
	StateError                   // the frame was rejected, see Err
)

// DefaultInterByteTimeout is the maximum gap between two bytes of one frame.
const DefaultInterByteTimeout = 1000 // microseconds

// DecoderStats counts decoder outcomes.
type DecoderStats struct {
	Frames    uint32
	CRCErrors uint32
	Oversize  uint32
	Timeouts  uint32
}

// Decoder assembles frames from a byte stream, one byte at a time.
// It never blocks and never allocates.
type Decoder struct {
	state   State
	timeout uint32
	last    Ticks

	address uint8
	command uint8
	length  uint8
	n       uint8
	payload [MaxPayload]byte

	crc      uint16
	rxCRC    uint16
	crcBytes uint8

	err   error
	stats DecoderStats
}

// NewDecoder creates a decoder with the given inter-byte timeout in
// microseconds. Zero selects DefaultInterByteTimeout.
func NewDecoder(timeoutUS uint32) *Decoder {
	d := &Decoder{}
	d.SetTimeout(timeoutUS)
	return d
}

// SetTimeout changes the inter-byte timeout.
func (d *Decoder) SetTimeout(timeoutUS uint32) {
	if timeoutUS == 0 {
		timeoutUS = DefaultInterByteTimeout
	}
	d.timeout = timeoutUS
}

// State returns the current decoder phase.
func (d *Decoder) State() State {
	return d.state
}

// InFrame reports whether the decoder holds a partially received frame.
func (d *Decoder) InFrame() bool {
	return d.state != StateIdle && d.state != StateComplete && d.state != StateError
}

// Stats returns the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Err returns why the last frame was rejected. Valid while the state is StateError.
func (d *Decoder) Err() error {
	return d.err
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.n = 0
	d.crcBytes = 0
	d.err = nil
}

// Frame returns the completed frame. The payload aliases decoder memory and
// is only valid until the next call to Feed.
func (d *Decoder) Frame() Frame {
	return Frame{
		Address: d.address,
		Command: d.command,
		Payload: d.payload[:d.length],
	}
}

// Expire drops a partial frame whose last byte is older than the
// inter-byte timeout. It returns true when a frame was dropped.
func (d *Decoder) Expire(now Ticks) bool {
	if !d.InFrame() || Elapsed(now, d.last) <= d.timeout {
		return false
	}
	d.stats.Timeouts++
	d.Reset()
	return true
}

// Feed consumes one byte received at now and returns the resulting state.
// StateComplete and StateError last for a single call; the next Feed starts
// a new frame.
func (d *Decoder) Feed(b byte, now Ticks) State {
	if d.state == StateComplete || d.state == StateError {
		d.Reset()
	}
	d.Expire(now)
	d.last = now

	switch d.state {
	case StateIdle:
		if b == StartByte {
			d.crc = 0xFFFF
			d.state = StateSync
		}

	case StateSync:
		d.address = b
		d.crc = crc16Byte(d.crc, b)
		d.state = StateGotAddress

	case StateGotAddress:
		d.command = b
		d.crc = crc16Byte(d.crc, b)
		d.state = StateGotCommand

	case StateGotCommand:
		if b > MaxPayload {
			d.stats.Oversize++
			d.err = ErrPayloadTooLarge
			d.state = StateError
			break
		}
		d.length = b
		d.n = 0
		d.crc = crc16Byte(d.crc, b)
		if b == 0 {
			d.state = StateCRC
		} else {
			d.state = StateGotLength
		}

	case StateGotLength, StatePayload:
		d.payload[d.n] = b
		d.n++
		d.crc = crc16Byte(d.crc, b)
		if d.n == d.length {
			d.state = StateCRC
		} else {
			d.state = StatePayload
		}

	case StateCRC:
		if d.crcBytes == 0 {
			d.rxCRC = uint16(b)
			d.crcBytes = 1
			break
		}
		d.rxCRC |= uint16(b) << 8
		d.crcBytes = 0
		if d.rxCRC != d.crc {
			d.stats.CRCErrors++
			d.err = ErrBadCRC
			d.state = StateError
			break
		}
		d.stats.Frames++
		d.state = StateComplete
	}
	return d.state
}

// Receive consumes bytes from in up to and including the end of the first
// complete frame. The returned frame owns its payload.
func (d *Decoder) Receive(in InputBuffer, now Ticks) (Frame, bool) {
	data := in.Data()
	for i, b := range data {
		if d.Feed(b, now) == StateComplete {
			in.Pop(i + 1)
			f := d.Frame()
			f.Payload = append([]byte(nil), f.Payload...)
			return f, true
		}
	}
	in.Pop(len(data))
	return Frame{}, false
}
