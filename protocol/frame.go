package protocol

import "errors"

var (
	ErrPayloadTooLarge = errors.New("payload exceeds 64 bytes")
	ErrFrameTooShort   = errors.New("frame too short")
	ErrNoStartByte     = errors.New("missing start byte")
	ErrLengthMismatch  = errors.New("length field does not match frame size")
	ErrBadCRC          = errors.New("crc mismatch")
)

// Frame is one addressed bus message. The length field and checksum are
// derived on encode and verified on decode, so they are not stored.
type Frame struct {
	Address uint8
	Command uint8
	Payload []byte
}

// Size returns the encoded size of the frame in bytes.
func (f Frame) Size() int {
	return FrameMin + len(f.Payload)
}

// IsResponse reports whether the frame was sent by a board rather than the master.
func (f Frame) IsResponse() bool {
	return f.Command&ResponseFlag != 0
}

// IsError reports whether the frame is an error response.
func (f Frame) IsError() bool {
	return f.Command == ErrorResponse
}

// Encode returns the wire bytes of the frame.
func (f Frame) Encode() ([]byte, error) {
	return AppendFrame(make([]byte, 0, f.Size()), f)
}

// AppendFrame appends the wire encoding of f to dst.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return dst, ErrPayloadTooLarge
	}
	start := len(dst)
	dst = append(dst, StartByte, f.Address, f.Command, uint8(len(f.Payload)))
	dst = append(dst, f.Payload...)
	crc := CRC16(dst[start+1:])
	return append(dst, uint8(crc), uint8(crc>>8)), nil
}

// EncodeTo writes the frame into an OutputBuffer, for callers that reuse a
// fixed scratch buffer instead of allocating.
func (f Frame) EncodeTo(out OutputBuffer) error {
	if len(f.Payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	var header [FrameHeader]byte
	header[0] = StartByte
	header[1] = f.Address
	header[2] = f.Command
	header[3] = uint8(len(f.Payload))
	pos := out.CurPosition()
	out.Output(header[:])
	out.Output(f.Payload)
	crc := CRC16(out.DataSince(pos + 1))
	out.Output([]byte{uint8(crc), uint8(crc >> 8)})
	return nil
}

// ParseFrame decodes exactly one frame from data. The returned payload
// aliases data.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < FrameMin {
		return Frame{}, ErrFrameTooShort
	}
	if data[0] != StartByte {
		return Frame{}, ErrNoStartByte
	}
	n := int(data[3])
	if n > MaxPayload {
		return Frame{}, ErrPayloadTooLarge
	}
	if len(data) != FrameMin+n {
		return Frame{}, ErrLengthMismatch
	}
	crc := uint16(data[FrameHeader+n]) | uint16(data[FrameHeader+n+1])<<8
	if CRC16(data[1:FrameHeader+n]) != crc {
		return Frame{}, ErrBadCRC
	}
	return Frame{
		Address: data[1],
		Command: data[2],
		Payload: data[FrameHeader : FrameHeader+n],
	}, nil
}

// NewResponse builds the success response to a request.
func NewResponse(address, request uint8, payload []byte) Frame {
	return Frame{Address: address, Command: request | ResponseFlag, Payload: payload}
}

// NewErrorResponse builds the error response to a request.
func NewErrorResponse(address, request, code uint8) Frame {
	return Frame{Address: address, Command: ErrorResponse, Payload: []byte{code, request}}
}
