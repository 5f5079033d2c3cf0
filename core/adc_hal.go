package core

import "iox16/protocol"

// NumInputs is the number of analog input channels.
const NumInputs = protocol.NumInputs

// InputSampler is the abstract analog input interface that core code uses.
type InputSampler interface {
	// SampleInputs reads all input channels into dst. Values are raw
	// converter counts in 0..InputFullScale.
	SampleInputs(dst *[NumInputs]uint16) error

	// InputFullScale returns the count that corresponds to 3.3 V.
	InputFullScale() uint16
}

// StaleChannelsError reports a sample where only some channels failed.
// Channels whose bit is set in Mask keep their previous value.
type StaleChannelsError struct {
	Mask uint16
	Err  error
}

func (e *StaleChannelsError) Error() string {
	msg := "stale input channels " + hex16(e.Mask)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StaleChannelsError) Unwrap() error {
	return e.Err
}
