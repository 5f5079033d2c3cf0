package core

import "iox16/protocol"

// Output channel counts
const (
	NumOutputs      = protocol.NumOutputs
	NumOutputGroups = protocol.NumOutputGroups
)

// OutputDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type OutputDriver interface {
	// SetOutputs applies all duty cycles at once. Values range from 0 to
	// protocol.MaxDuty. A failed call must leave the hardware as it was.
	SetOutputs(duty *[NumOutputs]uint16) error
}

// FrequencyDriver is implemented by boards that can change the PWM period.
// Group n holds outputs 2n and 2n+1.
type FrequencyDriver interface {
	SetFrequencies(hz *[NumOutputGroups]uint16) error
}
