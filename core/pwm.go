// PWM output bank: validated duty cycles and slice frequencies, pushed to
// the output driver when they change.

package core

import "iox16/protocol"

// OutputChannelState is the commanded state of one output.
type OutputChannelState struct {
	Duty uint16 // 0..protocol.MaxDuty
}

// OutputBank holds the commanded outputs. It is mutated only by validated
// SET_OUTPUTS and SET_FREQUENCIES requests and read by the apply step.
type OutputBank struct {
	channels    [NumOutputs]OutputChannelState
	frequencies [NumOutputGroups]uint16

	dutyDirty bool
	freqDirty bool

	duty   [NumOutputs]uint16 // scratch for the driver call
	faults uint32
	failed bool
}

// NewOutputBank creates a bank with all outputs off at the default frequency.
// The first Apply pushes that state to the hardware.
func NewOutputBank() *OutputBank {
	b := &OutputBank{dutyDirty: true, freqDirty: true}
	for i := range b.frequencies {
		b.frequencies[i] = protocol.DefaultFrequency
	}
	return b
}

// SetDuty validates and stores all duty cycles. Nothing changes unless
// every value is in range.
func (b *OutputBank) SetDuty(duty *[NumOutputs]uint16) error {
	for _, d := range duty {
		if d > protocol.MaxDuty {
			return ErrInvalidValue
		}
	}
	for i, d := range duty {
		if b.channels[i].Duty != d {
			b.channels[i].Duty = d
			b.dutyDirty = true
		}
	}
	return nil
}

// SetFrequencies validates and stores all group frequencies.
func (b *OutputBank) SetFrequencies(hz *[NumOutputGroups]uint16) error {
	for _, f := range hz {
		if f < protocol.MinFrequency || f > protocol.MaxFrequency {
			return ErrInvalidValue
		}
	}
	for i, f := range hz {
		if b.frequencies[i] != f {
			b.frequencies[i] = f
			b.freqDirty = true
		}
	}
	return nil
}

// Channel returns the state of one output.
func (b *OutputBank) Channel(ch int) OutputChannelState {
	return b.channels[ch]
}

// State returns duty cycles and frequencies in wire layout.
func (b *OutputBank) State() protocol.OutputState {
	var s protocol.OutputState
	for i := range b.channels {
		s.Duty[i] = b.channels[i].Duty
	}
	s.Frequencies = b.frequencies
	return s
}

// Dirty reports whether the hardware lags the commanded state.
func (b *OutputBank) Dirty() bool {
	return b.dutyDirty || b.freqDirty
}

// Apply pushes changed state to the hardware. fd may be nil on boards with
// a fixed PWM period. On failure the state stays dirty and is retried by
// the next call.
func (b *OutputBank) Apply(drv OutputDriver, fd FrequencyDriver) error {
	if b.freqDirty {
		if fd != nil {
			if err := fd.SetFrequencies(&b.frequencies); err != nil {
				b.fault()
				return err
			}
			// a new period rescales compare values, duties must follow
			b.dutyDirty = true
		}
		b.freqDirty = false
	}
	if b.dutyDirty {
		for i := range b.channels {
			b.duty[i] = b.channels[i].Duty
		}
		if err := drv.SetOutputs(&b.duty); err != nil {
			b.fault()
			return err
		}
		b.dutyDirty = false
	}
	b.failed = false
	return nil
}

func (b *OutputBank) fault() {
	b.faults++
	b.failed = true
}

// Faults returns the number of failed hardware updates and whether the
// most recent one failed.
func (b *OutputBank) Faults() (count uint32, failing bool) {
	return b.faults, b.failed
}
