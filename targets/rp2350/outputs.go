//go:build rp2350

package main

import (
	"machine"

	"iox16/core"
	"iox16/protocol"
)

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	SetPeriod(period uint64) error
	Top() uint32
	Set(channel uint8, value uint32)
}

// pwmOutputs drives the 16 outputs from the eight PWM slices. Output 2n
// is channel A of slice n and output 2n+1 channel B, so output group n is
// slice n.
type pwmOutputs struct {
	slices   [core.NumOutputGroups]pwmPeripheral
	channels [core.NumOutputs]uint8
}

func newPWMOutputs() (*pwmOutputs, error) {
	o := &pwmOutputs{
		slices: [core.NumOutputGroups]pwmPeripheral{
			machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
			machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
		},
	}
	period := periodNanos(protocol.DefaultFrequency)
	for n, pwm := range o.slices {
		if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
			return nil, err
		}
		for c := 0; c < 2; c++ {
			out := 2*n + c
			ch, err := pwm.Channel(machine.Pin(out))
			if err != nil {
				return nil, err
			}
			o.channels[out] = ch
			pwm.Set(ch, 0)
		}
	}
	return o, nil
}

// SetOutputs scales duty cycles from 0..MaxDuty to each slice's TOP.
func (o *pwmOutputs) SetOutputs(duty *[core.NumOutputs]uint16) error {
	for out, d := range duty {
		pwm := o.slices[out/2]
		top := pwm.Top()
		v := uint32(d) * top / protocol.MaxDuty
		if v > top {
			v = top
		}
		pwm.Set(o.channels[out], v)
	}
	return nil
}

// SetFrequencies changes the period of every slice. Compare values are
// rewritten by the following SetOutputs.
func (o *pwmOutputs) SetFrequencies(hz *[core.NumOutputGroups]uint16) error {
	for n, f := range hz {
		if f < protocol.MinFrequency {
			f = protocol.MinFrequency
		}
		if err := o.slices[n].SetPeriod(periodNanos(uint32(f))); err != nil {
			return err
		}
	}
	return nil
}

func periodNanos(hz uint32) uint64 {
	return 1000000000 / uint64(hz)
}
