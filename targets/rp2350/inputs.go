//go:build rp2350

package main

import (
	"device/rp"
	"errors"
	"machine"

	"iox16/core"
)

// Analog front end: two 8:1 multiplexers share three select lines. The
// first feeds inputs 0-7 into ADC0, the second inputs 8-15 into ADC1.
const (
	muxSelect0 = machine.GPIO22
	muxSelect1 = machine.GPIO21
	muxSelect2 = machine.GPIO20

	adcPinLow  = machine.GPIO26 // ADC0
	adcPinHigh = machine.GPIO27 // ADC1

	adcInputLow  = 0
	adcInputHigh = 1

	muxSettleMicros = 3
	adcFullScale    = 4095
	adcReadySpins   = 1000
)

// muxNext walks the eight select codes so that one select line changes
// per step: 0 1 3 2 6 7 5 4.
var muxNext = [8]uint8{1, 3, 6, 2, 0, 4, 7, 5}

var (
	errConversion = errors.New("adc conversion failed")
	errADCTimeout = errors.New("adc conversion timed out")
)

type muxInputs struct {
	sel [3]machine.Pin
	pos uint8
}

func newMuxInputs() *muxInputs {
	m := &muxInputs{sel: [3]machine.Pin{muxSelect0, muxSelect1, muxSelect2}}
	for _, p := range m.sel {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}

	machine.InitADC()
	machine.ADC{Pin: adcPinLow}.Configure(machine.ADCConfig{})
	machine.ADC{Pin: adcPinHigh}.Configure(machine.ADCConfig{})
	return m
}

func (m *muxInputs) InputFullScale() uint16 {
	return adcFullScale
}

// SampleInputs steps both multiplexers through all eight positions.
// Channels whose conversion fails keep their previous value.
func (m *muxInputs) SampleInputs(dst *[core.NumInputs]uint16) error {
	var stale uint16
	var lastErr error
	for step := 0; step < 8; step++ {
		i := m.pos
		if v, err := convert(adcInputLow); err == nil {
			dst[i] = v
		} else {
			stale |= 1 << i
			lastErr = err
		}
		if v, err := convert(adcInputHigh); err == nil {
			dst[i+8] = v
		} else {
			stale |= 1 << (i + 8)
			lastErr = err
		}

		m.pos = muxNext[i]
		m.selectInput(m.pos)
		delayMicros(muxSettleMicros)
	}
	if stale != 0 {
		return &core.StaleChannelsError{Mask: stale, Err: lastErr}
	}
	return nil
}

func (m *muxInputs) selectInput(i uint8) {
	m.sel[0].Set(i&1 != 0)
	m.sel[1].Set(i&2 != 0)
	m.sel[2].Set(i&4 != 0)
}

// convert runs one conversion on an ADC input and returns the raw 12-bit
// result.
func convert(input uint32) (uint16, error) {
	rp.ADC.CS.ReplaceBits(input<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)

	for n := 0; !rp.ADC.CS.HasBits(rp.ADC_CS_READY); n++ {
		if n == adcReadySpins {
			return 0, errADCTimeout
		}
	}
	v := uint16(rp.ADC.RESULT.Get())
	if rp.ADC.CS.HasBits(rp.ADC_CS_ERR) {
		return 0, errConversion
	}
	return v, nil
}
