// Package expander drives I/O boards built from external chips instead of
// on-chip peripherals: 8-channel SPI converters for the inputs and a
// PCA9685 for the outputs. It has no machine dependency, so it runs on
// TinyGo targets and in host tests alike.
package expander

import (
	"errors"

	"iox16/core"
)

// Converter is an 8-channel analog converter. mcp3008.Device satisfies it.
type Converter interface {
	Read(ch int) (uint16, error)
}

// ConverterChannels is the number of inputs served by one converter.
const ConverterChannels = 8

// MCP3008FullScale is the largest count returned by mcp3008.Device.Read,
// which scales the 10-bit result to 16 bits.
const MCP3008FullScale = 1023 << 6

var ErrNoConverter = errors.New("no converter for channel")

// InputBank samples 16 inputs from two converters, channels 0-7 from the
// first and 8-15 from the second.
type InputBank struct {
	conv      [2]Converter
	fullScale uint16
}

// NewInputBank creates an input bank. high may be nil on boards with only
// eight inputs fitted; its channels then always read as stale.
func NewInputBank(low, high Converter, fullScale uint16) *InputBank {
	return &InputBank{conv: [2]Converter{low, high}, fullScale: fullScale}
}

// SampleInputs implements core.InputSampler. Channels that fail keep
// their previous value in dst and are reported in a StaleChannelsError.
func (b *InputBank) SampleInputs(dst *[core.NumInputs]uint16) error {
	var stale uint16
	var first error
	for ch := 0; ch < core.NumInputs; ch++ {
		conv := b.conv[ch/ConverterChannels]
		if conv == nil {
			stale |= 1 << ch
			if first == nil {
				first = ErrNoConverter
			}
			continue
		}
		v, err := conv.Read(ch % ConverterChannels)
		if err != nil {
			stale |= 1 << ch
			if first == nil {
				first = err
			}
			continue
		}
		dst[ch] = v
	}
	if stale != 0 {
		return &core.StaleChannelsError{Mask: stale, Err: first}
	}
	return nil
}

// InputFullScale implements core.InputSampler.
func (b *InputBank) InputFullScale() uint16 {
	return b.fullScale
}

var _ core.InputSampler = (*InputBank)(nil)
