package expander

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/pca9685"

	"iox16/core"
	"iox16/protocol"
)

// PCA9685 limits accepted by the driver
const (
	PCA9685MinFrequency = 40
	PCA9685MaxFrequency = 1000
	pca9685Steps        = 4096
)

// PWMBank drives 16 outputs through a PCA9685. All channels are written in
// one I2C transaction, so a failed update leaves every output unchanged.
type PWMBank struct {
	dev *pca9685.DevBuffered
	hz  uint16
}

// NewPWMBank creates the bank. It performs no I/O.
func NewPWMBank(bus drivers.I2C, addr uint8) *PWMBank {
	return &PWMBank{dev: pca9685.NewBuffered(bus, addr)}
}

// Configure wakes the chip with all outputs low and sets the PWM frequency.
func (p *PWMBank) Configure(hz uint16) error {
	hz = clampFrequency(hz)
	if err := p.dev.Configure(pca9685.PWMConfig{Period: period(hz)}); err != nil {
		return err
	}
	p.hz = hz
	return nil
}

// SetOutputs implements core.OutputDriver. Each output turns on at count 0
// and off after duty/MaxDuty of the period.
func (p *PWMBank) SetOutputs(duty *[core.NumOutputs]uint16) error {
	for ch, d := range duty {
		p.dev.PrepPhasedSet(uint8(ch), 0, offCount(d))
	}
	return p.dev.Update()
}

// SetFrequencies implements core.FrequencyDriver. The PCA9685 has a single
// prescaler: group 0 sets the frequency of every output, limited to the
// range the chip supports.
func (p *PWMBank) SetFrequencies(hz *[core.NumOutputGroups]uint16) error {
	f := clampFrequency(hz[0])
	if f == p.hz {
		return nil
	}
	if err := p.dev.SetPeriod(period(f)); err != nil {
		return err
	}
	p.hz = f
	return nil
}

// Frequency returns the frequency programmed into the chip.
func (p *PWMBank) Frequency() uint16 {
	return p.hz
}

func offCount(d uint16) uint32 {
	c := uint32(d) * pca9685Steps / protocol.MaxDuty
	if c >= pca9685Steps {
		c = pca9685Steps - 1
	}
	return c
}

func clampFrequency(hz uint16) uint16 {
	if hz < PCA9685MinFrequency {
		return PCA9685MinFrequency
	}
	if hz > PCA9685MaxFrequency {
		return PCA9685MaxFrequency
	}
	return hz
}

func period(hz uint16) uint64 {
	return 1_000_000_000 / uint64(hz)
}

var (
	_ core.OutputDriver    = (*PWMBank)(nil)
	_ core.FrequencyDriver = (*PWMBank)(nil)
)
