//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/mcp3008"

	"iox16/targets/expander"
)

// Expander wiring: two MCP3008 converters share SPI0, the PCA9685 sits
// on I2C0 at its default address.
const (
	spiSCK = machine.GPIO18
	spiSDO = machine.GPIO19
	spiSDI = machine.GPIO16

	adcCSLow  = machine.GPIO17 // inputs 0-7
	adcCSHigh = machine.GPIO20 // inputs 8-15

	i2cSDA = machine.GPIO4
	i2cSCL = machine.GPIO5

	spiFrequency = 1000000
	i2cFrequency = 400 * machine.KHz
	pwmAddress   = 0x40
)

// newInputs configures SPI0 and both converters.
func newInputs() (*expander.InputBank, error) {
	err := machine.SPI0.Configure(machine.SPIConfig{
		Frequency: spiFrequency,
		SCK:       spiSCK,
		SDO:       spiSDO, // SDO = Serial Data Out (MOSI)
		SDI:       spiSDI, // SDI = Serial Data In (MISO)
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}

	low := mcp3008.New(machine.SPI0, adcCSLow)
	high := mcp3008.New(machine.SPI0, adcCSHigh)
	for _, d := range []*mcp3008.Device{low, high} {
		d.Configure()
	}
	adcCSLow.High()
	adcCSHigh.High()

	return expander.NewInputBank(low, high, expander.MCP3008FullScale), nil
}

// newOutputs configures I2C0 and wakes the PWM controller at freq.
func newOutputs(freq uint16) (*expander.PWMBank, error) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: i2cFrequency,
		SDA:       i2cSDA,
		SCL:       i2cSCL,
	})
	if err != nil {
		return nil, err
	}

	bank := expander.NewPWMBank(machine.I2C0, pwmAddress)
	if err := bank.Configure(freq); err != nil {
		return nil, err
	}
	return bank, nil
}
