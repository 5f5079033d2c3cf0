package expander

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers/pca9685"
	"tinygo.org/x/drivers/tester"

	"iox16/core"
	"iox16/protocol"
)

type fakeConverter struct {
	values [ConverterChannels]uint16
	fail   map[int]bool
}

func (c *fakeConverter) Read(ch int) (uint16, error) {
	if c.fail[ch] {
		return 0, errors.New("spi timeout")
	}
	return c.values[ch], nil
}

func offRegister(dev *tester.I2CDevice8, ch int) uint16 {
	r := pca9685.LEDSTART + 4*ch + 2
	return uint16(dev.Registers[r]) | uint16(dev.Registers[r+1])<<8
}

func TestInputBankSamplesBothConverters(t *testing.T) {
	low := &fakeConverter{}
	high := &fakeConverter{}
	for i := range low.values {
		low.values[i] = uint16(i)
		high.values[i] = uint16(100 + i)
	}
	bank := NewInputBank(low, high, MCP3008FullScale)

	var dst [core.NumInputs]uint16
	if err := bank.SampleInputs(&dst); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if dst[3] != 3 {
		t.Errorf("Expected channel 3 to read 3, got %d", dst[3])
	}
	if dst[11] != 103 {
		t.Errorf("Expected channel 11 to read 103, got %d", dst[11])
	}
	if bank.InputFullScale() != 0xFFC0 {
		t.Errorf("Expected full scale 0xFFC0, got %#x", bank.InputFullScale())
	}
}

func TestInputBankStaleChannels(t *testing.T) {
	low := &fakeConverter{fail: map[int]bool{2: true}}
	low.values[1] = 7
	bank := NewInputBank(low, nil, MCP3008FullScale)

	dst := [core.NumInputs]uint16{2: 555}
	err := bank.SampleInputs(&dst)

	var se *core.StaleChannelsError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StaleChannelsError, got %v", err)
	}
	if se.Mask != 0xFF04 {
		t.Errorf("Expected stale mask 0xFF04, got %#04x", se.Mask)
	}
	if dst[2] != 555 {
		t.Errorf("Expected failed channel to keep 555, got %d", dst[2])
	}
	if dst[1] != 7 {
		t.Errorf("Expected channel 1 to read 7, got %d", dst[1])
	}
}

func TestPWMBankConfigure(t *testing.T) {
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(0x40)
	bank := NewPWMBank(bus, 0x40)

	if err := bank.Configure(protocol.DefaultFrequency); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bank.Frequency() != protocol.DefaultFrequency {
		t.Errorf("Expected frequency %d, got %d", protocol.DefaultFrequency, bank.Frequency())
	}
	if dev.Registers[pca9685.MODE1]&pca9685.AI == 0 {
		t.Error("Expected auto increment to be enabled")
	}
	if dev.Registers[pca9685.MODE1]&pca9685.SLEEP != 0 {
		t.Error("Expected the chip to be awake")
	}
	if dev.Registers[pca9685.PRESCALE] == 0 {
		t.Error("Expected a prescaler to be written")
	}
}

func TestPWMBankSetOutputs(t *testing.T) {
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(0x40)
	bank := NewPWMBank(bus, 0x40)

	var duty [core.NumOutputs]uint16
	duty[0] = 0
	duty[3] = protocol.MaxDuty / 2
	duty[15] = protocol.MaxDuty

	if err := bank.SetOutputs(&duty); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := offRegister(dev, 3); got != 2048 {
		t.Errorf("Expected channel 3 off count 2048, got %d", got)
	}
	if got := offRegister(dev, 15); got != 4095 {
		t.Errorf("Expected channel 15 off count 4095, got %d", got)
	}
	if got := offRegister(dev, 0); got != 0 {
		t.Errorf("Expected channel 0 off count 0, got %d", got)
	}
}

func TestPWMBankFailedUpdateIsAtomic(t *testing.T) {
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(0x40)
	bank := NewPWMBank(bus, 0x40)

	var duty [core.NumOutputs]uint16
	duty[5] = protocol.MaxDuty / 4
	if err := bank.SetOutputs(&duty); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	dev.Err = errors.New("nack")
	for i := range duty {
		duty[i] = protocol.MaxDuty
	}
	if err := bank.SetOutputs(&duty); err == nil {
		t.Fatal("Expected the update to fail")
	}
	if got := offRegister(dev, 5); got != 1024 {
		t.Errorf("Expected channel 5 to keep 1024, got %d", got)
	}
	if got := offRegister(dev, 6); got != 0 {
		t.Errorf("Expected channel 6 to keep 0, got %d", got)
	}
}

func TestPWMBankFrequencyRange(t *testing.T) {
	bus := tester.NewI2CBus(t)
	bus.NewDevice(0x40)
	bank := NewPWMBank(bus, 0x40)

	hz := [core.NumOutputGroups]uint16{20000, 500}
	if err := bank.SetFrequencies(&hz); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bank.Frequency() != PCA9685MaxFrequency {
		t.Errorf("Expected frequency %d, got %d", PCA9685MaxFrequency, bank.Frequency())
	}

	hz[0] = protocol.MinFrequency
	if err := bank.SetFrequencies(&hz); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bank.Frequency() != PCA9685MinFrequency {
		t.Errorf("Expected frequency %d, got %d", PCA9685MinFrequency, bank.Frequency())
	}
}
