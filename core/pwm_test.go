package core

import (
	"errors"
	"testing"

	"iox16/protocol"
)

type mockOutputs struct {
	duty   [NumOutputs]uint16
	hz     [NumOutputGroups]uint16
	writes int
	freqs  int
	err    error
}

func (m *mockOutputs) SetOutputs(duty *[NumOutputs]uint16) error {
	if m.err != nil {
		return m.err
	}
	m.duty = *duty
	m.writes++
	return nil
}

func (m *mockOutputs) SetFrequencies(hz *[NumOutputGroups]uint16) error {
	if m.err != nil {
		return m.err
	}
	m.hz = *hz
	m.freqs++
	return nil
}

func TestOutputBankDefaults(t *testing.T) {
	bank := NewOutputBank()
	if !bank.Dirty() {
		t.Error("Expected new bank to be dirty")
	}
	st := bank.State()
	for i, f := range st.Frequencies {
		if f != protocol.DefaultFrequency {
			t.Errorf("Expected group %d at %d Hz, got %d", i, protocol.DefaultFrequency, f)
		}
	}

	drv := &mockOutputs{}
	if err := bank.Apply(drv, drv); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if drv.writes != 1 || drv.freqs != 1 {
		t.Errorf("Expected one duty and one frequency write, got %d and %d", drv.writes, drv.freqs)
	}
	if bank.Dirty() {
		t.Error("Expected clean bank after apply")
	}
}

func TestOutputBankRejectsOutOfRange(t *testing.T) {
	bank := NewOutputBank()
	var duty [NumOutputs]uint16
	duty[0] = 0x1000
	if err := bank.SetDuty(&duty); err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}

	bad := duty
	bad[1] = 0x4000
	bad[15] = protocol.MaxDuty + 1
	if err := bank.SetDuty(&bad); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
	if d := bank.Channel(1).Duty; d != 0 {
		t.Errorf("Expected channel 1 unchanged, got 0x%X", d)
	}

	bad[15] = protocol.MaxDuty
	if err := bank.SetDuty(&bad); err != nil {
		t.Errorf("Expected full scale duty to be accepted, got %v", err)
	}
	if d := bank.Channel(15).Duty; d != protocol.MaxDuty {
		t.Errorf("Expected channel 15 at MaxDuty, got 0x%X", d)
	}
}

func TestOutputBankIdempotent(t *testing.T) {
	bank := NewOutputBank()
	drv := &mockOutputs{}
	_ = bank.Apply(drv, nil)

	var duty [NumOutputs]uint16
	duty[2] = 100
	_ = bank.SetDuty(&duty)
	_ = bank.Apply(drv, nil)
	writes := drv.writes

	_ = bank.SetDuty(&duty)
	if bank.Dirty() {
		t.Error("Expected repeated SetDuty to leave the bank clean")
	}
	_ = bank.Apply(drv, nil)
	if drv.writes != writes {
		t.Errorf("Expected no extra hardware write, got %d writes", drv.writes-writes)
	}
}

func TestOutputBankFrequencies(t *testing.T) {
	bank := NewOutputBank()
	drv := &mockOutputs{}
	_ = bank.Apply(drv, drv)

	var hz [NumOutputGroups]uint16
	for i := range hz {
		hz[i] = 20000
	}
	hz[3] = 5
	if err := bank.SetFrequencies(&hz); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for 5 Hz, got %v", err)
	}
	hz[3] = protocol.MaxFrequency
	if err := bank.SetFrequencies(&hz); err != nil {
		t.Fatalf("SetFrequencies failed: %v", err)
	}

	writes := drv.writes
	_ = bank.Apply(drv, drv)
	if drv.hz != hz {
		t.Errorf("Expected frequencies %v, got %v", hz, drv.hz)
	}
	if drv.writes != writes+1 {
		t.Error("Expected a frequency change to rewrite duty cycles")
	}
}

func TestOutputBankRetriesAfterFault(t *testing.T) {
	bank := NewOutputBank()
	drv := &mockOutputs{err: errors.New("i2c nack")}

	if err := bank.Apply(drv, nil); err == nil {
		t.Fatal("Expected apply error")
	}
	count, failing := bank.Faults()
	if count != 1 || !failing {
		t.Errorf("Expected 1 failing fault, got %d %v", count, failing)
	}
	if !bank.Dirty() {
		t.Error("Expected bank to stay dirty after a fault")
	}

	drv.err = nil
	if err := bank.Apply(drv, nil); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
	if _, failing := bank.Faults(); failing {
		t.Error("Expected fault flag cleared after success")
	}
}
