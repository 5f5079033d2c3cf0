//go:build rp2040 || rp2350

// Package pio provides a PIO-driven UART transmitter for boards whose bus
// TX pin is not routed to a hardware UART.
package pio

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"iox16/protocol"
)

var ErrTxQueueFull = errors.New("pio uart: transmit queue full")

// buildUARTTxProgram creates an 8N1 transmitter, 8 PIO cycles per bit.
// The line idles high while the state machine stalls on PULL.
func buildUARTTxProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),                   // 0: pull block
		asm.Set(rp2pio.SetDestX, 7).Encode(),             // 1: set x, 7 (bit counter)
		asm.Set(rp2pio.SetDestPins, 0).Delay(7).Encode(), // 2: set pins, 0 [7] (start bit)
		// bitloop:
		asm.Out(rp2pio.OutDestPins, 1).Encode(),           // 3: out pins, 1
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Delay(6).Encode(), // 4: jmp x--, 3 [6]
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(),  // 5: set pins, 1 [7] (stop bit)
		// .wrap
	}
}

const uartTxOrigin = 0 // jump targets are absolute

// UARTTx transmits bytes on any GPIO through a PIO state machine.
type UARTTx struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	offset uint8
	queue  *protocol.FifoBuffer // bytes waiting for FIFO space
}

// NewUARTTx selects PIO block pioNum (0 or 1) and state machine smNum.
func NewUARTTx(pioNum, smNum uint8) *UARTTx {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &UARTTx{
		pio:   pioHW,
		sm:    pioHW.StateMachine(smNum),
		queue: protocol.NewFifoBuffer(protocol.ScratchSize),
	}
}

// Configure loads the program and starts transmitting on pin at baud.
func (u *UARTTx) Configure(pin machine.Pin, baud uint32) error {
	u.pin = pin
	u.sm.TryClaim()

	program := buildUARTTxProgram()
	offset, err := u.pio.AddProgram(program, uartTxOrigin)
	if err != nil {
		return err
	}

	u.offset = offset

	pin.Configure(machine.PinConfig{Mode: u.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetOutPins(pin, 1)
	// LSB first, explicit PULL
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	whole, frac, err := rp2pio.ClkDivFromFrequency(8*baud, machine.CPUFrequency())
	if err != nil {
		return err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	u.sm.Init(offset, cfg)
	u.sm.SetPindirsConsecutive(pin, 1, true)
	u.sm.SetPinsConsecutive(pin, 1, true) // idle high
	u.sm.SetEnabled(true)
	return nil
}

// Write queues p and returns without waiting for the FIFO. Pump or Idle
// moves the rest out as space frees up.
func (u *UARTTx) Write(p []byte) (int, error) {
	n := u.queue.Write(p)
	u.Pump()
	if n < len(p) {
		return n, ErrTxQueueFull
	}
	return n, nil
}

// Pump fills the TX FIFO from the queue.
func (u *UARTTx) Pump() {
	for !u.sm.IsTxFIFOFull() {
		b, ok := u.queue.TryReadByte()
		if !ok {
			return
		}
		u.sm.TxPut(uint32(b))
	}
}

// Idle reports whether the last stop bit has been sent: the queue and the
// FIFO are empty and the state machine is stalled on the PULL at the
// program start.
func (u *UARTTx) Idle() bool {
	u.Pump()
	return u.queue.Available() == 0 && u.sm.IsTxFIFOEmpty() &&
		u.sm.HW().ADDR.Get() == uint32(u.offset)
}
