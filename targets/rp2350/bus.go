//go:build rp2350

package main

import (
	"device/rp"
	"errors"
	"machine"

	"iox16/core"
	"iox16/protocol"
)

var errTxOverflow = errors.New("uart: transmit queue full")

// Bus wiring on the Pico I/O board
const (
	busTX     = machine.GPIO16
	busRX     = machine.GPIO17
	busEnable = machine.GPIO19 // transceiver DE, high transmits
)

// uartLine drives the half-duplex bus through UART0 and an RS-485
// transceiver.
type uartLine struct {
	uart *machine.UART
	de   machine.Pin
	txq  *protocol.FifoBuffer // bytes waiting for room in the hardware FIFO
}

func newUARTLine() *uartLine {
	l := &uartLine{
		uart: machine.UART0,
		de:   busEnable,
		txq:  protocol.NewFifoBuffer(protocol.ScratchSize),
	}
	l.de.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l.de.Low()
	return l
}

// Configure starts the UART at the given baud rate.
func (l *uartLine) Configure(baud uint32) error {
	return l.uart.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       busTX,
		RX:       busRX,
	})
}

func (l *uartLine) TryReadByte() (byte, bool) {
	if l.uart.Buffered() == 0 {
		return 0, false
	}
	b, err := l.uart.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

// WriteBytes queues p and fills the transmit FIFO without waiting.
func (l *uartLine) WriteBytes(p []byte) error {
	n := l.txq.Write(p)
	l.pump()
	if n < len(p) {
		return errTxOverflow
	}
	return nil
}

func (l *uartLine) pump() {
	for l.uart.Bus.UARTFR.Get()&rp.UART0_UARTFR_TXFF == 0 {
		b, ok := l.txq.TryReadByte()
		if !ok {
			return
		}
		l.uart.Bus.UARTDR.Set(uint32(b))
	}
}

func (l *uartLine) SetDirection(d core.Direction) {
	l.de.Set(d == core.Transmit)
}

// TransmitComplete is true once the queue and the FIFO have drained and
// the shifter has sent the last stop bit.
func (l *uartLine) TransmitComplete() bool {
	l.pump()
	if l.txq.Available() != 0 {
		return false
	}
	fr := l.uart.Bus.UARTFR.Get()
	return fr&rp.UART0_UARTFR_TXFE != 0 && fr&rp.UART0_UARTFR_BUSY == 0
}
