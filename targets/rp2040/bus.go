//go:build rp2040

package main

import (
	"machine"

	"iox16/core"
	"iox16/targets/pio"
)

// Bus wiring on the expander board. TX is not on a UART TX pin, so a PIO
// state machine generates it while UART0 receives.
const (
	busTX     = machine.GPIO6
	busRX     = machine.GPIO1 // UART0 RX
	busEnable = machine.GPIO7 // transceiver DE, high transmits
)

// pioLine is a half-duplex bus line with a PIO transmitter and a hardware
// UART receiver.
type pioLine struct {
	rx *machine.UART
	tx *pio.UARTTx
	de machine.Pin
}

func newPIOLine() *pioLine {
	l := &pioLine{
		rx: machine.UART0,
		tx: pio.NewUARTTx(0, 0),
		de: busEnable,
	}
	l.de.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l.de.Low()
	return l
}

// Start configures both halves of the line for baud.
func (l *pioLine) Start(baud uint32) error {
	if err := l.rx.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       machine.NoPin,
		RX:       busRX,
	}); err != nil {
		return err
	}
	return l.tx.Configure(busTX, baud)
}

func (l *pioLine) TryReadByte() (byte, bool) {
	if l.rx.Buffered() == 0 {
		return 0, false
	}
	b, err := l.rx.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

// WriteBytes queues p; TransmitComplete keeps the PIO FIFO fed.
func (l *pioLine) WriteBytes(p []byte) error {
	_, err := l.tx.Write(p)
	return err
}

func (l *pioLine) SetDirection(d core.Direction) {
	l.de.Set(d == core.Transmit)
}

func (l *pioLine) TransmitComplete() bool {
	return l.tx.Idle()
}
