//go:build rp2040

package main

import (
	"machine"
	"time"

	"iox16/core"
	"iox16/protocol"
	"iox16/targets/expander"
	"iox16/targets/rp2"
)

// board is the expander variant: PIO bus transmitter, two SPI converters
// and an I2C PWM controller.
type board struct {
	*pioLine
	*expander.InputBank
	*expander.PWMBank
	hwClock
	rp2.Board
}

var panics uint32

func main() {
	rp2.DisableWatchdog()
	rp2.InitUSBDebug()

	inputs, err := newInputs()
	if err != nil {
		fatal("spi", err)
	}
	outputs, err := newOutputs(protocol.DefaultFrequency)
	if err != nil {
		fatal("i2c", err)
	}
	b := &board{
		pioLine:   newPIOLine(),
		InputBank: inputs,
		PWMBank:   outputs,
		Board:     rp2.Board{StatusLED: rp2.NewStatusLED(machine.LED)},
	}

	fw := core.New(b, rp2.NewFlashStorage(), core.DefaultConfig())
	if err := b.Start(fw.ActiveConfig().Baud); err != nil {
		fatal("bus", err)
	}

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics++
					core.RecordEvent(core.EvtPanic, 0, uint32(b.Now()), panics)
				}
			}()
			fw.Poll()
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// fatal reports a setup failure and restarts after a pause long enough
// to read the message on USB.
func fatal(what string, err error) {
	core.DebugPrintln("[RP2040] " + what + " setup failed: " + err.Error())
	time.Sleep(2 * time.Second)
	rp2.Reboot()
}
