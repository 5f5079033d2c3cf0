//go:build rp2350

package main

import (
	"machine"
	"time"

	"iox16/core"
	"iox16/targets/rp2"
)

// board is the Pico 2 I/O board: UART0 bus, multiplexed ADC inputs and
// on-chip PWM outputs.
type board struct {
	*uartLine
	*muxInputs
	*pwmOutputs
	hwClock
	rp2.Board
}

var panics uint32

func main() {
	rp2.DisableWatchdog()
	rp2.InitUSBDebug()
	InitClock()

	outputs, err := newPWMOutputs()
	if err != nil {
		fatal("pwm", err)
	}
	b := &board{
		uartLine:   newUARTLine(),
		muxInputs:  newMuxInputs(),
		pwmOutputs: outputs,
		Board:      rp2.Board{StatusLED: rp2.NewStatusLED(machine.LED)},
	}

	fw := core.New(b, rp2.NewFlashStorage(), core.DefaultConfig())
	if err := b.Configure(fw.ActiveConfig().Baud); err != nil {
		fatal("uart", err)
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
	core.DebugPrintln("[RP2350] " + what + " setup failed: " + err.Error())
	time.Sleep(2 * time.Second)
	rp2.Reboot()
}
