//go:build rp2040 || rp2350

package rp2

import (
	"machine"
	"time"

	"iox16/core"
)

// DisableWatchdog clears any watchdog state left over from a reboot.
func DisableWatchdog() {
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
}

// Reboot restarts the chip through the watchdog and never returns.
func Reboot() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(1 * time.Millisecond)
	}
}

// StatusLED is the heartbeat LED on a GPIO pin.
type StatusLED struct {
	pin machine.Pin
}

func NewStatusLED(pin machine.Pin) *StatusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &StatusLED{pin: pin}
}

func (l *StatusLED) SetLED(on bool) {
	l.pin.Set(on)
}

// InitUSBDebug routes firmware debug lines to the USB CDC serial port.
// Lines are queued so a stalled host never blocks the control loop.
func InitUSBDebug() {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}
	core.SetDebugWriter(usbDebugWrite)
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

func usbDebugWrite(s string) {
	machine.Serial.Write([]byte(s))
	machine.Serial.Write([]byte("\r\n"))
}

// Board is the optional capabilities every RP2 target shares. Embed it in
// a target's board type.
type Board struct {
	*StatusLED
}

func (Board) Reboot() {
	Reboot()
}
