package core

// StatusLED is implemented by boards with a heartbeat LED.
type StatusLED interface {
	SetLED(on bool)
}
