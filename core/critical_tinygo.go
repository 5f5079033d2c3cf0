//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts enters a critical section around scheduler list updates
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
