//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// irqDisable masks interrupts and returns the previous state
func irqDisable() irqState {
	return interrupt.Disable()
}

func irqRestore(state irqState) {
	interrupt.Restore(state)
}
