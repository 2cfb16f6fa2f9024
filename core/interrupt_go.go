//go:build !tinygo

package core

// Hosted builds run the kernel on a single goroutine; the timer "interrupt"
// is delivered synchronously by the platform loop so there is nothing to mask.
type irqState uintptr

func irqDisable() irqState { return 0 }

func irqRestore(irqState) {}
