//go:build rp2350

package main

const (
	chipName = "rp2350"
	numPins  = 48

	// TIMER0 block; not at the RP2040 address
	timerBase = 0x400B0000
)
