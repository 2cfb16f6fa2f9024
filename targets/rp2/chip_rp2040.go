//go:build rp2040

package main

const (
	chipName = "rp2040"
	numPins  = 30

	// TIMER block
	timerBase = 0x40054000
)
