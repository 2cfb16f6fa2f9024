//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"
)

// The timer counts microseconds. The raw register reads without latching
// the high word.
const (
	clockFreq   = 1000000
	timerRawLow = timerBase + 0x28
)

var timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawLow)))

func hardwareTime() uint32 {
	return timerRawL.Get()
}
