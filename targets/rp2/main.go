//go:build rp2040 || rp2350

// Firmware for RP2040 and RP2350 boards: the stepcore kernel on the
// microsecond timer, USB CDC to the host, PIO for tight step pulses.
package main

import (
	"context"
	"machine"
	"time"

	"stepcore/core"
	"stepcore/protocol"
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	// a watchdog left running by a previous reset would fire mid-session
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	b := &board{
		input:  protocol.NewFifoBuffer(256),
		output: protocol.NewScratchOutput(),
	}
	cfg := core.DefaultConfig(clockFreq)
	cfg.MCU = chipName
	cfg.BuildVersions = "tinygo"
	cfg.MoveMemory = 8 * 1024
	k := core.New(b, cfg)
	b.k = k

	k.Dictionary().AddEnumerationRange("pin", "gpio0", 0, numPins)

	b.transport = protocol.NewTransport(b.output, k.Dispatch)
	b.transport.Flush = b.writeUSB
	k.AddTask(b.consoleTask)

	// Run only returns on a cancelled context
	k.Run(context.Background())
}

// resetChip restarts through the watchdog, which also re-enumerates USB
// cleanly
func resetChip() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}
