//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"stepcore/core"
	"stepcore/protocol"
)

var errPinRange = errors.New("pin out of range")

// board is the kernel's platform: SIO pins, the microsecond timer, USB
// CDC to the host and PIO step pulsers
type board struct {
	k *core.Kernel

	levels  [numPins]bool
	pulsers [numPins]*stepPulser

	alarm     uint32
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport

	writeFailures uint8
	disconnected  bool
}

func (b *board) Now() uint32 { return hardwareTime() }

func (b *board) SetAlarm(wake uint32) { b.alarm = wake }

func (b *board) ConfigureOutput(pin core.GPIOPin, value bool) error {
	if pin >= numPins {
		return errPinRange
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Set(value)
	b.levels[pin] = value
	return nil
}

func (b *board) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	if pin >= numPins {
		return errPinRange
	}
	mode := machine.PinInput
	if pullUp {
		mode = machine.PinInputPullup
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (b *board) SetPin(pin core.GPIOPin, value bool) {
	b.levels[pin] = value
	if p := b.pulsers[pin]; p != nil {
		p.set(value)
		return
	}
	machine.Pin(pin).Set(value)
}

func (b *board) TogglePin(pin core.GPIOPin) {
	b.SetPin(pin, !b.levels[pin])
}

func (b *board) ReadPin(pin core.GPIOPin) bool {
	return machine.Pin(pin).Get()
}

// Pulse emits a tight mode step through PIO. The first pulse on a pin
// moves it to a state machine; without one left the pin is toggled by
// hand.
func (b *board) Pulse(pin core.GPIOPin) {
	p := b.pulsers[pin]
	if p == nil {
		var err error
		p, err = newStepPulser(machine.Pin(pin), b.levels[pin])
		if err != nil {
			b.TogglePin(pin)
			b.TogglePin(pin)
			return
		}
		b.pulsers[pin] = p
	}
	p.pulse()
}

// SendPayload frames a message; output goes out from Idle or when the
// buffer runs short
func (b *board) SendPayload(payload []byte) {
	b.transport.SendPayload(payload)
	if b.output.CurPosition() > protocol.OutputMax-protocol.MessageMax {
		b.writeUSB()
	}
}

// Idle polls the host link and the alarm. There is no timer interrupt;
// the alarm is serviced from here.
func (b *board) Idle() {
	b.readUSB()
	b.writeUSB()
	if b.k.ResetRequested() {
		resetChip()
	}
	if !core.TimerIsBefore(b.Now(), b.alarm) {
		b.k.TimerIRQ()
	}
}

func (b *board) readUSB() {
	got := false
	for machine.Serial.Buffered() > 0 && b.input.Free() > 0 {
		c, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		b.input.Write([]byte{c})
		got = true
	}
	if !got {
		return
	}
	if b.disconnected {
		// fresh connection: drop whatever the last session left behind
		b.disconnected = false
		b.output.Reset()
		b.transport.Reset()
	}
	b.k.WakeTasks()
}

func (b *board) writeUSB() {
	out := b.output.Result()
	written := 0
	for written < len(out) {
		n, err := machine.Serial.Write(out[written:])
		if err != nil || n == 0 {
			b.writeFailures++
			if b.writeFailures > 10 {
				b.disconnected = true
				b.writeFailures = 0
				b.output.Reset()
			}
			return
		}
		written += n
	}
	b.writeFailures = 0
	b.output.Reset()
}

// consoleTask processes complete blocks from the host
func (b *board) consoleTask() {
	if b.input.Available() > 0 {
		b.transport.Receive(b.input)
	}
}
