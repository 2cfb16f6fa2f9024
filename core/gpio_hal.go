package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput claims pin as an output driven to value
	ConfigureOutput(pin GPIOPin, value bool) error

	// ConfigureInput claims pin as an input, optionally pulled up
	ConfigureInput(pin GPIOPin, pullUp bool) error

	// SetPin, TogglePin and ReadPin are called from timer handlers and
	// must not block
	SetPin(pin GPIOPin, value bool)
	TogglePin(pin GPIOPin)
	ReadPin(pin GPIOPin) bool
}

// Pulser is implemented by platforms that can emit a complete step pulse
// in hardware. The tight stepping mode uses it in place of two toggles.
type Pulser interface {
	Pulse(pin GPIOPin)
}

// Responder delivers one encoded message (id followed by arguments) to
// the host
type Responder interface {
	SendPayload(payload []byte)
}

// Platform is everything the kernel needs from the target
type Platform interface {
	Clock
	GPIODriver
	Responder

	// Idle waits until an interrupt or input arrives. Timer interrupts
	// must still be serviced (via Kernel.TimerIRQ) while idling.
	Idle()
}

// setupOutput configures an output pin, shutting down on failure
func (k *Kernel) setupOutput(pin GPIOPin, value bool) {
	if err := k.plat.ConfigureOutput(pin, value); err != nil {
		k.DebugPrintln("[GPIO] output " + utoa(uint32(pin)) + ": " + err.Error())
		k.Shutdown(ReasonInvalidPin)
	}
}

func (k *Kernel) setupInput(pin GPIOPin, pullUp bool) {
	if err := k.plat.ConfigureInput(pin, pullUp); err != nil {
		k.DebugPrintln("[GPIO] input " + utoa(uint32(pin)) + ": " + err.Error())
		k.Shutdown(ReasonInvalidPin)
	}
}
