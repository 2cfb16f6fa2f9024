// Package sim runs the stepcore kernel on a virtual MCU: a tick counter
// that only moves when told to, a pin bank that records every transition
// and a response recorder that decodes what the kernel sends back. Runs
// are fully deterministic.
package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"stepcore/core"
)

// PinEvent is one output transition. Pulse marks a complete hardware
// pulse emitted through core.Pulser.
type PinEvent struct {
	Pin   core.GPIOPin
	Clock uint32
	Value bool
	Pulse bool
}

// Response is one decoded message from the kernel. Data holds the
// message's buffer argument, if it has one.
type Response struct {
	Clock uint32
	Name  string
	Args  map[string]int64
	Data  []byte
	Text  string
}

type inputChange struct {
	clock uint32
	pin   core.GPIOPin
	value bool
}

// Machine is the virtual MCU
type Machine struct {
	k   *core.Kernel
	log logrus.FieldLogger

	now     uint32
	alarm   uint32
	outputs map[core.GPIOPin]bool
	inputs  map[core.GPIOPin]bool
	pending []inputChange
	maxPin  core.GPIOPin
	pulser  bool
	trace   []PinEvent
	resps   []Response
	onAlarm int
}

// Option tunes a Machine
type Option func(*Machine)

// WithLogger logs every response and shutdown at debug level
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Machine) { m.log = log }
}

// WithStartClock starts the tick counter at clock, e.g. just before a wrap
func WithStartClock(clock uint32) Option {
	return func(m *Machine) { m.now = clock }
}

// WithPulser makes the machine emit tight-mode step pulses in hardware
func WithPulser() Option {
	return func(m *Machine) { m.pulser = true }
}

// WithPinCount limits the valid pin numbers to [0, n)
func WithPinCount(n int) Option {
	return func(m *Machine) { m.maxPin = core.GPIOPin(n) }
}

// New builds a machine and boots a kernel on it
func New(cfg core.Config, opts ...Option) *Machine {
	m := &Machine{
		log:     logrus.New(),
		outputs: make(map[core.GPIOPin]bool),
		inputs:  make(map[core.GPIOPin]bool),
		maxPin:  64,
	}
	for _, o := range opts {
		o(m)
	}
	// the virtual clock stands still inside the interrupt, so waiting for
	// a close timer would never finish
	cfg.MinTryTicks = 0
	var p core.Platform = m
	if m.pulser {
		p = pulsingMachine{m}
	}
	m.k = core.New(p, cfg)
	m.k.SetDebugWriter(func(s string) { m.log.Debug(s) })
	return m
}

// Kernel returns the kernel running on the machine
func (m *Machine) Kernel() *core.Kernel { return m.k }

func (m *Machine) Now() uint32 { return m.now }

func (m *Machine) SetAlarm(wake uint32) {
	m.alarm = wake
}

func (m *Machine) ConfigureOutput(pin core.GPIOPin, value bool) error {
	if pin >= m.maxPin {
		return fmt.Errorf("pin %d out of range", pin)
	}
	m.outputs[pin] = value
	return nil
}

func (m *Machine) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	if pin >= m.maxPin {
		return fmt.Errorf("pin %d out of range", pin)
	}
	if _, set := m.inputs[pin]; !set {
		m.inputs[pin] = pullUp
	}
	return nil
}

func (m *Machine) SetPin(pin core.GPIOPin, value bool) {
	if m.outputs[pin] != value {
		m.outputs[pin] = value
		m.trace = append(m.trace, PinEvent{Pin: pin, Clock: m.now, Value: value})
	}
}

func (m *Machine) TogglePin(pin core.GPIOPin) {
	v := !m.outputs[pin]
	m.outputs[pin] = v
	m.trace = append(m.trace, PinEvent{Pin: pin, Clock: m.now, Value: v})
}

func (m *Machine) ReadPin(pin core.GPIOPin) bool {
	if v, ok := m.inputs[pin]; ok {
		return v
	}
	return m.outputs[pin]
}

func (m *Machine) Idle() {}

// SendPayload decodes and records a message from the kernel
func (m *Machine) SendPayload(payload []byte) {
	c, vals, buf, err := m.k.Commands().Decode(payload)
	if err != nil {
		m.log.WithError(err).Warn("undecodable response")
		return
	}
	r := Response{
		Clock: m.now,
		Name:  c.Name(),
		Args:  make(map[string]int64, len(vals)),
		Text:  c.Format.Text(vals, buf),
	}
	if buf != nil {
		r.Data = append([]byte(nil), buf...)
	}
	for i, p := range c.Format.Params {
		if p.Type.Signed() {
			r.Args[p.Name] = int64(int32(vals[i]))
		} else {
			r.Args[p.Name] = int64(vals[i])
		}
	}
	m.resps = append(m.resps, r)

	entry := m.log.WithField("clock", m.now)
	if r.Name == "shutdown" || r.Name == "is_shutdown" {
		entry.WithField("reason", m.k.ShutdownReason().String()).Warn(r.Text)
		return
	}
	entry.Debug(r.Text)
}

type pulsingMachine struct{ *Machine }

// Pulse records a complete step pulse without touching the pin level
func (p pulsingMachine) Pulse(pin core.GPIOPin) {
	p.trace = append(p.trace, PinEvent{Pin: pin, Clock: p.now, Value: true, Pulse: true})
}

// SetInput drives an input pin now
func (m *Machine) SetInput(pin core.GPIOPin, value bool) {
	m.inputs[pin] = value
}

// SetInputAt drives an input pin when the clock reaches clock
func (m *Machine) SetInputAt(pin core.GPIOPin, clock uint32, value bool) {
	m.pending = append(m.pending, inputChange{clock, pin, value})
	sort.SliceStable(m.pending, func(i, j int) bool {
		return core.TimerIsBefore(m.pending[i].clock, m.pending[j].clock)
	})
}

// RunUntil advances the clock to clock, firing the timer interrupt at each
// alarm and running the task loop after each interrupt. Input changes are
// applied in clock order, ahead of timers due at the same tick.
func (m *Machine) RunUntil(clock uint32) {
	m.k.RunPending()
	for {
		next, isInput := m.alarm, false
		if len(m.pending) > 0 && !core.TimerIsBefore(next, m.pending[0].clock) {
			next, isInput = m.pending[0].clock, true
		}
		if core.TimerIsBefore(clock, next) {
			break
		}
		if core.TimerIsBefore(m.now, next) {
			m.now = next
		}
		if isInput {
			ch := m.pending[0]
			m.pending = m.pending[1:]
			m.inputs[ch.pin] = ch.value
			continue
		}
		m.onAlarm++
		m.k.TimerIRQ()
		m.k.RunPending()
	}
	if core.TimerIsBefore(m.now, clock) {
		m.now = clock
	}
	m.k.RunPending()
}

// RunFor advances the clock by ticks
func (m *Machine) RunFor(ticks uint32) {
	m.RunUntil(m.now + ticks)
}

// Interrupts is the number of timer interrupts taken so far
func (m *Machine) Interrupts() int { return m.onAlarm }

// Trace returns every output transition so far
func (m *Machine) Trace() []PinEvent { return m.trace }

// PinTrace returns the transitions of one pin
func (m *Machine) PinTrace(pin core.GPIOPin) []PinEvent {
	var out []PinEvent
	for _, e := range m.trace {
		if e.Pin == pin {
			out = append(out, e)
		}
	}
	return out
}

// Output returns the current level of an output pin
func (m *Machine) Output(pin core.GPIOPin) bool { return m.outputs[pin] }

// Responses returns every message the kernel sent
func (m *Machine) Responses() []Response { return m.resps }

// ResponsesNamed filters Responses by message name
func (m *Machine) ResponsesNamed(name string) []Response {
	var out []Response
	for _, r := range m.resps {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Last returns the most recent response called name
func (m *Machine) Last(name string) (Response, bool) {
	for i := len(m.resps) - 1; i >= 0; i-- {
		if m.resps[i].Name == name {
			return m.resps[i], true
		}
	}
	return Response{}, false
}
