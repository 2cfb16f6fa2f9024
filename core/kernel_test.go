package core

import (
	"context"
	"testing"

	"stepcore/protocol"
)

type pinEvent struct {
	Pin   GPIOPin
	Clock uint32
	Value bool
}

// fakePlatform is a virtual clock plus pin bank. Time only moves when the
// test advances it, so every handler sees Now() equal to its wake time.
type fakePlatform struct {
	now    uint32
	alarm  uint32
	pins   map[GPIOPin]bool
	inputs map[GPIOPin]bool
	trace  []pinEvent
	sent   [][]byte
	badPin GPIOPin
	idle   func()
}

func newFakePlatform(start uint32) *fakePlatform {
	return &fakePlatform{
		now:    start,
		pins:   make(map[GPIOPin]bool),
		inputs: make(map[GPIOPin]bool),
		badPin: 0xFFFF,
	}
}

func (p *fakePlatform) Now() uint32          { return p.now }
func (p *fakePlatform) SetAlarm(wake uint32) { p.alarm = wake }

func (p *fakePlatform) ConfigureOutput(pin GPIOPin, value bool) error {
	if pin == p.badPin {
		return errBadPin
	}
	p.pins[pin] = value
	return nil
}

func (p *fakePlatform) ConfigureInput(pin GPIOPin, pullUp bool) error {
	if pin == p.badPin {
		return errBadPin
	}
	p.inputs[pin] = pullUp
	return nil
}

func (p *fakePlatform) SetPin(pin GPIOPin, value bool) {
	if p.pins[pin] != value {
		p.pins[pin] = value
		p.trace = append(p.trace, pinEvent{pin, p.now, value})
	}
}

func (p *fakePlatform) TogglePin(pin GPIOPin) {
	v := !p.pins[pin]
	p.pins[pin] = v
	p.trace = append(p.trace, pinEvent{pin, p.now, v})
}

func (p *fakePlatform) ReadPin(pin GPIOPin) bool {
	if v, ok := p.inputs[pin]; ok {
		return v
	}
	return p.pins[pin]
}

func (p *fakePlatform) SendPayload(payload []byte) {
	p.sent = append(p.sent, append([]byte(nil), payload...))
}

func (p *fakePlatform) Idle() {
	if p.idle != nil {
		p.idle()
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errBadPin = testError("no such pin")

// pinTrace returns the transitions of one pin
func (p *fakePlatform) pinTrace(pin GPIOPin) []pinEvent {
	var out []pinEvent
	for _, e := range p.trace {
		if e.Pin == pin {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	t *testing.T
	k *Kernel
	p *fakePlatform
}

func testConfig() Config {
	cfg := DefaultConfig(1000000)
	cfg.MinTryTicks = 0
	return cfg
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, 0, testConfig())
}

func newFixtureWith(t *testing.T, start uint32, cfg Config) *fixture {
	p := newFakePlatform(start)
	return &fixture{t: t, k: New(p, cfg), p: p}
}

// cmd encodes a command the way the host would and dispatches it
func (f *fixture) cmd(name string, args ...uint32) {
	f.t.Helper()
	c, ok := f.k.Commands().ByName(name)
	if !ok {
		f.t.Fatalf("unknown command %s", name)
	}
	payload, err := c.Format.Encode(nil, c.ID, args, nil)
	if err != nil {
		f.t.Fatalf("encode %s: %v", name, err)
	}
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		f.t.Fatalf("decode id: %v", err)
	}
	if err := f.k.Dispatch(uint16(id), &payload); err != nil {
		f.t.Fatalf("dispatch %s: %v", name, err)
	}
	if len(payload) != 0 {
		f.t.Fatalf("%s left %d bytes", name, len(payload))
	}
}

// advance runs the alarm and task loop until clock
func (f *fixture) advance(clock uint32) {
	p := f.p
	f.k.RunPending()
	for !TimerIsBefore(clock, p.alarm) {
		if TimerIsBefore(p.now, p.alarm) {
			p.now = p.alarm
		}
		f.k.TimerIRQ()
		f.k.RunPending()
	}
	if TimerIsBefore(p.now, clock) {
		p.now = clock
	}
	f.k.RunPending()
}

type response struct {
	name string
	args []uint32
	buf  []byte
}

func (f *fixture) responses(name string) []response {
	f.t.Helper()
	var out []response
	for _, payload := range f.p.sent {
		c, args, buf, err := f.k.Commands().Decode(payload)
		if err != nil {
			f.t.Fatalf("decode response: %v", err)
		}
		if c.Name() == name {
			out = append(out, response{name, args, buf})
		}
	}
	return out
}

func (f *fixture) lastResponse(name string) response {
	f.t.Helper()
	rs := f.responses(name)
	if len(rs) == 0 {
		f.t.Fatalf("no %s response", name)
	}
	return rs[len(rs)-1]
}

// fatal runs fn under the supervisor and returns the shutdown reason
func (f *fixture) fatal(fn func()) ShutdownReason {
	f.t.Helper()
	if f.k.supervise(fn) {
		f.t.Fatalf("expected shutdown")
	}
	return f.k.ShutdownReason()
}

func i32(v int32) uint32 { return uint32(v) }

func TestNewKernelArmsHeartbeat(t *testing.T) {
	f := newFixtureWith(t, 500, testConfig())
	if f.p.alarm != 500 {
		t.Errorf("alarm = %d, want 500", f.p.alarm)
	}
	f.advance(500 + 3*f.k.Config().PeriodicTicks + 1)
	if f.k.IsShutdown() {
		t.Fatalf("unexpected shutdown: %v", f.k.ShutdownReason())
	}
	if want := 500 + 4*f.k.Config().PeriodicTicks; f.k.NextWake() != want {
		t.Errorf("next wake = %d, want %d", f.k.NextWake(), want)
	}
}

func TestIdentifyIDsFixed(t *testing.T) {
	f := newFixture(t)
	if c, _ := f.k.Commands().ByName("identify_response"); c.ID != 0 {
		t.Errorf("identify_response id = %d", c.ID)
	}
	if c, _ := f.k.Commands().ByName("identify"); c.ID != 1 {
		t.Errorf("identify id = %d", c.ID)
	}
}

func TestGetClockAndUptime(t *testing.T) {
	f := newFixture(t)
	f.advance(12345)
	f.cmd("get_clock")
	if r := f.lastResponse("clock"); r.args[0] != 12345 {
		t.Errorf("clock = %d", r.args[0])
	}
	f.cmd("get_uptime")
	r := f.lastResponse("uptime")
	if r.args[0] != 0 || r.args[1] != 12345 {
		t.Errorf("uptime = %v", r.args)
	}
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t)
	f.cmd("get_config")
	if r := f.lastResponse("config"); r.args[0] != 0 || r.args[2] != 0 || r.args[3] != 0 {
		t.Errorf("config before finalize = %v", r.args)
	}
	f.cmd("allocate_oids", 2)
	f.cmd("finalize_config", 0xCAFE)
	f.cmd("get_config")
	r := f.lastResponse("config")
	if r.args[0] != 1 || r.args[1] != 0xCAFE {
		t.Errorf("config after finalize = %v", r.args)
	}
	if int(r.args[3]) != f.k.Arena().Count() || r.args[3] == 0 {
		t.Errorf("move_count = %d, arena has %d", r.args[3], f.k.Arena().Count())
	}
}

func TestRunIdlesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	idles := 0
	f.p.idle = func() {
		idles++
		f.p.now = f.p.alarm
		f.k.TimerIRQ()
		if idles == 5 {
			cancel()
		}
	}
	if err := f.k.Run(ctx); err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
	if idles != 5 {
		t.Errorf("idled %d times", idles)
	}
}

func TestEnterIdleKeepsLateWake(t *testing.T) {
	f := newFixture(t)
	for f.k.RunPending() {
	}
	// a timer handler wakes a task after the last pass found nothing to do
	var w TaskWake
	f.k.WakeTask(&w)
	if f.k.enterIdle() {
		t.Fatal("went idle with a wake pending")
	}
	if !f.k.RunPending() {
		t.Error("wake lost")
	}
	if !f.k.enterIdle() {
		t.Error("did not go idle with nothing pending")
	}
}
