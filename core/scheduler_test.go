package core

import "testing"

type timerLog struct {
	fired []uint32
	names []string
}

func (l *timerLog) timer(name string, wake uint32) *Timer {
	t := &Timer{WakeTime: wake}
	t.Handler = func(t *Timer) uint8 {
		l.fired = append(l.fired, t.WakeTime)
		l.names = append(l.names, name)
		return SF_DONE
	}
	return t
}

func TestTimerIsBefore(t *testing.T) {
	tests := []struct {
		a, b uint32
		want bool
	}{
		{1, 2, true},
		{2, 1, false},
		{5, 5, false},
		{0xFFFFFFF0, 0x10, true},
		{0x10, 0xFFFFFFF0, false},
		{0, 0x7FFFFFFF, true},
	}
	for _, tt := range tests {
		if got := TimerIsBefore(tt.a, tt.b); got != tt.want {
			t.Errorf("TimerIsBefore(%#x, %#x) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDispatchOrder(t *testing.T) {
	f := newFixtureWith(t, 1000, testConfig())
	var log timerLog
	for _, w := range []uint32{5000, 2000, 4000, 3000, 2000} {
		f.k.AddTimer(log.timer("t", w))
	}
	f.advance(10000)
	want := []uint32{2000, 2000, 3000, 4000, 5000}
	if len(log.fired) != len(want) {
		t.Fatalf("fired %v, want %v", log.fired, want)
	}
	for i := range want {
		if log.fired[i] != want[i] {
			t.Errorf("fired %v, want %v", log.fired, want)
			break
		}
	}
}

func TestDispatchAcrossWrap(t *testing.T) {
	start := uint32(0xFFFFF000)
	f := newFixtureWith(t, start, testConfig())
	var log timerLog
	f.k.AddTimer(log.timer("after", 0x200))
	f.k.AddTimer(log.timer("before", 0xFFFFFF00))
	f.k.AddTimer(log.timer("at", 0))
	f.advance(0x1000)
	want := []string{"before", "at", "after"}
	if len(log.names) != 3 {
		t.Fatalf("fired %v", log.names)
	}
	for i := range want {
		if log.names[i] != want[i] {
			t.Errorf("order %v, want %v", log.names, want)
			break
		}
	}
	if f.k.IsShutdown() {
		t.Errorf("shutdown: %v", f.k.ShutdownReason())
	}
}

func TestRescheduleRepeats(t *testing.T) {
	f := newFixture(t)
	var fired []uint32
	tm := &Timer{WakeTime: 100}
	tm.Handler = func(t *Timer) uint8 {
		fired = append(fired, t.WakeTime)
		if len(fired) == 4 {
			return SF_DONE
		}
		t.WakeTime += 250
		return SF_RESCHEDULE
	}
	f.k.AddTimer(tm)
	f.advance(5000)
	want := []uint32{100, 350, 600, 850}
	if len(fired) != len(want) {
		t.Fatalf("fired %v", fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired %v, want %v", fired, want)
		}
	}
}

func TestDeleteHeadTimer(t *testing.T) {
	f := newFixture(t)
	f.advance(10)
	var log timerLog
	a := log.timer("a", 100)
	b := log.timer("b", 200)
	f.k.AddTimer(a)
	f.k.AddTimer(b)
	f.k.DeleteTimer(a)
	f.advance(1000)
	if len(log.names) != 1 || log.names[0] != "b" {
		t.Errorf("fired %v, want [b]", log.names)
	}
}

func TestDeleteMiddleTimer(t *testing.T) {
	f := newFixture(t)
	f.advance(10)
	var log timerLog
	a := log.timer("a", 100)
	b := log.timer("b", 200)
	c := log.timer("c", 300)
	f.k.AddTimer(a)
	f.k.AddTimer(b)
	f.k.AddTimer(c)
	f.k.DeleteTimer(b)
	f.k.DeleteTimer(b)
	f.advance(1000)
	if len(log.names) != 2 || log.names[0] != "a" || log.names[1] != "c" {
		t.Errorf("fired %v, want [a c]", log.names)
	}
}

func TestTimerSelfDelete(t *testing.T) {
	f := newFixture(t)
	f.advance(10)
	var log timerLog
	other := log.timer("other", 150)
	self := &Timer{WakeTime: 100}
	self.Handler = func(t *Timer) uint8 {
		f.k.DeleteTimer(t)
		log.names = append(log.names, "self")
		return SF_DONE
	}
	f.k.AddTimer(self)
	f.k.AddTimer(other)
	f.advance(1000)
	if len(log.names) != 2 || log.names[1] != "other" {
		t.Errorf("fired %v", log.names)
	}
}

func TestAddTimerTooClose(t *testing.T) {
	f := newFixture(t)
	f.advance(5000)
	tm := &Timer{WakeTime: 4000, Handler: deletedEvent}
	if r := f.fatal(func() { f.k.AddTimer(tm) }); r != ReasonTimerTooClose {
		t.Errorf("reason = %v", r)
	}
	r := f.lastResponse("shutdown")
	if r.args[0] != 5000 || ShutdownReason(r.args[1]) != ReasonTimerTooClose {
		t.Errorf("shutdown = %v", r.args)
	}
}

func TestRescheduledPastIsFatal(t *testing.T) {
	cfg := testConfig()
	f := newFixtureWith(t, 0, cfg)
	f.advance(10)
	tm := &Timer{WakeTime: 100}
	tm.Handler = func(t *Timer) uint8 {
		// the handler runs long enough to blow every deadline
		f.p.now += cfg.RepeatTicks + cfg.PastLimitTicks + 10
		t.WakeTime += 1
		return SF_RESCHEDULE
	}
	f.k.AddTimer(tm)
	f.advance(100)
	if !f.k.IsShutdown() || f.k.ShutdownReason() != ReasonRescheduledPast {
		t.Errorf("shutdown=%v reason=%v", f.k.IsShutdown(), f.k.ShutdownReason())
	}
}

func TestSentinelNeverSurfaces(t *testing.T) {
	f := newFixture(t)
	var log timerLog
	f.k.AddTimer(log.timer("late", 0x70000000))
	f.advance(0x70000001)
	if f.k.IsShutdown() {
		t.Fatalf("shutdown: %v", f.k.ShutdownReason())
	}
	if len(log.names) != 1 {
		t.Errorf("fired %v", log.names)
	}
}

func TestShutdownResetsTimers(t *testing.T) {
	f := newFixture(t)
	var log timerLog
	f.k.AddTimer(log.timer("pending", 1000))
	f.advance(10)
	f.cmd("emergency_stop")
	f.advance(2000)
	if len(log.names) != 0 {
		t.Errorf("timer survived shutdown: %v", log.names)
	}
}
