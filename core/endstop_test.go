package core

import "testing"

func (f *fixture) setInput(pin GPIOPin, v bool) {
	f.p.inputs[pin] = v
}

func TestEndstopTriggersStepperStop(t *testing.T) {
	f := configHoming(t)
	f.setInput(endstopPin, false)
	f.cmd("trsync_start", trsyncOID, 5000, 0, 4)
	f.cmd("stepper_stop_on_trigger", 0, trsyncOID)
	f.cmd("reset_step_clock", 0, 10000)
	f.cmd("queue_step", 0, 1000, 100, 0)
	// endstop_home oid clock sample_ticks sample_count rest_ticks pin_value trsync_oid trigger_reason
	f.cmd("endstop_home", endstopOID, 11000, 10, 4, 100, 1, trsyncOID, 1)

	f.advance(13050)
	f.setInput(endstopPin, true)
	f.advance(20000)

	r := f.lastResponse("trsync_state")
	if r.args[1] != 0 || r.args[2] != 1 {
		t.Errorf("trsync_state = %v", r.args)
	}
	// samples at 13100, 13110, 13120 and 13130 confirm the trigger
	last := f.p.pinTrace(stepPin)
	if n := len(risingEdges(last)); n != 3 {
		t.Errorf("%d steps before the trigger, want 3", n)
	}
	f.cmd("endstop_query_state", endstopOID)
	q := f.lastResponse("endstop_state")
	if q.args[1] != 0 || q.args[2] != 13200 || q.args[3] != 1 {
		t.Errorf("endstop_state = %v", q.args)
	}
	ev := f.k.TimingEvents()
	found := false
	for _, e := range ev {
		if e.EventType == EvtEndstopMatch && e.Clock == 13130 {
			found = true
		}
	}
	if !found {
		t.Errorf("no endstop match recorded at 13130: %+v", ev)
	}
}

func TestEndstopBounceRestartsSampling(t *testing.T) {
	f := configHoming(t)
	f.cmd("trsync_start", trsyncOID, 5000, 0, 4)
	f.cmd("endstop_home", endstopOID, 1000, 10, 4, 100, 0, trsyncOID, 1)
	f.setInput(endstopPin, true)

	f.advance(1250)
	f.setInput(endstopPin, false)
	f.advance(1305)
	f.setInput(endstopPin, true)
	f.advance(5000)

	if !f.trsync().Armed() {
		t.Fatal("bounce triggered the trsync")
	}
	f.cmd("endstop_query_state", endstopOID)
	q := f.lastResponse("endstop_state")
	if q.args[1] != 1 || q.args[2] != 1400 {
		t.Errorf("endstop_state = %v", q.args)
	}
}

func TestEndstopHomeZeroSamplesDisables(t *testing.T) {
	f := configHoming(t)
	f.cmd("trsync_start", trsyncOID, 5000, 0, 4)
	f.cmd("endstop_home", endstopOID, 1000, 10, 4, 100, 1, trsyncOID, 1)
	f.cmd("endstop_home", endstopOID, 0, 0, 0, 0, 0, 0, 0)
	f.setInput(endstopPin, true)
	f.advance(5000)
	if !f.trsync().Armed() {
		t.Error("disabled endstop triggered")
	}
	f.cmd("endstop_query_state", endstopOID)
	if q := f.lastResponse("endstop_state"); q.args[1] != 0 {
		t.Errorf("homing = %d", q.args[1])
	}
}

func TestEndstopConfigBadPin(t *testing.T) {
	f := newFixture(t)
	f.p.badPin = 7
	f.cmd("allocate_oids", 1)
	f.cmd("config_endstop", 0, 7, 0)
	if f.k.ShutdownReason() != ReasonInvalidPin {
		t.Errorf("reason = %v", f.k.ShutdownReason())
	}
}
