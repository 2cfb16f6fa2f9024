// Endstop handling for GPIO-based sensors
// Mechanical switches, hall sensors and probes that pull a pin when hit.
package core

// Endstop flags
const (
	ESF_PIN_HIGH = 1 << 0 // pin level that counts as triggered
	ESF_HOMING   = 1 << 1 // sampling for a trsync
)

// Endstop polls an input pin during homing. A level match is confirmed by
// sampleCount consecutive reads sampleTime apart before the trsync fires.
type Endstop struct {
	k   *Kernel
	oid uint8
	pin GPIOPin

	timer         Timer
	flags         uint8
	oversampling  bool
	sampleTime    uint32
	sampleCount   uint8
	triggerCount  uint8
	restTime      uint32
	nextWake      uint32
	ts            *TriggerSync
	triggerReason uint8
}

func (k *Kernel) newEndstop(oid uint8, pin GPIOPin, pullUp bool) *Endstop {
	e := &Endstop{k: k, oid: oid, pin: pin}
	e.timer.Handler = e.event
	k.setupInput(pin, pullUp)
	return e
}

// matches reports whether the pin is at the trigger level
func (e *Endstop) matches() bool {
	return e.k.plat.ReadPin(e.pin) == (e.flags&ESF_PIN_HIGH != 0)
}

func (e *Endstop) event(t *Timer) uint8 {
	if e.oversampling {
		return e.oversampleEvent()
	}
	nextWake := t.WakeTime + e.restTime
	if !e.matches() {
		t.WakeTime = nextWake
		return SF_RESCHEDULE
	}
	e.nextWake = nextWake
	e.oversampling = true
	return e.oversampleEvent()
}

func (e *Endstop) oversampleEvent() uint8 {
	k := e.k
	if !e.matches() {
		// bounce: back to resting samples
		e.oversampling = false
		e.timer.WakeTime = e.nextWake
		e.triggerCount = e.sampleCount
		return SF_RESCHEDULE
	}
	count := e.triggerCount - 1
	if count == 0 {
		k.RecordTiming(EvtEndstopMatch, e.oid, k.Now(), uint32(e.triggerReason), 0)
		e.flags &^= ESF_HOMING
		e.ts.Trigger(e.triggerReason)
		return SF_DONE
	}
	e.triggerCount = count
	e.timer.WakeTime += e.sampleTime
	return SF_RESCHEDULE
}

// Home starts sampling at clock. A zero sampleCount stops sampling.
func (e *Endstop) Home(clock, sampleTime uint32, sampleCount uint8, restTime uint32,
	pinValue bool, ts *TriggerSync, reason uint8) {
	k := e.k
	state := irqDisable()
	defer irqRestore(state)
	k.DeleteTimer(&e.timer)
	e.timer.WakeTime = clock
	e.sampleTime = sampleTime
	e.sampleCount = sampleCount
	if sampleCount == 0 {
		e.ts = nil
		e.flags = 0
		return
	}
	e.restTime = restTime
	e.oversampling = false
	e.triggerCount = sampleCount
	e.flags = ESF_HOMING
	if pinValue {
		e.flags |= ESF_PIN_HIGH
	}
	e.ts = ts
	e.triggerReason = reason
	k.AddTimer(&e.timer)
}

// Homing reports whether the endstop is still sampling
func (e *Endstop) Homing() bool {
	return e.flags&ESF_HOMING != 0
}

func (k *Kernel) registerEndstopCommands() {
	r := k.cmds
	r.Register("config_endstop", "oid=%c pin=%c pull_up=%c", 0, k.cmdConfigEndstop)
	r.Register("endstop_home",
		"oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u pin_value=%c trsync_oid=%c trigger_reason=%c",
		0, k.cmdEndstopHome)
	r.Register("endstop_query_state", "oid=%c", HF_IN_SHUTDOWN, k.cmdEndstopQueryState)

	r.RegisterResponse("endstop_state", "oid=%c homing=%c next_clock=%u pin_value=%c")
}

func (k *Kernel) cmdConfigEndstop(args []uint32) {
	k.oidAlloc(args[0], k.newEndstop(uint8(args[0]), GPIOPin(args[1]), args[2] != 0))
}

func (k *Kernel) cmdEndstopHome(args []uint32) {
	e := oidLookup[*Endstop](k, args[0])
	sampleCount := uint8(args[3])
	var ts *TriggerSync
	if sampleCount != 0 {
		ts = k.lookupTrsync(args[6])
	}
	e.Home(args[1], args[2], sampleCount, args[4], args[5] != 0, ts, uint8(args[7]))
}

func (k *Kernel) cmdEndstopQueryState(args []uint32) {
	e := oidLookup[*Endstop](k, args[0])
	state := irqDisable()
	flags, nextWake := e.flags, e.nextWake
	irqRestore(state)
	k.sendf("endstop_state", args[0], boolArg(flags&ESF_HOMING != 0), nextWake,
		boolArg(k.plat.ReadPin(e.pin)))
}

func (k *Kernel) endstopShutdown() {
	forEachOid(k, func(_ uint8, e *Endstop) {
		e.flags = 0
		e.ts = nil
	})
}
