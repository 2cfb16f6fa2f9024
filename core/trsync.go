// Trigger synchronization for multi-axis homing
// A trsync collects stop callbacks from steppers and fires them all, once,
// when any trigger source (endstop, host, timeout) reports.
package core

// TriggerSync flags
const (
	TSF_CAN_TRIGGER = 1 << 0 // armed by trsync_start
	TSF_REPORT      = 1 << 2 // trsync_state owed to the host
)

// TriggerSignal is a callback slot embedded in its owner. A slot may be on
// one trsync at a time; it is detached before its callback runs.
type TriggerSignal struct {
	fn   func(reason uint8)
	next *TriggerSignal
}

// Pending reports whether the signal is registered and has not fired
func (sig *TriggerSignal) Pending() bool {
	return sig.fn != nil
}

// TriggerSync coordinates trigger sources and the steppers they stop
type TriggerSync struct {
	k   *Kernel
	oid uint8

	flags         uint8
	triggerReason uint8
	expireReason  uint8
	reportTicks   uint32
	reportTimer   Timer
	expireTimer   Timer
	signals       *TriggerSignal
}

func (k *Kernel) newTriggerSync(oid uint8) *TriggerSync {
	ts := &TriggerSync{k: k, oid: oid}
	ts.reportTimer.Handler = ts.reportEvent
	ts.expireTimer.Handler = ts.expireEvent
	return ts
}

// AddSignal subscribes fn to the next trigger
func (ts *TriggerSync) AddSignal(sig *TriggerSignal, fn func(reason uint8)) {
	state := irqDisable()
	defer irqRestore(state)
	if sig.fn != nil {
		ts.k.Shutdown(ReasonSignalAlreadyRegistered)
	}
	sig.fn = fn
	sig.next = ts.signals
	ts.signals = sig
}

// Trigger fires every subscribed signal with reason. Only the first
// trigger after trsync_start has any effect.
func (ts *TriggerSync) Trigger(reason uint8) {
	k := ts.k
	state := irqDisable()
	defer irqRestore(state)
	flags := ts.flags
	if flags&TSF_CAN_TRIGGER == 0 {
		return
	}
	ts.triggerReason = reason
	// disarm first so a signal that triggers again is a no-op
	ts.flags = flags&^TSF_CAN_TRIGGER | TSF_REPORT
	for ts.signals != nil {
		sig := ts.signals
		ts.signals = sig.next
		fn := sig.fn
		sig.fn = nil
		sig.next = nil
		fn(reason)
	}
	k.DeleteTimer(&ts.expireTimer)
	k.WakeTask(&k.trsyncWake)
	k.RecordTiming(EvtTrigger, ts.oid, k.Now(), uint32(reason), 0)
}

// Armed reports whether a trigger would still fire the signals
func (ts *TriggerSync) Armed() bool {
	return ts.flags&TSF_CAN_TRIGGER != 0
}

// TriggerReason is the reason of the last trigger, zero while armed
func (ts *TriggerSync) TriggerReason() uint8 {
	return ts.triggerReason
}

// reportEvent requests a trsync_state every reportTicks while armed
func (ts *TriggerSync) reportEvent(t *Timer) uint8 {
	if ts.flags&TSF_CAN_TRIGGER == 0 {
		return SF_DONE
	}
	ts.flags |= TSF_REPORT
	ts.k.WakeTask(&ts.k.trsyncWake)
	t.WakeTime += ts.reportTicks
	return SF_RESCHEDULE
}

func (ts *TriggerSync) expireEvent(*Timer) uint8 {
	ts.Trigger(ts.expireReason)
	return SF_DONE
}

// detachSignals drops every subscription without calling it. Caller must
// have interrupts disabled.
func (ts *TriggerSync) detachSignals() {
	for ts.signals != nil {
		sig := ts.signals
		ts.signals = sig.next
		sig.fn = nil
		sig.next = nil
	}
}

// Start arms the trsync. reportClock is the first report; a zero
// reportTicks disables periodic reports. Periodic reports stop once the
// trsync triggers; the host gets a single trsync_state for the trigger.
func (ts *TriggerSync) Start(reportClock, reportTicks uint32, expireReason uint8) {
	k := ts.k
	state := irqDisable()
	defer irqRestore(state)
	k.DeleteTimer(&ts.reportTimer)
	k.DeleteTimer(&ts.expireTimer)
	ts.detachSignals()
	ts.triggerReason = 0
	ts.flags = TSF_CAN_TRIGGER
	ts.expireReason = expireReason
	ts.reportTimer.WakeTime = reportClock
	ts.reportTicks = reportTicks
	if reportTicks != 0 {
		k.AddTimer(&ts.reportTimer)
	}
}

// SetTimeout triggers with the expire reason at clock unless something
// else triggers first
func (ts *TriggerSync) SetTimeout(clock uint32) {
	k := ts.k
	state := irqDisable()
	defer irqRestore(state)
	if ts.flags&TSF_CAN_TRIGGER == 0 {
		return
	}
	k.DeleteTimer(&ts.expireTimer)
	ts.expireTimer.WakeTime = clock
	k.AddTimer(&ts.expireTimer)
}

func (k *Kernel) registerTrsyncCommands() {
	r := k.cmds
	r.Register("config_trsync", "oid=%c", 0, k.cmdConfigTrsync)
	r.Register("trsync_start", "oid=%c report_clock=%u report_ticks=%u expire_reason=%c",
		0, k.cmdTrsyncStart)
	r.Register("trsync_set_timeout", "oid=%c clock=%u", 0, k.cmdTrsyncSetTimeout)
	r.Register("trsync_trigger", "oid=%c reason=%c", 0, k.cmdTrsyncTrigger)
	r.Register("trsync_query_state", "oid=%c", HF_IN_SHUTDOWN, k.cmdTrsyncQueryState)

	r.RegisterResponse("trsync_state", "oid=%c can_trigger=%c trigger_reason=%c clock=%u")
}

func (k *Kernel) lookupTrsync(oid uint32) *TriggerSync {
	return oidLookup[*TriggerSync](k, oid)
}

// TriggerSync returns the trsync configured at oid, if any
func (k *Kernel) TriggerSync(oid uint8) (*TriggerSync, bool) {
	if int(oid) >= len(k.oids.objs) {
		return nil, false
	}
	ts, ok := k.oids.objs[oid].(*TriggerSync)
	return ts, ok
}

func (k *Kernel) cmdConfigTrsync(args []uint32) {
	k.oidAlloc(args[0], k.newTriggerSync(uint8(args[0])))
}

func (k *Kernel) cmdTrsyncStart(args []uint32) {
	k.lookupTrsync(args[0]).Start(args[1], args[2], uint8(args[3]))
}

func (k *Kernel) cmdTrsyncSetTimeout(args []uint32) {
	k.lookupTrsync(args[0]).SetTimeout(args[1])
}

func (k *Kernel) cmdTrsyncTrigger(args []uint32) {
	k.lookupTrsync(args[0]).Trigger(uint8(args[1]))
}

func (k *Kernel) cmdTrsyncQueryState(args []uint32) {
	ts := k.lookupTrsync(args[0])
	state := irqDisable()
	ts.flags |= TSF_REPORT
	irqRestore(state)
	k.WakeTask(&k.trsyncWake)
}

// trsyncTask sends the pending trsync_state reports
func (k *Kernel) trsyncTask() {
	if !k.CheckWake(&k.trsyncWake) {
		return
	}
	forEachOid(k, func(oid uint8, ts *TriggerSync) {
		state := irqDisable()
		flags, reason := ts.flags, ts.triggerReason
		ts.flags = flags &^ TSF_REPORT
		clock := ts.reportTimer.WakeTime
		irqRestore(state)
		if flags&TSF_REPORT == 0 {
			return
		}
		k.sendf("trsync_state", uint32(oid), uint32(flags&TSF_CAN_TRIGGER), uint32(reason), clock)
	})
}

func (k *Kernel) trsyncShutdown() {
	forEachOid(k, func(_ uint8, ts *TriggerSync) {
		ts.detachSignals()
		ts.flags = 0
	})
}
