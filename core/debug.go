package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Object ID (stepper, trsync, ...)
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtQueueStep    = 1 // queue_step accepted
	EvtLoadMove     = 2 // move loaded from the queue
	EvtResetClock   = 3 // reset_step_clock received
	EvtTimerPast    = 4 // timer found behind the clock
	EvtTrigger      = 5 // trsync triggered
	EvtStepperStop  = 6 // stepper stopped by trsync
	EvtEndstopMatch = 7 // endstop sample matched
	EvtShutdown     = 8 // shutdown entered
)

// TimingRingSize is the number of most recent events kept
const TimingRingSize = 32

type timingRing struct {
	events [TimingRingSize]TimingEvent
	head   uint8
}

// SetDebugWriter redirects debug output, e.g. to a UART or the host log
func (k *Kernel) SetDebugWriter(w DebugWriter) {
	k.debug = w
}

// DebugPrintln writes a debug message if a writer is set
func (k *Kernel) DebugPrintln(msg string) {
	if k.debug != nil {
		k.debug(msg)
	}
}

// RecordTiming captures a timing event in the ring buffer. It never
// blocks and is safe from timer handlers.
func (k *Kernel) RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	r := &k.ring
	r.events[r.head] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	r.head = (r.head + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first
func (k *Kernel) TimingEvents() []TimingEvent {
	r := &k.ring
	out := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := r.events[(r.head+i)%TimingRingSize]
		if evt.EventType != 0 {
			out = append(out, evt)
		}
	}
	return out
}

func eventName(t uint8) string {
	switch t {
	case EvtQueueStep:
		return "QUEUE_STEP"
	case EvtLoadMove:
		return "LOAD_MOVE"
	case EvtResetClock:
		return "RESET_CLK"
	case EvtTimerPast:
		return "TIMER_PAST!"
	case EvtTrigger:
		return "TRIGGER"
	case EvtStepperStop:
		return "STEPPER_STOP"
	case EvtEndstopMatch:
		return "ENDSTOP_MATCH"
	case EvtShutdown:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

// Name is the event type as printed in dumps
func (e TimingEvent) Name() string { return eventName(e.EventType) }

// DumpTimingRing writes the ring to the debug writer, oldest first
func (k *Kernel) DumpTimingRing() {
	if k.debug == nil {
		return
	}
	k.debug("[TIMING] === Timing Ring Dump ===")
	for _, evt := range k.TimingEvents() {
		k.debug("[TIMING] " + evt.Name() +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	k.debug("[TIMING] === End Dump ===")
}

// ClearTimingRing empties the ring
func (k *Kernel) ClearTimingRing() {
	k.ring = timingRing{}
}
