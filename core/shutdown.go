package core

// ShutdownReason is the static string id reported with "shutdown" and
// "is_shutdown". The set is closed; every value has a message published in
// the data dictionary.
type ShutdownReason uint16

const (
	ReasonNone ShutdownReason = iota
	ReasonCommandRequest
	ReasonTimerTooClose
	ReasonRescheduledPast
	ReasonSentinelTimer
	ReasonMoveQueueOverflow
	ReasonMoveFreedTwice
	ReasonMoveSetupAfterFinalize
	ReasonAlreadyFinalized
	ReasonInvalidCount
	ReasonStepperTooFarInPast
	ReasonResetWhileActive
	ReasonInvalidStepMode
	ReasonSignalAlreadyRegistered
	ReasonOidsAllocated
	ReasonCantAssignOid
	ReasonInvalidOid
	ReasonInvalidOidType
	ReasonCantFinalize
	ReasonConfigResetNotShutdown
	ReasonClearNotShutdown
	ReasonInvalidPin
	ReasonMissedDigitalOut
	reasonCount
)

var reasonMessages = [reasonCount]string{
	ReasonNone:                    "",
	ReasonCommandRequest:          "Command request",
	ReasonTimerTooClose:           "Timer too close",
	ReasonRescheduledPast:         "Rescheduled timer in the past",
	ReasonSentinelTimer:           "Sentinel timer called",
	ReasonMoveQueueOverflow:       "Move queue overflow",
	ReasonMoveFreedTwice:          "Move freed twice",
	ReasonMoveSetupAfterFinalize:  "Can not setup move queue after finalize",
	ReasonAlreadyFinalized:        "Already finalized",
	ReasonInvalidCount:            "Invalid count parameter",
	ReasonStepperTooFarInPast:     "Stepper too far in past",
	ReasonResetWhileActive:        "Can't reset time when stepper active",
	ReasonInvalidStepMode:         "Invalid step mode",
	ReasonSignalAlreadyRegistered: "trsync signal already registered",
	ReasonOidsAllocated:           "oids already allocated",
	ReasonCantAssignOid:           "Can't assign oid",
	ReasonInvalidOid:              "Invalid oid",
	ReasonInvalidOidType:          "Invalid oid type",
	ReasonCantFinalize:            "Can't finalize",
	ReasonConfigResetNotShutdown:  "config_reset only available when shutdown",
	ReasonClearNotShutdown:        "Shutdown cleared when not shutdown",
	ReasonInvalidPin:              "Invalid pin",
	ReasonMissedDigitalOut:        "Missed scheduling of next digital out event",
}

func (r ShutdownReason) String() string {
	if r < reasonCount {
		return reasonMessages[r]
	}
	return "reason " + utoa(uint32(r))
}

const (
	shutdownNone = iota
	shutdownDone
	shutdownInProgress
)

// shutdownSignal is the panic value that unwinds a fatal condition to the
// nearest supervise call
type shutdownSignal struct {
	reason ShutdownReason
}

// Shutdown stops all motion and reports reason to the host. It does not
// return: control resumes at the entry point that called into the kernel
// (TimerIRQ, Dispatch or the task pass).
func (k *Kernel) Shutdown(reason ShutdownReason) {
	panic(shutdownSignal{reason})
}

// TryShutdown shuts down unless already shut down
func (k *Kernel) TryShutdown(reason ShutdownReason) {
	if !k.IsShutdown() {
		k.Shutdown(reason)
	}
}

// IsShutdown reports whether the kernel is shut down or shutting down
func (k *Kernel) IsShutdown() bool {
	return k.shutdownStatus != shutdownNone
}

// ShutdownReason returns the reason of the current or last shutdown
func (k *Kernel) ShutdownReason() ShutdownReason {
	return k.shutdownReason
}

// AddShutdownHandler registers fn to run, in registration order, whenever
// the kernel enters shutdown
func (k *Kernel) AddShutdownHandler(fn func()) {
	k.shutdownFuncs = append(k.shutdownFuncs, fn)
}

// supervise runs fn and converts a shutdown unwind into entering the
// shutdown state. It returns false if fn was cut short. Other panics are
// not ours and keep propagating.
func (k *Kernel) supervise(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sig, isShutdown := r.(shutdownSignal)
			if !isShutdown {
				panic(r)
			}
			k.enterShutdown(sig.reason)
			ok = false
		}
	}()
	fn()
	return true
}

func (k *Kernel) enterShutdown(reason ShutdownReason) {
	state := irqDisable()
	cur := k.Now()
	if k.shutdownStatus == shutdownNone {
		k.shutdownReason = reason
	}
	k.shutdownStatus = shutdownInProgress
	k.RecordTiming(EvtShutdown, 0, cur, uint32(reason), 0)
	k.sched.reset()
	for _, fn := range k.shutdownFuncs {
		k.runShutdownFunc(fn)
	}
	k.shutdownStatus = shutdownDone
	irqRestore(state)

	k.DebugPrintln("[SHUTDOWN] " + k.shutdownReason.String())
	k.DumpTimingRing()
	k.sendf("shutdown", cur, uint32(k.shutdownReason))
}

// runShutdownFunc runs one handler; a handler that itself hits a fatal
// condition must not prevent the rest from running
func (k *Kernel) runShutdownFunc(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, isShutdown := r.(shutdownSignal); !isShutdown {
				panic(r)
			}
		}
	}()
	fn()
}

// clearShutdown leaves the shutdown state. A clear that arrives while
// handlers are still running is ignored.
func (k *Kernel) clearShutdown() {
	if k.shutdownStatus == shutdownNone {
		k.Shutdown(ReasonClearNotShutdown)
	}
	if k.shutdownStatus == shutdownInProgress {
		return
	}
	k.shutdownStatus = shutdownNone
}

func (k *Kernel) reportShutdown() {
	k.sendf("is_shutdown", uint32(k.shutdownReason))
}
