package core

// Stepper motor step generation
// Modelled on Klipper's stepper.c: each timer event emits one step edge or
// pulse, and moves are (interval, count, add) segments taken from a FIFO.

// StepMode selects how a stepper turns timer events into pulses. It is
// chosen once in config_stepper.
type StepMode uint8

const (
	// StepModeEdge toggles the step pin once per step; the driver steps on
	// both edges
	StepModeEdge StepMode = iota
	// StepModeTight raises and lowers the pin within one event
	StepModeTight
	// StepModeFull schedules the step and unstep edges as separate events
	// so a minimum pulse width is honoured
	StepModeFull
)

func (m StepMode) String() string {
	switch m {
	case StepModeEdge:
		return "edge"
	case StepModeTight:
		return "tight"
	case StepModeFull:
		return "full"
	}
	return "invalid"
}

// StepperFlags are the stepper state bits
type StepperFlags uint8

const (
	StepperLastDir StepperFlags = 1 << iota // direction of the last queued move
	StepperNextDir                          // direction requested for the next move
	StepperInvertStep                       // step pin rests high
	StepperNeedReset                        // stopped; moves dropped until reset_step_clock
)

// positionBias keeps the position counter unsigned. The top bit of
// position doubles as a "counting backwards" marker: reversing negates the
// counter so new steps can always be added.
const positionBias = 0x40000000

// Stepper is one axis
type Stepper struct {
	k   *Kernel
	oid uint8

	timer          Timer
	interval       uint32
	add            int16
	count          uint32
	nextStepTime   uint32
	stepPulseTicks uint32
	stepPin        GPIOPin
	dirPin         GPIOPin
	position       uint32
	queue          MoveQueue
	stopSignal     TriggerSignal
	mode           StepMode
	flags          StepperFlags
	pulser         Pulser
}

// newStepper configures the pins and picks the step mode. invertStep < 0
// requests edge stepping.
func (k *Kernel) newStepper(oid uint8, stepPin, dirPin GPIOPin, invertStep int8, pulseTicks uint32) *Stepper {
	s := &Stepper{
		k:              k,
		oid:            oid,
		stepPin:        stepPin,
		dirPin:         dirPin,
		stepPulseTicks: pulseTicks,
		position:       ^uint32(positionBias) + 1, // -positionBias
	}
	s.queue.init()
	s.timer.Handler = s.event

	switch {
	case invertStep < 0:
		if !k.cfg.StepperBothEdge || pulseTicks > k.cfg.TightPulseTicks {
			k.Shutdown(ReasonInvalidStepMode)
		}
		s.mode = StepModeEdge
	case pulseTicks <= k.cfg.TightPulseTicks:
		s.mode = StepModeTight
		s.pulser, _ = k.plat.(Pulser)
	default:
		s.mode = StepModeFull
	}
	if invertStep > 0 {
		s.flags |= StepperInvertStep
	}

	k.setupOutput(stepPin, s.flags&StepperInvertStep != 0)
	k.setupOutput(dirPin, false)
	k.arena.Setup(moveItemSize)
	return s
}

func (s *Stepper) singleSched() bool {
	return s.mode != StepModeFull
}

// loadNext starts the next queued move, or goes idle. The move's steps are
// added to position up front; GetPosition subtracts those not yet taken.
func (s *Stepper) loadNext() uint8 {
	a := &s.k.arena
	if s.queue.Empty() {
		s.count = 0
		return SF_DONE
	}
	h := s.queue.Pop(a)
	m := a.Move(h)
	s.add = m.Add
	s.interval = m.Interval + uint32(int32(m.Add))
	if s.singleSched() {
		s.timer.WakeTime += m.Interval
		s.count = uint32(m.Count)
	} else {
		s.nextStepTime += m.Interval
		s.timer.WakeTime = s.nextStepTime
		s.count = uint32(m.Count) * 2
	}
	if m.Flags&MoveDir != 0 {
		s.position = -s.position + uint32(m.Count)
		s.k.plat.TogglePin(s.dirPin)
	} else {
		s.position += uint32(m.Count)
	}
	s.k.RecordTiming(EvtLoadMove, s.oid, s.timer.WakeTime, m.Interval, uint32(m.Count))
	a.Free(h)
	return SF_RESCHEDULE
}

// event is the timer handler
func (s *Stepper) event(t *Timer) uint8 {
	switch s.mode {
	case StepModeEdge:
		return s.eventEdge()
	case StepModeTight:
		return s.eventTight()
	}
	return s.eventFull()
}

func (s *Stepper) eventEdge() uint8 {
	s.k.plat.TogglePin(s.stepPin)
	if count := s.count - 1; count != 0 {
		s.count = count
		s.timer.WakeTime += s.interval
		s.interval += uint32(int32(s.add))
		return SF_RESCHEDULE
	}
	return s.loadNext()
}

// eventTight emits the whole pulse; the bookkeeping between the two
// toggles is the pulse width
func (s *Stepper) eventTight() uint8 {
	p := s.k.plat
	if s.pulser != nil {
		s.pulser.Pulse(s.stepPin)
	} else {
		p.TogglePin(s.stepPin)
	}
	var ret uint8
	if count := s.count - 1; count != 0 {
		s.count = count
		s.timer.WakeTime += s.interval
		s.interval += uint32(int32(s.add))
		ret = SF_RESCHEDULE
	} else {
		ret = s.loadNext()
	}
	if s.pulser == nil {
		p.TogglePin(s.stepPin)
	}
	return ret
}

// eventFull handles both edges of a pulse. count runs at twice the step
// count: odd means the pin is asserted and the next event is the unstep.
// Direction changes happen in loadNext, which only runs from an unstep
// event, so the dir pin never moves within a pulse width of a step.
func (s *Stepper) eventFull() uint8 {
	k := s.k
	k.plat.TogglePin(s.stepPin)
	minNextTime := k.Now() + s.stepPulseTicks
	s.count--
	if s.count&1 != 0 {
		s.timer.WakeTime = minNextTime
		return SF_RESCHEDULE
	}
	if s.count != 0 {
		s.nextStepTime += s.interval
		s.interval += uint32(int32(s.add))
		if TimerIsBefore(s.nextStepTime, minNextTime) {
			s.timer.WakeTime = minNextTime
		} else {
			s.timer.WakeTime = s.nextStepTime
		}
		return SF_RESCHEDULE
	}
	ret := s.loadNext()
	if ret == SF_DONE || !TimerIsBefore(s.timer.WakeTime, minNextTime) {
		return ret
	}
	// the next move starts too soon after this unstep
	if diff := int32(s.timer.WakeTime - minNextTime); diff < -int32(k.cfg.PastLimitTicks) {
		k.RecordTiming(EvtTimerPast, s.oid, minNextTime, s.timer.WakeTime, 0)
		k.Shutdown(ReasonStepperTooFarInPast)
	}
	s.timer.WakeTime = minNextTime
	return SF_RESCHEDULE
}

// QueueMove appends a move. On an idle stepper it starts immediately,
// relative to the current step clock.
func (s *Stepper) QueueMove(interval uint32, count uint16, add int16) {
	k := s.k
	if count == 0 {
		k.Shutdown(ReasonInvalidCount)
	}
	a := &k.arena
	h := a.Alloc()
	m := a.Move(h)
	*m = StepperMove{Interval: interval, Count: count, Add: add}

	state := irqDisable()
	defer irqRestore(state)
	flags := s.flags
	if (flags&StepperLastDir != 0) != (flags&StepperNextDir != 0) {
		flags ^= StepperLastDir
		m.Flags |= MoveDir
	}
	k.RecordTiming(EvtQueueStep, s.oid, k.Now(), interval, uint32(count))
	switch {
	case s.count != 0:
		s.flags = flags
		s.queue.Push(a, h)
	case flags&StepperNeedReset != 0:
		a.Free(h)
	default:
		s.flags = flags
		s.queue.Push(a, h)
		s.loadNext()
		k.AddTimer(&s.timer)
	}
}

// SetNextDir buffers the direction of the next queued move
func (s *Stepper) SetNextDir(dir bool) {
	state := irqDisable()
	s.flags &^= StepperNextDir
	if dir {
		s.flags |= StepperNextDir
	}
	irqRestore(state)
}

// ResetClock sets the time the next move's first interval counts from.
// Only legal while idle; it also rearms a stepper stopped by a trigger.
func (s *Stepper) ResetClock(clock uint32) {
	state := irqDisable()
	defer irqRestore(state)
	if s.count != 0 {
		s.k.Shutdown(ReasonResetWhileActive)
	}
	s.nextStepTime = clock
	s.timer.WakeTime = clock
	s.flags &^= StepperNeedReset
	s.k.RecordTiming(EvtResetClock, s.oid, s.k.Now(), clock, 0)
}

// rawPosition is the unbiased position. Caller must disable interrupts.
func (s *Stepper) rawPosition() uint32 {
	pos := s.position
	if s.singleSched() {
		pos -= s.count
	} else {
		pos -= s.count / 2
	}
	if pos&0x80000000 != 0 {
		return -pos
	}
	return pos
}

// Position returns the signed step position; steps with the direction
// pin high count up
func (s *Stepper) Position() int32 {
	state := irqDisable()
	pos := s.rawPosition()
	irqRestore(state)
	return int32(pos - positionBias)
}

// Active reports whether the stepper is executing a move
func (s *Stepper) Active() bool {
	return s.count != 0
}

// Mode returns the step strategy picked at configuration
func (s *Stepper) Mode() StepMode {
	return s.mode
}

// stop halts the stepper at once and parks the pins. Used as a trsync
// signal, so it runs with interrupts disabled.
func (s *Stepper) stop(reason uint8) {
	k := s.k
	k.DeleteTimer(&s.timer)
	s.nextStepTime = 0
	s.timer.WakeTime = 0
	s.position = -s.rawPosition()
	s.count = 0
	s.flags = s.flags&StepperInvertStep | StepperNeedReset
	k.plat.SetPin(s.dirPin, false)
	k.plat.SetPin(s.stepPin, s.flags&StepperInvertStep != 0)
	s.queue.Clear(&k.arena)
	k.RecordTiming(EvtStepperStop, s.oid, k.Now(), uint32(reason), 0)
}

func (k *Kernel) stepperShutdown() {
	forEachOid(k, func(_ uint8, s *Stepper) {
		// the arena is rebuilt wholesale after this
		s.queue.init()
		s.stop(0)
	})
}
