package core

// Scheduler keeps pending timers in a singly linked list sorted by wake
// time. The list always ends in the sentinel, and the periodic timer is
// always present, so the list is never empty and insertion never runs off
// the end.
type Scheduler struct {
	k          *Kernel
	list       *Timer
	lastInsert *Timer

	periodic Timer
	sentinel Timer
	deleted  Timer
}

func (s *Scheduler) init(k *Kernel) {
	s.k = k
	s.periodic.Handler = s.periodicEvent
	s.sentinel.Handler = s.sentinelEvent
	s.deleted.Handler = deletedEvent
}

// periodicEvent wakes the task runner so background work runs even when
// nothing else is scheduled
func (s *Scheduler) periodicEvent(t *Timer) uint8 {
	s.k.tasks.wakeTasks()
	t.WakeTime += s.k.cfg.PeriodicTicks
	s.sentinel.WakeTime = t.WakeTime + 0x80000000
	return SF_RESCHEDULE
}

func (s *Scheduler) sentinelEvent(*Timer) uint8 {
	s.k.Shutdown(ReasonSentinelTimer)
	return SF_DONE
}

func deletedEvent(*Timer) uint8 {
	return SF_DONE
}

// insert links t after pos, scanning forward to its wake time
func (s *Scheduler) insert(pos, t *Timer, waketime uint32) {
	var prev *Timer
	for {
		prev = pos
		pos = pos.next
		if TimerIsBefore(waketime, pos.WakeTime) {
			break
		}
	}
	t.next = pos
	prev.next = t
	s.lastInsert = t
}

// AddTimer schedules t at t.WakeTime. Scheduling in the past is fatal.
func (k *Kernel) AddTimer(t *Timer) {
	s := &k.sched
	waketime := t.WakeTime
	if TimerIsBefore(waketime, k.Now()) {
		k.RecordTiming(EvtTimerPast, 0, k.Now(), waketime, 0)
		k.Shutdown(ReasonTimerTooClose)
	}
	state := irqDisable()
	defer irqRestore(state)

	head := s.list
	if !TimerIsBefore(waketime, head.WakeTime) {
		s.insert(head, t, waketime)
		return
	}
	// new first timer: park it behind the placeholder so a dispatch in
	// progress never sees the list head change under it
	if head == &s.deleted {
		t.next = s.deleted.next
	} else {
		t.next = head
	}
	s.deleted.WakeTime = waketime
	s.deleted.next = t
	s.list = &s.deleted
	k.plat.SetAlarm(waketime)
}

// DeleteTimer removes t if it is scheduled
func (k *Kernel) DeleteTimer(t *Timer) {
	s := &k.sched
	state := irqDisable()
	defer irqRestore(state)

	if s.list == t {
		s.deleted.WakeTime = t.WakeTime
		s.deleted.next = t.next
		s.list = &s.deleted
	} else {
		for pos := s.list; pos.next != nil; pos = pos.next {
			if pos.next == t {
				pos.next = t.next
				break
			}
		}
	}
	if s.lastInsert == t {
		s.lastInsert = &s.periodic
	}
}

// dispatchOne runs the first timer and returns the next wake time
func (s *Scheduler) dispatchOne() uint32 {
	t := s.list
	res := t.Handler(t)
	waketime := t.WakeTime
	next := t.next

	if res == SF_DONE {
		s.list = next
		if s.lastInsert == t {
			s.lastInsert = next
		}
		return next.WakeTime
	}
	if TimerIsBefore(waketime, next.WakeTime) {
		return waketime
	}
	s.list = next
	pos := s.lastInsert
	if TimerIsBefore(waketime, pos.WakeTime) {
		pos = next
	}
	s.insert(pos, t, waketime)
	return next.WakeTime
}

// dispatchMany runs every due timer and returns when the hardware alarm
// should next fire. Timers that are due within MinTryTicks are waited for
// instead of taking another interrupt.
func (s *Scheduler) dispatchMany() uint32 {
	k := s.k
	cfg := &k.cfg
	repeatUntil := k.Now() + cfg.RepeatTicks
	for {
		next := s.dispatchOne()
		now := k.Now()
		diff := int32(next - now)
		if diff > int32(cfg.MinTryTicks) {
			return next
		}
		if TimerIsBefore(repeatUntil, now) {
			if diff < -int32(cfg.PastLimitTicks) {
				k.RecordTiming(EvtTimerPast, 0, now, next, 0)
				k.Shutdown(ReasonRescheduledPast)
			}
			if k.tasks.busy() {
				return now + cfg.DeferRepeatTicks
			}
			repeatUntil = now + cfg.IdleRepeatTicks
		}
		for diff > 0 {
			diff = int32(next - k.Now())
		}
	}
}

// reset drops every timer except the periodic heartbeat
func (s *Scheduler) reset() {
	now := s.k.Now()
	s.periodic.WakeTime = now
	s.sentinel.WakeTime = now + 0x80000000
	s.sentinel.next = nil
	s.periodic.next = &s.sentinel
	s.deleted.WakeTime = now
	s.deleted.next = &s.periodic
	s.list = &s.deleted
	s.lastInsert = &s.periodic
	s.k.plat.SetAlarm(now)
}

// NextWake returns the wake time of the first pending timer
func (k *Kernel) NextWake() uint32 {
	return k.sched.list.WakeTime
}

// TimerIRQ is called by the platform when the alarm fires. It dispatches
// every due timer and rearms the alarm.
func (k *Kernel) TimerIRQ() {
	var next uint32
	if !k.supervise(func() { next = k.sched.dispatchMany() }) {
		next = k.sched.list.WakeTime
	}
	k.plat.SetAlarm(next)
}
