// Digital output pins
// Stepper enable lines, fans and similar outputs the host switches on a
// schedule. max_duration bounds how long a pin may sit away from its
// default level without a fresh update from the host.
package core

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // current level
	DF_TOGGLING   = 1 << 1 // software PWM active
	DF_CHECK_END  = 1 << 2 // endTime is armed
	DF_DEFAULT_ON = 1 << 3 // level restored on shutdown
)

// digital out timer phases
const (
	doutLoad = iota
	doutToggle
	doutEnd
)

// DigitalOut is a configured output pin
type DigitalOut struct {
	k     *Kernel
	oid   uint8
	pin   GPIOPin
	flags uint8
	phase uint8

	timer       Timer
	onDuration  uint32
	offDuration uint32
	cycleTime   uint32
	endTime     uint32
	maxDuration uint32
}

func (k *Kernel) newDigitalOut(oid uint8, pin GPIOPin, value, defaultValue bool, maxDuration uint32) *DigitalOut {
	d := &DigitalOut{k: k, oid: oid, pin: pin, maxDuration: maxDuration}
	d.timer.Handler = d.event
	if defaultValue {
		d.flags |= DF_DEFAULT_ON
	}
	if value {
		d.flags |= DF_ON
	}
	k.setupOutput(pin, value)
	return d
}

func (d *DigitalOut) set(on bool) {
	if on {
		d.flags |= DF_ON
	} else {
		d.flags &^= DF_ON
	}
	d.k.plat.SetPin(d.pin, on)
}

func (d *DigitalOut) event(t *Timer) uint8 {
	switch d.phase {
	case doutToggle:
		return d.toggleEvent(t)
	case doutEnd:
		// the host stopped refreshing a pin that must not stay on
		d.k.Shutdown(ReasonMissedDigitalOut)
		return SF_DONE
	}
	return d.loadEvent(t)
}

// loadEvent applies the queued update at its clock
func (d *DigitalOut) loadEvent(t *Timer) uint8 {
	if d.flags&DF_TOGGLING != 0 {
		d.set(true)
		d.phase = doutToggle
		t.WakeTime += d.onDuration
		return SF_RESCHEDULE
	}
	d.set(d.flags&DF_ON != 0)
	return d.scheduleEnd(t)
}

func (d *DigitalOut) scheduleEnd(t *Timer) uint8 {
	if d.flags&DF_CHECK_END == 0 {
		return SF_DONE
	}
	d.phase = doutEnd
	t.WakeTime = d.endTime
	return SF_RESCHEDULE
}

func (d *DigitalOut) toggleEvent(t *Timer) uint8 {
	on := d.flags&DF_ON == 0
	d.set(on)
	next := d.offDuration
	if on {
		next = d.onDuration
	}
	waketime := t.WakeTime + next
	if d.flags&DF_CHECK_END != 0 && !TimerIsBefore(waketime, d.endTime) {
		return d.scheduleEnd(t)
	}
	t.WakeTime = waketime
	return SF_RESCHEDULE
}

// Queue schedules the pin to change at clock. With a PWM cycle set,
// onTicks is the on time of each cycle; otherwise any nonzero value
// means on. A pending update is replaced.
func (d *DigitalOut) Queue(clock, onTicks uint32) {
	k := d.k
	state := irqDisable()
	defer irqRestore(state)
	k.DeleteTimer(&d.timer)

	d.flags &^= DF_TOGGLING | DF_CHECK_END
	on := onTicks != 0
	if d.cycleTime != 0 {
		if onTicks > d.cycleTime {
			onTicks = d.cycleTime
		}
		d.onDuration = onTicks
		d.offDuration = d.cycleTime - onTicks
		if d.onDuration != 0 && d.offDuration != 0 {
			d.flags |= DF_TOGGLING
		}
	}
	if on {
		d.flags |= DF_ON
	} else {
		d.flags &^= DF_ON
	}
	defaultOn := d.flags&DF_DEFAULT_ON != 0
	if d.maxDuration != 0 && (d.flags&DF_TOGGLING != 0 || on != defaultOn) {
		d.endTime = clock + d.maxDuration
		d.flags |= DF_CHECK_END
	}
	d.phase = doutLoad
	d.timer.WakeTime = clock
	k.AddTimer(&d.timer)
}

// Update sets the level now, cancelling PWM and pending updates
func (d *DigitalOut) Update(on bool) {
	k := d.k
	state := irqDisable()
	defer irqRestore(state)
	k.DeleteTimer(&d.timer)
	d.flags &^= DF_TOGGLING | DF_CHECK_END
	d.set(on)
}

// On reports the current level
func (d *DigitalOut) On() bool {
	return d.flags&DF_ON != 0
}

func (k *Kernel) registerDigitalOutCommands() {
	r := k.cmds
	r.Register("config_digital_out",
		"oid=%c pin=%c value=%c default_value=%c max_duration=%u", 0, k.cmdConfigDigitalOut)
	r.Register("queue_digital_out", "oid=%c clock=%u on_ticks=%u", 0, k.cmdQueueDigitalOut)
	r.Register("update_digital_out", "oid=%c value=%c", 0, k.cmdUpdateDigitalOut)
	r.Register("set_digital_out_pwm_cycle", "oid=%c cycle_ticks=%u", 0, k.cmdSetDigitalOutPWMCycle)
}

func (k *Kernel) cmdConfigDigitalOut(args []uint32) {
	d := k.newDigitalOut(uint8(args[0]), GPIOPin(args[1]), args[2] != 0, args[3] != 0, args[4])
	k.oidAlloc(args[0], d)
}

func (k *Kernel) cmdQueueDigitalOut(args []uint32) {
	oidLookup[*DigitalOut](k, args[0]).Queue(args[1], args[2])
}

func (k *Kernel) cmdUpdateDigitalOut(args []uint32) {
	oidLookup[*DigitalOut](k, args[0]).Update(args[1] != 0)
}

func (k *Kernel) cmdSetDigitalOutPWMCycle(args []uint32) {
	d := oidLookup[*DigitalOut](k, args[0])
	state := irqDisable()
	d.cycleTime = args[1]
	irqRestore(state)
}

// digitalOutShutdown returns every output to its default level
func (k *Kernel) digitalOutShutdown() {
	forEachOid(k, func(_ uint8, d *DigitalOut) {
		d.flags &^= DF_TOGGLING | DF_CHECK_END
		d.set(d.flags&DF_DEFAULT_ON != 0)
	})
}
