package core

// Stepper command handlers
// Implements: config_stepper, queue_step, set_next_step_dir, reset_step_clock,
// stepper_get_position, stepper_stop_on_trigger

func (k *Kernel) registerStepperCommands() {
	r := k.cmds
	r.Register("config_stepper",
		"oid=%c step_pin=%c dir_pin=%c invert_step=%c step_pulse_ticks=%u",
		0, k.cmdConfigStepper)
	r.Register("queue_step", "oid=%c interval=%u count=%hu add=%hi", 0, k.cmdQueueStep)
	r.Register("set_next_step_dir", "oid=%c dir=%c", 0, k.cmdSetNextStepDir)
	r.Register("reset_step_clock", "oid=%c clock=%u", 0, k.cmdResetStepClock)
	r.Register("stepper_get_position", "oid=%c", HF_IN_SHUTDOWN, k.cmdStepperGetPosition)
	r.Register("stepper_stop_on_trigger", "oid=%c trsync_oid=%c", 0, k.cmdStepperStopOnTrigger)

	// Debug: queue depth and step strategy
	r.Register("stepper_get_info", "oid=%c", HF_IN_SHUTDOWN, k.cmdStepperGetInfo)

	r.RegisterResponse("stepper_position", "oid=%c pos=%i")
	r.RegisterResponse("stepper_info", "oid=%c mode=%c count=%u queued=%hu")
}

func (k *Kernel) cmdConfigStepper(args []uint32) {
	oid := args[0]
	s := k.newStepper(uint8(oid), GPIOPin(args[1]), GPIOPin(args[2]), int8(args[3]), args[4])
	k.oidAlloc(oid, s)
}

// lookupStepper is the typed oid lookup for steppers
func (k *Kernel) lookupStepper(oid uint32) *Stepper {
	return oidLookup[*Stepper](k, oid)
}

// Stepper returns the stepper configured at oid, if any
func (k *Kernel) Stepper(oid uint8) (*Stepper, bool) {
	if int(oid) >= len(k.oids.objs) {
		return nil, false
	}
	s, ok := k.oids.objs[oid].(*Stepper)
	return s, ok
}

func (k *Kernel) cmdQueueStep(args []uint32) {
	s := k.lookupStepper(args[0])
	s.QueueMove(args[1], uint16(args[2]), int16(args[3]))
}

func (k *Kernel) cmdSetNextStepDir(args []uint32) {
	k.lookupStepper(args[0]).SetNextDir(args[1] != 0)
}

func (k *Kernel) cmdResetStepClock(args []uint32) {
	k.lookupStepper(args[0]).ResetClock(args[1])
}

func (k *Kernel) cmdStepperGetPosition(args []uint32) {
	s := k.lookupStepper(args[0])
	k.sendf("stepper_position", args[0], uint32(s.Position()))
}

func (k *Kernel) cmdStepperGetInfo(args []uint32) {
	s := k.lookupStepper(args[0])
	state := irqDisable()
	count := s.count
	queued := s.queue.Len(&k.arena)
	irqRestore(state)
	k.sendf("stepper_info", args[0], uint32(s.mode), count, uint32(queued))
}

// cmdStepperStopOnTrigger subscribes the stepper's stop to a trsync
func (k *Kernel) cmdStepperStopOnTrigger(args []uint32) {
	s := k.lookupStepper(args[0])
	ts := k.lookupTrsync(args[1])
	ts.AddSignal(&s.stopSignal, s.stop)
}
