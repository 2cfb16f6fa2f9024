package core

// registerBaseCommands declares the commands every build carries. The
// host bootstraps with a fixed dictionary in which identify_response is
// id 0 and identify is id 1, so those two must be registered first.
func (k *Kernel) registerBaseCommands() {
	r := k.cmds
	r.RegisterResponse("identify_response", "offset=%u data=%.*s")
	r.Register("identify", "offset=%u count=%c", HF_IN_SHUTDOWN, k.cmdIdentify)

	r.Register("get_uptime", "", HF_IN_SHUTDOWN, k.cmdGetUptime)
	r.Register("get_clock", "", HF_IN_SHUTDOWN, k.cmdGetClock)
	r.Register("get_config", "", HF_IN_SHUTDOWN, k.cmdGetConfig)
	r.Register("finalize_config", "crc=%u", 0, k.cmdFinalizeConfig)
	r.Register("allocate_oids", "count=%c", 0, k.cmdAllocateOids)
	r.Register("emergency_stop", "", HF_IN_SHUTDOWN, k.cmdEmergencyStop)
	r.Register("clear_shutdown", "", HF_IN_SHUTDOWN, k.cmdClearShutdown)
	r.Register("config_reset", "", HF_IN_SHUTDOWN, k.cmdConfigReset)
	r.Register("reset", "", HF_IN_SHUTDOWN, k.cmdReset)

	r.RegisterResponse("clock", "clock=%u")
	r.RegisterResponse("uptime", "high=%u clock=%u")
	r.RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	r.RegisterResponse("stats", "count=%u sum=%u sumsq=%u")
	r.RegisterResponse("shutdown", "clock=%u static_string_id=%hu")
	r.RegisterResponse("is_shutdown", "static_string_id=%hu")
}

// cmdIdentify returns one chunk of the compressed data dictionary
func (k *Kernel) cmdIdentify(args []uint32) {
	offset, count := args[0], args[1]
	chunk := k.dict.Chunk(offset, count)
	k.sendBuffer("identify_response", chunk, offset, 0)
}

func (k *Kernel) cmdGetUptime([]uint32) {
	high, clock := k.Uptime()
	k.sendf("uptime", high, clock)
}

func (k *Kernel) cmdGetClock([]uint32) {
	k.sendf("clock", k.Now())
}

func (k *Kernel) cmdGetConfig([]uint32) {
	k.sendf("config", boolArg(k.configCRC != 0), k.configCRC,
		boolArg(k.IsShutdown()), uint32(k.arena.Count()))
}

// cmdFinalizeConfig ends configuration: the move arena gets its memory and
// no more oids may be assigned
func (k *Kernel) cmdFinalizeConfig(args []uint32) {
	if !k.oids.allocated || k.configCRC != 0 {
		k.Shutdown(ReasonCantFinalize)
	}
	k.arena.Finalize(k.cfg.MoveMemory)
	k.configCRC = args[0]
}

func (k *Kernel) cmdAllocateOids(args []uint32) {
	k.allocateOids(int(args[0]))
}

func (k *Kernel) cmdEmergencyStop([]uint32) {
	k.Shutdown(ReasonCommandRequest)
}

func (k *Kernel) cmdClearShutdown([]uint32) {
	k.clearShutdown()
}

// cmdConfigReset drops all configuration so the host can configure again
// without a reboot. Only valid while shut down.
func (k *Kernel) cmdConfigReset([]uint32) {
	if !k.IsShutdown() {
		k.Shutdown(ReasonConfigResetNotShutdown)
	}
	state := irqDisable()
	defer irqRestore(state)
	k.configCRC = 0
	k.clearOids()
	k.arena.clear()
	k.sched.reset()
	k.clearShutdown()
}

// cmdReset asks the platform to restart. The request is only recorded
// here so the ack for this block still reaches the host.
func (k *Kernel) cmdReset([]uint32) {
	k.resetPending = true
}

// ResetRequested reports whether the host asked for a restart
func (k *Kernel) ResetRequested() bool {
	return k.resetPending
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
