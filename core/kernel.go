// Package core is the real-time kernel of the stepcore firmware: the timer
// scheduler, the cooperative task runner, the move arena, the stepper
// engine, trigger synchronization and the host command layer. Everything
// is owned by one Kernel; a target supplies the Platform.
package core

// Config holds the per-target tuning of the kernel. Tick values are in
// units of ClockFreq.
type Config struct {
	ClockFreq     uint32
	MCU           string
	BuildVersions string

	// Scheduler
	MinTryTicks      uint32 // wait in the interrupt for timers this close
	RepeatTicks      uint32 // dispatch at most this long while tasks wait
	IdleRepeatTicks  uint32 // ... and this long while no task is pending
	DeferRepeatTicks uint32 // then yield to tasks for this long
	PastLimitTicks   uint32 // fatal lateness of a rescheduled timer
	PeriodicTicks    uint32 // task heartbeat
	StatsWindowTicks uint32 // period of the "stats" report

	// Stepper
	TightPulseTicks uint32 // largest pulse emitted inside one event
	StepperBothEdge bool   // platform can step on every edge

	// MoveMemory is the memory given to the move arena at finalize_config
	MoveMemory int
}

// DefaultConfig derives the tuning constants from the clock frequency
func DefaultConfig(clockFreq uint32) Config {
	us := func(v uint32) uint32 {
		return uint32(uint64(v) * uint64(clockFreq) / 1000000)
	}
	return Config{
		ClockFreq:        clockFreq,
		MCU:              "stepcore",
		BuildVersions:    "go",
		MinTryTicks:      us(2),
		RepeatTicks:      us(100),
		IdleRepeatTicks:  us(500),
		DeferRepeatTicks: us(5),
		PastLimitTicks:   us(1000),
		PeriodicTicks:    us(100000),
		StatsWindowTicks: us(5000000),
		TightPulseTicks:  us(1),
		MoveMemory:       16 * 1024,
	}
}

// Kernel owns every table of the firmware. All methods must be called from
// the platform's single execution context: TimerIRQ from the timer
// interrupt, everything else from the main loop.
type Kernel struct {
	cfg  Config
	plat Platform

	sched Scheduler
	tasks TaskRunner
	arena MoveArena
	oids  oidTable
	cmds  *CommandRegistry
	dict  *Dictionary
	ring  timingRing
	debug DebugWriter

	shutdownStatus uint8
	shutdownReason ShutdownReason
	shutdownFuncs  []func()
	configCRC      uint32
	resetPending   bool

	trsyncWake TaskWake

	argBuf  []uint32
	respBuf []byte
}

// New builds a kernel on p, registers every command and arms the
// heartbeat timer
func New(p Platform, cfg Config) *Kernel {
	k := &Kernel{
		cfg:     cfg,
		plat:    p,
		cmds:    NewCommandRegistry(),
		argBuf:  make([]uint32, 0, 8),
		respBuf: make([]byte, 0, 64),
	}
	k.dict = newDictionary(k.cmds)
	k.sched.init(k)
	k.arena.k = k
	k.arena.free = NoMove

	k.registerBaseCommands()
	k.registerStepperCommands()
	k.registerTrsyncCommands()
	k.registerEndstopCommands()
	k.registerDigitalOutCommands()
	k.publishKernelConstants()

	k.AddShutdownHandler(k.stepperShutdown)
	k.AddShutdownHandler(k.trsyncShutdown)
	k.AddShutdownHandler(k.endstopShutdown)
	k.AddShutdownHandler(k.digitalOutShutdown)
	k.AddShutdownHandler(k.arena.reset)
	k.AddTask(k.trsyncTask)

	k.sched.reset()
	return k
}

func (k *Kernel) Config() Config { return k.cfg }

// Commands exposes the registry so targets can add their own messages
// before the dictionary is first requested
func (k *Kernel) Commands() *CommandRegistry { return k.cmds }

func (k *Kernel) Dictionary() *Dictionary { return k.dict }

// Arena exposes the move pool for inspection
func (k *Kernel) Arena() *MoveArena { return &k.arena }
