package core

// Timer is a scheduled callback. It is embedded in the object that owns it
// and must be in the scheduler list at most once.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	next     *Timer
}

// Handler results
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// TimerIsBefore reports whether tick a comes before tick b on the
// wrapping 32-bit clock. Valid while the two are within 2^31 ticks.
func TimerIsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// Clock is the platform tick counter and the single hardware alarm
type Clock interface {
	// Now returns the free running tick counter
	Now() uint32
	// SetAlarm requests a TimerIRQ call at or after wake. A wake time
	// already in the past fires as soon as possible.
	SetAlarm(wake uint32)
}

// TimerFromUS converts microseconds to ticks of the kernel clock
func (k *Kernel) TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(k.cfg.ClockFreq) / 1000000)
}

// Now returns the current tick
func (k *Kernel) Now() uint32 {
	return k.plat.Now()
}
