//go:build linux

package main

import (
	"time"

	"golang.org/x/sys/unix"
)

// monotonicClock scales CLOCK_MONOTONIC to kernel ticks
type monotonicClock struct {
	freq uint64
}

func (c monotonicClock) now() uint32 {
	var ts unix.Timespec
	// CLOCK_MONOTONIC can not fail with a valid timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return uint32(uint64(ts.Sec)*c.freq + uint64(ts.Nsec)*c.freq/1e9)
}

// duration converts a tick count to wall time
func (c monotonicClock) duration(ticks uint32) time.Duration {
	return time.Duration(uint64(ticks) * 1e9 / c.freq)
}

// lockRealtime pins the calling thread and its memory for low-latency
// stepping. The caller must have called runtime.LockOSThread.
func lockRealtime(priority int) error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return err
	}
	return unix.SchedSetAttr(0, &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}, 0)
}
