package core

import "context"

// STATS_SUMSQ_BASE scales the sum of squares reported in "stats"
const STATS_SUMSQ_BASE = 256

const (
	tsIdle = iota
	tsRequested
	tsRunning
)

// TaskWake is a wake flag owned by one task. Setting it from any context
// also requests a task pass.
type TaskWake struct {
	wake bool
}

// TaskRunner runs registered tasks in a flat sweep whenever any of them
// has been woken
type TaskRunner struct {
	status    uint8
	busyState uint8
	tasks     []func()

	count, sum, sumsq uint32
	statsSendTime     uint32
	statsSendTimeHigh uint32
}

func (tr *TaskRunner) wakeTasks() {
	tr.status = tsRequested
}

// busy reports whether tasks are waiting on the timer interrupt
func (tr *TaskRunner) busy() bool {
	return tr.busyState >= tsRequested
}

// AddTask registers fn to run on every task pass
func (k *Kernel) AddTask(fn func()) {
	k.tasks.tasks = append(k.tasks.tasks, fn)
}

// WakeTask marks w and requests a task pass. Safe from timer handlers.
func (k *Kernel) WakeTask(w *TaskWake) {
	k.tasks.wakeTasks()
	w.wake = true
}

// CheckWake reports and clears w
func (k *Kernel) CheckWake(w *TaskWake) bool {
	state := irqDisable()
	woken := w.wake
	w.wake = false
	irqRestore(state)
	return woken
}

// WakeTasks requests a task pass without waking a particular task, for
// platform tasks that poll their own input
func (k *Kernel) WakeTasks() {
	k.tasks.wakeTasks()
}

// RunPending runs one pass over all tasks if a wake was requested since the
// last pass. It returns false when there was nothing to do.
func (k *Kernel) RunPending() bool {
	tr := &k.tasks
	if tr.status != tsRequested {
		return false
	}
	start := k.Now()
	tr.status = tsRunning
	tr.busyState = tsRunning
	k.supervise(func() {
		for _, fn := range tr.tasks {
			fn()
		}
	})
	k.statsUpdate(start, k.Now())
	return true
}

// Run is the main loop: task passes while work is requested, otherwise
// Platform.Idle, which must return after servicing an interrupt or input.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if k.RunPending() {
			continue
		}
		if k.enterIdle() {
			k.plat.Idle()
		}
	}
}

// enterIdle marks the runner idle unless a wake arrived after the last
// pass. It returns false when another pass is due.
func (k *Kernel) enterIdle() bool {
	tr := &k.tasks
	state := irqDisable()
	defer irqRestore(state)
	if tr.status == tsRequested {
		return false
	}
	tr.status = tsIdle
	tr.busyState = tsIdle
	return true
}

// statsUpdate accounts one pass of busy time and emits the "stats" report
// once per stats window
func (k *Kernel) statsUpdate(start, cur uint32) {
	tr := &k.tasks
	diff := cur - start
	tr.count++
	tr.sum += diff

	var next uint32
	switch {
	case diff <= 0xffff:
		next = tr.sumsq + divRoundUp(diff*diff, STATS_SUMSQ_BASE)
	case diff <= 0xfffff:
		next = tr.sumsq + divRoundUp(diff, STATS_SUMSQ_BASE)*diff
	default:
		next = 0xffffffff
	}
	if next < tr.sumsq {
		next = 0xffffffff
	}
	tr.sumsq = next

	if TimerIsBefore(cur, tr.statsSendTime+k.cfg.StatsWindowTicks) {
		return
	}
	k.sendf("stats", tr.count, tr.sum, tr.sumsq)
	if cur < tr.statsSendTime {
		tr.statsSendTimeHigh++
	}
	tr.statsSendTime = cur
	tr.count, tr.sum, tr.sumsq = 0, 0, 0
}

// Uptime returns the 64-bit tick count since boot
func (k *Kernel) Uptime() (high, low uint32) {
	tr := &k.tasks
	cur := k.Now()
	high = tr.statsSendTimeHigh
	if cur < tr.statsSendTime {
		high++
	}
	return high, cur
}

func divRoundUp(n, d uint32) uint32 {
	return (n + d - 1) / d
}
