package core

import "unsafe"

// MoveHandle addresses one slot of the move arena
type MoveHandle uint16

// NoMove is the null handle
const NoMove MoveHandle = 0xFFFF

// maxMoves keeps every slot index below NoMove
const maxMoves = int(NoMove)

// MoveFlags are per-move flags
type MoveFlags uint8

const (
	// MoveDir marks a move that reverses the stepper before stepping
	MoveDir MoveFlags = 1 << 0
)

// StepperMove is one constant-acceleration segment
type StepperMove struct {
	Interval uint32
	Add      int16
	Count    uint16
	Flags    MoveFlags
}

// moveItemSize is the memory one queued move costs: the record plus its
// link
const moveItemSize = int(unsafe.Sizeof(StepperMove{})) + int(unsafe.Sizeof(MoveHandle(0)))

// MoveArena is the shared pool of move slots. The item size is negotiated
// by every queue owner during configuration, then the pool is carved once
// by Finalize. Slots link through next, both on the free list and inside a
// MoveQueue, since a slot is only ever on one of them.
type MoveArena struct {
	k        *Kernel
	itemSize int
	moves    []StepperMove
	next     []MoveHandle
	inUse    []bool
	free     MoveHandle
}

// Setup records that a queue owner needs slots of at least itemSize bytes
func (a *MoveArena) Setup(itemSize int) {
	if a.Finalized() {
		a.k.Shutdown(ReasonMoveSetupAfterFinalize)
	}
	if itemSize > a.itemSize {
		a.itemSize = itemSize
	}
}

// Finalize carves memBytes into slots. It may run once per configuration.
func (a *MoveArena) Finalize(memBytes int) {
	if a.Finalized() {
		a.k.Shutdown(ReasonAlreadyFinalized)
	}
	a.Setup(moveItemSize)
	n := memBytes / a.itemSize
	if n > maxMoves {
		n = maxMoves
	}
	if n < 1 {
		n = 1
	}
	a.moves = make([]StepperMove, n)
	a.next = make([]MoveHandle, n)
	a.inUse = make([]bool, n)
	a.reset()
}

func (a *MoveArena) Finalized() bool {
	return len(a.moves) > 0
}

// Count is the number of slots, zero before Finalize
func (a *MoveArena) Count() int {
	return len(a.moves)
}

// reset returns every slot to the free list
func (a *MoveArena) reset() {
	n := len(a.moves)
	if n == 0 {
		a.free = NoMove
		return
	}
	for i := 0; i < n-1; i++ {
		a.next[i] = MoveHandle(i + 1)
		a.inUse[i] = false
	}
	a.next[n-1] = NoMove
	a.inUse[n-1] = false
	a.free = 0
}

// clear forgets the pool entirely, as on config_reset
func (a *MoveArena) clear() {
	a.itemSize = 0
	a.moves = nil
	a.next = nil
	a.inUse = nil
	a.free = NoMove
}

// Alloc takes a slot from the free list. Running out is fatal.
func (a *MoveArena) Alloc() MoveHandle {
	state := irqDisable()
	defer irqRestore(state)
	h := a.free
	if h == NoMove {
		a.k.Shutdown(ReasonMoveQueueOverflow)
	}
	a.free = a.next[h]
	a.next[h] = NoMove
	a.inUse[h] = true
	return h
}

// Free returns h to the pool. Caller must have interrupts disabled.
func (a *MoveArena) Free(h MoveHandle) {
	if int(h) >= len(a.inUse) || !a.inUse[h] {
		a.k.Shutdown(ReasonMoveFreedTwice)
	}
	a.inUse[h] = false
	a.next[h] = a.free
	a.free = h
}

// Move returns the record stored in h
func (a *MoveArena) Move(h MoveHandle) *StepperMove {
	return &a.moves[h]
}

// Available counts free slots
func (a *MoveArena) Available() int {
	n := 0
	for h := a.free; h != NoMove; h = a.next[h] {
		n++
	}
	return n
}

// MoveQueue is a FIFO of arena slots
type MoveQueue struct {
	first, last MoveHandle
}

func (q *MoveQueue) init() {
	q.first, q.last = NoMove, NoMove
}

func (q *MoveQueue) Empty() bool {
	return q.first == NoMove
}

// Push appends h. Caller must have interrupts disabled.
func (q *MoveQueue) Push(a *MoveArena, h MoveHandle) {
	a.next[h] = NoMove
	if q.first == NoMove {
		q.first = h
	} else {
		a.next[q.last] = h
	}
	q.last = h
}

// Pop removes the oldest slot. Caller must check Empty first.
func (q *MoveQueue) Pop(a *MoveArena) MoveHandle {
	h := q.first
	q.first = a.next[h]
	if q.first == NoMove {
		q.last = NoMove
	}
	return h
}

// Clear returns every queued slot to the arena
func (q *MoveQueue) Clear(a *MoveArena) {
	for !q.Empty() {
		a.Free(q.Pop(a))
	}
}

// Len walks the queue
func (q *MoveQueue) Len(a *MoveArena) int {
	n := 0
	for h := q.first; h != NoMove; h = a.next[h] {
		n++
	}
	return n
}
