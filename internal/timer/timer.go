// Package timer implements the system-wide tick counter of spec.md §3/§4.6:
// a single spinlock-guarded counter that only hart 0 advances. Grounded on
// original_source/kernel/dev/timer.c's S-mode half (timer_create/
// timer_update/timer_get_ticks); the M-mode half (CLINT programming,
// mscratch layout, the machine-mode timer vector) is the named external
// collaborator spec.md §1 calls "M-mode timer reflection" and is out of
// this module's scope.
package timer

import (
	"unsafe"

	"rvkernel/internal/lock"
)

// Timer is the process-wide tick counter.
type Timer struct {
	lk    *lock.Spinlock
	ticks uint64
}

// New returns a zeroed timer.
func New() *Timer {
	return &Timer{lk: lock.New("timer")}
}

// Tick advances the counter by one. Only hart 0's timer-interrupt handler
// calls this (spec.md §3: "Only hart 0 advances it").
func (t *Timer) Tick() {
	t.lk.Acquire()
	t.ticks++
	t.lk.Release()
}

// Ticks returns the current tick count.
func (t *Timer) Ticks() uint64 {
	t.lk.Acquire()
	defer t.lk.Release()
	return t.ticks
}

// Lock exposes the timer's spinlock so proc.Sleep can use it as the
// released-and-reacquired guard for a sleep-seconds wait, mirroring
// sys_sleep's use of &sys_timer.lk directly.
func (t *Timer) Lock() *lock.Spinlock { return t.lk }

// TicksLocked reads the counter without acquiring the lock; callers must
// already hold Lock() (used by the sleep syscall's wait loop, which holds
// the timer lock across proc.Sleep the same way sys_sleep does).
func (t *Timer) TicksLocked() uint64 { return t.ticks }

// Channel returns the sleep-channel token sleepers on the tick counter
// wait on, mirroring sys_sleep's use of &sys_timer.ticks as its channel.
func (t *Timer) Channel() unsafe.Pointer { return unsafe.Pointer(&t.ticks) }
