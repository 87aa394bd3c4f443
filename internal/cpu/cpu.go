// Package cpu holds the per-hart record spec.md §3 calls the "CPU record":
// a pointer to the process currently running on this hart, its saved
// scheduler context, and the interrupt-disable nesting state that
// internal/lock's spinlocks rely on. Grounded on
// original_source/kernel/proc/cpu.c (mycpu/mycpuid/myproc), reshaped per
// spec.md §9's "interrupt-state nesting... per-hart counter plus a one-shot
// prior-state slot" note.
package cpu

import (
	"rvkernel/internal/memlayout"
	"rvkernel/internal/riscv"
)

// Proc is the minimal view of a running process a CPU record needs to hold,
// satisfied by *proc.Process. Defined here (rather than imported from
// internal/proc) to keep internal/lock, which depends on this package, out
// of a cycle with internal/proc, which depends on internal/lock.
type Proc interface{}

// CPU is one hart's scheduling and interrupt-nesting state.
type CPU struct {
	// Current is the process this hart is currently running, or nil.
	Current Proc

	// Scheduler is the per-hart context swtch returns to when a process
	// yields or blocks.
	Scheduler riscv.Context

	// Noff is the spinlock push_off/pop_off nesting depth.
	Noff int

	// Origin is the one-shot snapshot of whether interrupts were enabled
	// before the outermost push_off; valid only while Noff>0.
	Origin bool
}

var table [memlayout.NCPU]CPU

// HartIDFunc is swapped out by tests (in this package and others, e.g.
// internal/lock, internal/pmem, internal/mmap, internal/buf, internal/proc)
// so code built on Mycpuid can run on a host build without the real tp-
// register read, the same seam kpanic.Halt and console.Write use.
// Production code never reassigns it.
var HartIDFunc = riscv.HartID

// Mycpuid returns the calling hart's index. Must be called with interrupts
// disabled by the caller — the result is meaningless if the hart can be
// rescheduled to a different physical core concurrently with the read,
// which cannot happen for software harts but mirrors the same "must
// disable interrupts" discipline original_source expects around
// mycpuid().
func Mycpuid() int {
	return int(HartIDFunc())
}

// Mycpu returns the calling hart's CPU record. Caller must have interrupts
// disabled.
func Mycpu() *CPU {
	return &table[Mycpuid()]
}
