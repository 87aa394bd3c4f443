// Package testhw installs single-hart fakes for the hardware seams
// internal/cpu and internal/lock expose (HartIDFunc, IntrGetFunc,
// IntrOnFunc, IntrOffFunc, FenceFunc), so package tests that exercise the
// lock substrate — and everything built on it: internal/pmem,
// internal/mmap, internal/buf, internal/bitmap, internal/proc's
// bookkeeping — can run on a host build. Only test files import this
// package; nothing in the boot path does.
package testhw

import (
	"testing"

	"rvkernel/internal/cpu"
	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/mmap"
	"rvkernel/internal/physmem"
	"rvkernel/internal/pmem"
	"rvkernel/internal/proc"
	"rvkernel/internal/vmem"
)

var intrEnabled = true

// Install points cpu.HartIDFunc and the lock package's interrupt/fence
// hooks at a single-hart, single-goroutine simulation: hart id is always
// zero, and interrupt enable/disable is a plain package-level flag rather
// than an sstatus bit. Call it once per test binary (an init in the first
// _test.go file that needs it is enough; repeated calls are harmless).
func Install() {
	cpu.HartIDFunc = func() uint64 { return 0 }
	lock.IntrGetFunc = func() bool { return intrEnabled }
	lock.IntrOnFunc = func() { intrEnabled = true }
	lock.IntrOffFunc = func() { intrEnabled = false }
	lock.FenceFunc = func() {}
}

// ExpectFatal runs fn with kpanic.Halt rigged to unwind fn via panic/recover
// instead of hanging the test binary in its real select{} loop, and reports
// whether kpanic.Fatal was reached. The simulated hart's push_off nesting
// state is snapshotted and restored around fn so a fatal path that aborts
// mid-PushOff/Acquire doesn't leak into later tests sharing the hart.
func ExpectFatal(t *testing.T, fn func()) bool {
	t.Helper()
	oldHalt := kpanic.Halt
	defer func() { kpanic.Halt = oldHalt }()
	before := *cpu.Mycpu()

	halted := false
	kpanic.Halt = func() {
		halted = true
		panic("kpanic: halted")
	}
	func() {
		defer func() { recover() }()
		fn()
	}()
	*cpu.Mycpu() = before
	return halted
}

// Kernel bundles the boot-time singletons a test needs to drive
// internal/proc, internal/buf, and internal/bitmap without the hardware
// boot path, mirroring cmd/kernel's bootHartZero wiring order.
type Kernel struct {
	RAM    *physmem.RAM
	Frames *pmem.Manager
	Engine *vmem.Engine
	Procs  *proc.Table
}

// ramSize is generous enough for the kernel pool plus a handful of test
// processes' page tables and data pages.
const ramSize = (memlayout.KernelFrames + 256) * memlayout.PGSIZE

// NewKernel wires a fresh frame pool, page-table engine, mmap node pool,
// and process table, identity-mapping nothing extra (tests address
// physical memory directly through Frames/Engine, not through a live satp).
func NewKernel() *Kernel {
	ram := physmem.New(0x8000_0000, ramSize)
	frames := pmem.NewManager(ram, ram.Base)
	engine := vmem.NewEngine(ram, frames)
	kernelRoot := frames.Alloc(true)
	mmapPool := mmap.NewNodePool(memlayout.NPROC * 8)
	procs := proc.NewTable(frames, engine, mmapPool, kernelRoot.Addr)
	return &Kernel{RAM: ram, Frames: frames, Engine: engine, Procs: procs}
}

// MakeFirstProcess runs proc.Table.MakeFirst with a trivial one-instruction
// payload and returns the resulting process via Myproc, for tests that need
// a *proc.Process without driving fork/exit/wait.
func (k *Kernel) MakeFirstProcess() *proc.Process {
	k.Procs.MakeFirst([]byte{0x6f, 0x00, 0x00, 0x00})
	return k.Procs.Myproc()
}
