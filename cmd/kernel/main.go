// Command kernel is the per-hart entry point: it wires every subsystem
// package into the boot sequence spec.md §2 describes — frame pool,
// kernel page table, process table, trap plane, buffer cache, first user
// process, scheduler — and is the only place in the module that
// constructs the whole kernel. Grounded on
// original_source/kernel/boot/main.c and start.c's M-mode boot shape,
// reshaped around this module's Go packages rather than ported line for
// line (the original's SMP-fairness demo in main() is a teaching toy
// specific to the C build, not a contract this spec asks for).
package main

import (
	"rvkernel/internal/bitmap"
	"rvkernel/internal/blockdev"
	"rvkernel/internal/buf"
	"rvkernel/internal/console"
	"rvkernel/internal/initcode"
	"rvkernel/internal/kpanic"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/mmap"
	"rvkernel/internal/physmem"
	"rvkernel/internal/plic"
	"rvkernel/internal/pmem"
	"rvkernel/internal/proc"
	"rvkernel/internal/riscv"
	"rvkernel/internal/syscall"
	"rvkernel/internal/timer"
	"rvkernel/internal/trap"
	"rvkernel/internal/uvm"
	"rvkernel/internal/vmem"
)

// physMemSize is a placeholder physical RAM size for boot images that
// don't describe their own memory map elsewhere; real boards pass the
// size the bootloader reports instead.
const physMemSize = 128 * 1024 * 1024

// mmapNodeCapacity bounds the system-wide count of outstanding mmap
// interval nodes (internal/mmap.NodePool), sized generously against
// NPROC processes each holding a handful of split intervals.
const mmapNodeCapacity = memlayout.NPROC * 64

// kernel holds every subsystem handle hart 0 assembles at boot. Other
// harts only need the process table and trap plane, both shared.
type kernel struct {
	ram     *physmem.RAM
	frames  *pmem.Manager
	engine  *vmem.Engine
	procs   *proc.Table
	clock   *timer.Timer
	cache   *buf.Cache
	bitmaps *bitmap.Allocator
	trapPlane *trap.Plane
}

var k *kernel

// bootHartZero performs the one-time, single-hart portion of boot: it
// runs once, before any other hart leaves M-mode, per spec.md §9's note
// that global singletons are "initialized-once handles... mutator is an
// init() called exactly once before hart zero leaves boot."
func bootHartZero(dev blockdev.Device, sb bitmap.Superblock) *kernel {
	ram := physmem.New(0x8000_0000, physMemSize)
	frames := pmem.NewManager(ram, ram.Base)
	engine := vmem.NewEngine(ram, frames)

	kernelRoot := frames.Alloc(true)
	identityMapKernel(engine, kernelRoot.Addr, ram)

	mmapPool := mmap.NewNodePool(mmapNodeCapacity)
	procs := proc.NewTable(frames, engine, mmapPool, kernelRoot.Addr)

	clock := timer.New()
	cache := buf.New(dev, procs)
	bitmaps := bitmap.New(cache, sb)

	heap := uvm.New(engine, frames)
	dispatcher := syscall.New(procs, engine, cache, bitmaps, clock, heap)
	controller := plic.None{}
	trapPlane := trap.New(procs, dispatcher, clock, controller)

	procs.MakeFirst(initcode.Bytes)

	return &kernel{
		ram: ram, frames: frames, engine: engine, procs: procs,
		clock: clock, cache: cache, bitmaps: bitmaps, trapPlane: trapPlane,
	}
}

// identityMapKernel maps the kernel's own image and RAM direct-map range
// R|W|X into kernelRoot so S-mode code keeps running at the same
// addresses once paging turns on, mirroring kvm_init's direct-map
// installation (original_source/kernel/mem/kvm.c, summarized in spec.md
// §2's "init of... kernel page table").
func identityMapKernel(engine *vmem.Engine, kernelRoot uint64, ram *physmem.RAM) {
	engine.Map(kernelRoot, ram.Base, ram.Base, ram.Size(), vmem.FlagR|vmem.FlagW|vmem.FlagX)
}

// enterHart is every hart's S-mode entry point after the M-mode stub
// (start.S equivalent) has delegated exceptions/interrupts and written
// tp := hart id. Hart 0 assembles the kernel singletons; every hart
// installs the kernel page table, initializes its trap vector, and
// enters the scheduler. Grounded on boot/main.c's cpuid dispatch, minus
// its SMP-fairness demo which is specific to the C teaching build.
func enterHart(dev blockdev.Device, sb bitmap.Superblock) {
	if riscv.HartID() == 0 {
		console.Puts("rvkernel: hart 0 booting\r\n")
		k = bootHartZero(dev, sb)
	} else {
		for k == nil {
			riscv.Fence()
		}
	}

	riscv.WriteSATP(makeSATP(k.frames))
	riscv.SfenceVMA()

	console.PutHex64(riscv.HartID())
	console.Puts(": entering scheduler\r\n")

	k.procs.Scheduler()
	kpanic.Fatal("scheduler returned")
}

// makeSATP returns the boot-time translation register value: bare mode
// (paging off) until the scheduler runs the first process and its own
// satp is installed at trap return (trap.Plane.UserReturn).
func makeSATP(frames *pmem.Manager) uint64 {
	_ = frames
	return 0
}

func main() {
	dev := blockdev.NewMemory(4096)
	sb := bitmap.Superblock{DataBitmapStart: 2, InodeBitmapStart: 34}
	enterHart(dev, sb)
}
