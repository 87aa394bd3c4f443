// Package proc implements the fixed process table, context-switch
// discipline, scheduler, and fork/exit/wait/sleep/wakeup of spec.md §4.5.
// Grounded on original_source/kernel/proc/proc.c, with the cyclic
// process-parent reference replaced by a table index and a null sentinel
// per spec.md §9's re-architecture note, and embedded trapframe/context
// pointers replaced by explicit fields owned by the table rather than
// threaded through raw pointers.
package proc

import (
	"unsafe"

	"rvkernel/internal/cpu"
	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/mmap"
	"rvkernel/internal/pmem"
	"rvkernel/internal/riscv"
	"rvkernel/internal/vmem"
)

// State is a process's position in its lifecycle state machine.
type State int

const (
	Unused State = iota
	Runnable
	Running
	Sleeping
	Zombie
)

// noParent marks a process with no parent (only pid 1, transiently, before
// it is ever assigned a parent).
const noParent = -1

// Process is one process-table slot. Transitions to State happen only
// under Lock (spec.md §3).
type Process struct {
	Lock *lock.Spinlock

	Pid        int
	State      State
	Parent     int // index into the owning Table, or noParent
	KstackVA   uint64
	Pagetable  uint64 // physical address of the user page-table root
	Trapframe  *riscv.Trapframe
	Context    riscv.Context
	HeapTop    uint64
	UstackPages uint64
	Mmap       *mmap.FreeList
	ExitCode   int
	Chan       unsafe.Pointer // sleep channel; nil unless Sleeping

	slot int // this process's own table index, for Parent bookkeeping
}

// Table is the fixed NPROC-slot process table plus everything fork/exit
// need from the rest of the kernel: the frame allocator, the page-table
// engine, the mmap node pool, and the kernel page table root.
type Table struct {
	procs      [memlayout.NPROC]Process
	pidLk      *lock.Spinlock
	nextPid    int
	procZero   int // slot index of pid 1, or -1 before proc_make_first

	frames     *pmem.Manager
	engine     *vmem.Engine
	mmapPool   *mmap.NodePool
	kernelRoot uint64
}

// NewTable initializes the process table: every slot's lock, a dedicated
// kernel stack frame mapped at that slot's KstackVA in the kernel page
// table, and state UNUSED. Grounded on proc_init's kstack-mapping loop.
func NewTable(frames *pmem.Manager, engine *vmem.Engine, mmapPool *mmap.NodePool, kernelRoot uint64) *Table {
	t := &Table{
		pidLk:      lock.New("pid"),
		nextPid:    1,
		procZero:   -1,
		frames:     frames,
		engine:     engine,
		mmapPool:   mmapPool,
		kernelRoot: kernelRoot,
	}
	for i := range t.procs {
		p := &t.procs[i]
		p.slot = i
		p.Lock = lock.New("proc")
		kstack := memlayout.KstackVA(i)
		frame := frames.Alloc(true)
		engine.Map(kernelRoot, kstack, frame.Addr, memlayout.PGSIZE, vmem.FlagR|vmem.FlagW)
		p.KstackVA = kstack
		p.State = Unused
		p.Parent = noParent
	}
	return t
}

func (t *Table) allocPid() int {
	t.pidLk.Acquire()
	defer t.pidLk.Release()
	if t.nextPid < 0 {
		kpanic.Fatal("proc: pid overflow")
	}
	pid := t.nextPid
	t.nextPid++
	return pid
}

// pgtblInit returns a fresh user page-table root with the trampoline and
// trapframe pre-mapped, per proc_pgtbl_init.
func (t *Table) pgtblInit(trapframePA uint64) uint64 {
	root := t.frames.Alloc(true)
	t.engine.Map(root.Addr, memlayout.TRAMPOLINE, uint64(riscv.TrampolineUserReturn), memlayout.PGSIZE, vmem.FlagR|vmem.FlagX)
	t.engine.Map(root.Addr, memlayout.TRAPFRAME, trapframePA, memlayout.PGSIZE, vmem.FlagR|vmem.FlagW)
	return root.Addr
}

// alloc scans for an UNUSED slot, initializes it, and returns it with its
// lock still held, per proc_alloc. Returns nil if the table is full.
func (t *Table) alloc() *Process {
	for i := range t.procs {
		p := &t.procs[i]
		p.Lock.Acquire()
		if p.State != Unused {
			p.Lock.Release()
			continue
		}
		p.Pid = t.allocPid()
		tfFrame := t.frames.Alloc(false)
		p.Trapframe = new(riscv.Trapframe)
		p.Pagetable = t.pgtblInit(tfFrame.Addr)
		p.Context = riscv.Context{}
		p.Context.SP = p.KstackVA + memlayout.PGSIZE
		p.HeapTop = 0
		p.UstackPages = 0
		p.ExitCode = 0
		p.Parent = noParent
		return p
	}
	return nil
}

// free releases p's resources and returns it to UNUSED. Caller must hold
// p.Lock (proc_free's contract).
func (t *Table) free(p *Process) {
	if p.Pagetable != 0 {
		// TRAMPOLINE maps a frame shared across every process (not owned
		// by the user pool) and TRAPFRAME's frame is reclaimed
		// separately; both mappings must come out before Destroy walks
		// and frees the remaining user leaves, or Destroy would try to
		// free the shared trampoline frame through pmem (proc_freepagetable).
		// Destroy leaves the root table itself, which goes back to the
		// kernel pool last.
		tfPA, _ := t.engine.GetPhysicalAddress(p.Pagetable, memlayout.TRAPFRAME)
		t.engine.Unmap(p.Pagetable, memlayout.TRAMPOLINE, memlayout.PGSIZE, false)
		t.engine.Unmap(p.Pagetable, memlayout.TRAPFRAME, memlayout.PGSIZE, false)
		t.frames.Free(pmem.Frame{Addr: tfPA}, false)
		t.engine.Destroy(p.Pagetable)
		t.frames.Free(pmem.Frame{Addr: p.Pagetable}, true)
	}
	if p.Mmap != nil {
		p.Mmap.Release()
	}
	p.Trapframe = nil
	p.Pagetable = 0
	p.Pid = 0
	p.Parent = noParent
	p.Mmap = nil
	p.ExitCode = 0
	p.State = Unused
}

// MakeFirst creates pid 1: maps one ustack page and one code+data page,
// copies initcode into it, sets heap top, allocates the full-region mmap
// interval, points the trapframe at USER_BASE/TRAPFRAME, and marks it
// RUNNABLE. Grounded on proc_make_first.
func (t *Table) MakeFirst(initcode []byte) {
	p := t.alloc()
	if p == nil {
		kpanic.Fatal("proc: make_first: table full")
	}

	ustack := t.frames.Alloc(false)
	t.engine.Map(p.Pagetable, memlayout.TRAPFRAME-memlayout.PGSIZE, ustack.Addr, memlayout.PGSIZE, vmem.FlagR|vmem.FlagW|vmem.FlagU)
	p.UstackPages = 1

	if len(initcode) > memlayout.PGSIZE {
		kpanic.Fatal("proc: make_first: initcode too big")
	}
	code := t.frames.Alloc(false)
	t.engine.Map(p.Pagetable, memlayout.USERBASE, code.Addr, memlayout.PGSIZE, vmem.FlagR|vmem.FlagW|vmem.FlagX|vmem.FlagU)
	t.frames.RAM().WriteAt(code.Addr, initcode)

	p.HeapTop = memlayout.USERBASE + memlayout.PGSIZE
	p.Mmap = mmap.NewFreeList(t.mmapPool)

	p.Trapframe.EPC = memlayout.USERBASE
	p.Trapframe.SP = memlayout.TRAPFRAME

	c := cpu.Mycpu()
	c.Current = p

	p.State = Runnable
	t.procZero = p.slot
	p.Lock.Release()
}

func (t *Table) procZeroProc() *Process {
	if t.procZero < 0 {
		kpanic.Fatal("proc: proczero not yet created")
	}
	return &t.procs[t.procZero]
}

// Myproc returns the process currently running on this hart, or nil.
func (t *Table) Myproc() *Process {
	lock.PushOff()
	defer lock.PopOff()
	c := cpu.Mycpu()
	if c.Current == nil {
		return nil
	}
	return c.Current.(*Process)
}

// Fork allocates a child slot, copies heap top, installs a fresh
// full-region mmap free list (see the binding Open Question decision in
// SPEC_FULL.md: the child's list is NOT inherited from the parent), copies
// the parent's mapped pages, duplicates the trapframe with a zeroed return
// value, marks the child RUNNABLE, and returns its pid to the parent.
// Grounded on proc_fork.
func (t *Table) Fork(p *Process) int {
	child := t.alloc()
	if child == nil {
		kpanic.Fatal("proc: fork: table full")
	}

	child.HeapTop = p.HeapTop
	child.Mmap = mmap.NewFreeList(t.mmapPool)
	child.Parent = p.slot

	t.engine.CopyRange(p.Pagetable, child.Pagetable, memlayout.USERBASE, p.HeapTop-memlayout.USERBASE)
	ustackBegin := memlayout.TRAPFRAME - p.UstackPages*memlayout.PGSIZE
	t.engine.CopyRange(p.Pagetable, child.Pagetable, ustackBegin, p.UstackPages*memlayout.PGSIZE)
	t.engine.CopyRange(p.Pagetable, child.Pagetable, memlayout.MMAPBEGIN, memlayout.MMAPEND-memlayout.MMAPBEGIN)
	child.UstackPages = p.UstackPages

	*child.Trapframe = *p.Trapframe
	child.Trapframe.A0 = 0

	child.State = Runnable
	childPid := child.Pid
	child.Lock.Release()
	return childPid
}

// Yield gives up the CPU voluntarily: RUNNING -> RUNNABLE, then hands off
// to the scheduler.
func (t *Table) Yield(p *Process) {
	p.Lock.Acquire()
	p.State = Runnable
	t.sched(p)
	p.Lock.Release()
}

// sched transfers control to the per-hart scheduler loop. Caller must hold
// p.Lock, have exactly one push_off outstanding, and not be RUNNING, with
// interrupts disabled — all asserted per proc_sched.
func (t *Table) sched(p *Process) {
	if !p.Lock.Holding() {
		kpanic.Fatal("sched: p.lock")
	}
	c := cpu.Mycpu()
	if c.Noff != 1 {
		kpanic.Fatal("sched: locks")
	}
	if p.State == Running {
		kpanic.Fatal("sched: running")
	}
	if riscv.IntrGet() {
		kpanic.Fatal("sched: interruptible")
	}

	origin := c.Origin
	riscv.Swtch(&p.Context, &c.Scheduler)
	c.Origin = origin
}

// Scheduler is the per-hart scheduling loop: enable interrupts, linearly
// scan the table, run the first RUNNABLE slot found, repeat forever.
// Grounded on proc_scheduler. Never returns.
func (t *Table) Scheduler() {
	c := cpu.Mycpu()
	c.Current = nil
	for {
		riscv.IntrOn()
		for i := range t.procs {
			p := &t.procs[i]
			p.Lock.Acquire()
			if p.State == Runnable {
				p.State = Running
				c.Current = p
				riscv.Swtch(&c.Scheduler, &p.Context)
				c.Current = nil
			}
			p.Lock.Release()
		}
	}
}

// Sleep puts the calling process to sleep on chan, releasing lk (unless lk
// is p's own lock) and restoring the original locking on wake. Grounded on
// proc_sleep; forbidden pattern (fatal, per spec.md §4.1) enforcement is
// the caller's responsibility per the sleeplock contract.
func (t *Table) Sleep(p *Process, ch unsafe.Pointer, lk *lock.Spinlock) {
	if lk != p.Lock {
		p.Lock.Acquire()
		lk.Release()
	}

	p.Chan = ch
	p.State = Sleeping

	t.sched(p)

	p.Chan = nil

	if lk != p.Lock {
		p.Lock.Release()
		lk.Acquire()
	}
}

// wakeupOne flips p RUNNABLE if it is SLEEPING on ch. Caller must hold
// p.Lock.
func wakeupOne(p *Process, ch unsafe.Pointer) {
	if !p.Lock.Holding() {
		kpanic.Fatal("wakeup_one: lock")
	}
	if p.State == Sleeping && p.Chan == ch {
		p.State = Runnable
	}
}

// Wakeup wakes every process sleeping on ch.
func (t *Table) Wakeup(ch unsafe.Pointer) {
	for i := range t.procs {
		p := &t.procs[i]
		p.Lock.Acquire()
		if p.State == Sleeping && p.Chan == ch {
			p.State = Runnable
		}
		p.Lock.Release()
	}
}

// reparent hands every child of parent over to pid 1. Caller must hold
// parent.Lock.
func (t *Table) reparent(parent *Process) {
	for i := range t.procs {
		c := &t.procs[i]
		if c.Parent == parent.slot {
			c.Lock.Acquire()
			c.Parent = t.procZero
			c.Lock.Release()
		}
	}
}

// Exit tears p down: forbidden for pid 1, wakes pid 1 in case it is
// waiting, reparents children, wakes the parent, records the exit code,
// marks ZOMBIE, and hands off to the scheduler. Never returns. Grounded on
// proc_exit, preserving its precise lock-acquisition order (parent-lock
// before self-lock, to avoid inversion with Wait's own acquisition order).
func (t *Table) Exit(p *Process, exitCode int) {
	if p.slot == t.procZero {
		kpanic.Fatal("proc: pid 1 exiting")
	}

	zero := t.procZeroProc()
	zero.Lock.Acquire()
	wakeupOne(zero, unsafe.Pointer(zero))
	zero.Lock.Release()

	p.Lock.Acquire()
	parentIdx := p.Parent
	p.Lock.Release()
	parent := &t.procs[parentIdx]

	parent.Lock.Acquire()

	p.Lock.Acquire()
	t.reparent(p)
	wakeupOne(parent, unsafe.Pointer(parent))
	p.ExitCode = exitCode
	p.State = Zombie

	parent.Lock.Release()

	// p.Lock stays held across sched: the scheduler loop that first ran
	// this slot releases it once Swtch hands control back, the same
	// handoff Yield and Sleep rely on (proc_exit never releases p.Lock
	// itself).
	t.sched(p)
	kpanic.Fatal("proc: zombie process resumed after exit")
}

// Wait scans for a ZOMBIE child, copies its exit code to userAddr in p's
// address space, frees its slot, and returns its pid. Returns -1 if p has
// no children. Otherwise sleeps on p's own address and rescans. Grounded
// on proc_wait.
func (t *Table) Wait(p *Process, userAddr uint64) int {
	p.Lock.Acquire()
	defer p.Lock.Release()

	for {
		haveChild := false
		for i := range t.procs {
			child := &t.procs[i]
			if child.Parent != p.slot {
				continue
			}
			child.Lock.Acquire()
			haveChild = true
			if child.State == Zombie {
				pid := child.Pid
				exitCode := uint64(int64(child.ExitCode))
				var buf [8]byte
				buf[0] = byte(exitCode)
				buf[1] = byte(exitCode >> 8)
				buf[2] = byte(exitCode >> 16)
				buf[3] = byte(exitCode >> 24)
				buf[4] = byte(exitCode >> 32)
				buf[5] = byte(exitCode >> 40)
				buf[6] = byte(exitCode >> 48)
				buf[7] = byte(exitCode >> 56)
				t.engine.CopyOut(p.Pagetable, userAddr, buf[:])
				t.free(child)
				child.Lock.Release()
				return pid
			}
			child.Lock.Release()
		}
		if !haveChild {
			return -1
		}
		t.Sleep(p, unsafe.Pointer(p), p.Lock)
	}
}
