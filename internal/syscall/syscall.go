// Package syscall implements the thin syscall dispatch table of spec.md §6:
// fourteen stable-numbered calls whose arguments arrive via the trapframe
// (a0..a5) and whose result is placed in a0. Grounded on
// original_source/kernel/syscall/sysfunc.c and
// include/syscall/sysfunc.h, with the C original's raw buf_t* "buffer
// handle" replaced by an opaque integer handle into a table owned by this
// package — an "opaque buffer handle" (spec.md §6) rather than a raw
// pointer.
package syscall

import (
	"rvkernel/internal/bitmap"
	"rvkernel/internal/buf"
	"rvkernel/internal/console"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/proc"
	"rvkernel/internal/timer"
	"rvkernel/internal/vmem"
)

// Numbers, stable per spec.md §6.
const (
	SysPrint = iota
	SysBrk
	SysMmap
	SysMunmap
	SysFork
	SysWait
	SysExit
	SysSleep
	SysAllocBlock
	SysFreeBlock
	SysReadBlock
	SysWriteBlock
	SysReleaseBlock
	SysShowBuf
)

// Dispatcher owns everything a syscall body needs to reach into the rest
// of the kernel.
type Dispatcher struct {
	procs   *proc.Table
	engine  *vmem.Engine
	cache   *buf.Cache
	bitmaps *bitmap.Allocator
	clock   *timer.Timer
	heap    heapGrower

	handleLk   *lock.Spinlock
	handles    map[uint64]*buf.Buffer
	nextHandle uint64
}

// heapGrower is the mmap/heap surface a Dispatcher needs; implemented by
// internal/uvm.Manager (kept as an interface here so this package does not
// need to depend on internal/uvm or internal/mmap directly).
type heapGrower interface {
	Grow(p *proc.Process, newTop uint64) (uint64, bool)
	Ungrow(p *proc.Process, newTop uint64) uint64
	Mmap(p *proc.Process, start uint64, npages uint64) (uint64, bool)
	Munmap(p *proc.Process, start uint64, npages uint64) bool
}

// New returns a Dispatcher wired to the given subsystems.
func New(procs *proc.Table, engine *vmem.Engine, cache *buf.Cache, bitmaps *bitmap.Allocator, clock *timer.Timer, heap heapGrower) *Dispatcher {
	return &Dispatcher{
		procs: procs, engine: engine, cache: cache, bitmaps: bitmaps, clock: clock, heap: heap,
		handleLk: lock.New("buf_handles"),
		handles:  make(map[uint64]*buf.Buffer),
	}
}

func (d *Dispatcher) putHandle(b *buf.Buffer) uint64 {
	d.handleLk.Acquire()
	defer d.handleLk.Release()
	d.nextHandle++
	h := d.nextHandle
	d.handles[h] = b
	return h
}

func (d *Dispatcher) takeHandle(h uint64) *buf.Buffer {
	d.handleLk.Acquire()
	defer d.handleLk.Release()
	return d.handles[h]
}

func (d *Dispatcher) dropHandle(h uint64) {
	d.handleLk.Acquire()
	defer d.handleLk.Release()
	delete(d.handles, h)
}

// Args is the subset of the trapframe a syscall body reads arguments from
// (spec.md §6: "Arguments are read via the trapframe (a0..a5)").
type Args struct {
	A0, A1, A2, A3, A4, A5 uint64
}

// Dispatch runs syscall number num for process p with args, returning the
// value to place in a0.
func (d *Dispatcher) Dispatch(p *proc.Process, num int, args Args) int64 {
	switch num {
	case SysPrint:
		return d.sysPrint(p, args)
	case SysBrk:
		return d.sysBrk(p, args)
	case SysMmap:
		return d.sysMmap(p, args)
	case SysMunmap:
		return d.sysMunmap(p, args)
	case SysFork:
		return int64(d.procs.Fork(p))
	case SysWait:
		return int64(d.procs.Wait(p, args.A0))
	case SysExit:
		d.procs.Exit(p, int(int64(args.A0)))
		return 0 // unreachable: Exit never returns
	case SysSleep:
		return d.sysSleep(p, args)
	case SysAllocBlock:
		return int64(d.bitmaps.AllocBlock(p))
	case SysFreeBlock:
		d.bitmaps.FreeBlock(p, uint32(args.A0))
		return 0
	case SysReadBlock:
		return d.sysReadBlock(p, args)
	case SysWriteBlock:
		return d.sysWriteBlock(p, args)
	case SysReleaseBlock:
		d.cache.Release(p, d.takeHandle(args.A0))
		d.dropHandle(args.A0)
		return 0
	case SysShowBuf:
		return d.sysShowBuf(p)
	default:
		return -1
	}
}

func (d *Dispatcher) sysPrint(p *proc.Process, args Args) int64 {
	var buf [30]byte
	n := d.engine.CopyInStr(p.Pagetable, buf[:], args.A0)
	console.Puts(string(buf[:n]))
	return 0
}

func (d *Dispatcher) sysBrk(p *proc.Process, args Args) int64 {
	newTop := args.A0
	if newTop == 0 {
		return int64(p.HeapTop)
	}
	if newTop > p.HeapTop {
		top, ok := d.heap.Grow(p, newTop)
		if !ok {
			return -1
		}
		p.HeapTop = top
		return int64(top)
	}
	p.HeapTop = d.heap.Ungrow(p, newTop)
	return int64(p.HeapTop)
}

func (d *Dispatcher) sysMmap(p *proc.Process, args Args) int64 {
	start := args.A0
	length := args.A1
	if length%memlayout.PGSIZE != 0 {
		return -1
	}
	npages := length / memlayout.PGSIZE
	got, ok := d.heap.Mmap(p, start, npages)
	if !ok {
		return -1
	}
	return int64(got)
}

func (d *Dispatcher) sysMunmap(p *proc.Process, args Args) int64 {
	length := args.A1
	if length%memlayout.PGSIZE != 0 {
		return -1
	}
	if !d.heap.Munmap(p, args.A0, length/memlayout.PGSIZE) {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysSleep(p *proc.Process, args Args) int64 {
	seconds := uint64(uint32(args.A0))
	lk := d.clock.Lock()
	lk.Acquire()
	start := d.clock.TicksLocked()
	for d.clock.TicksLocked()-start < seconds {
		d.procs.Sleep(p, d.clock.Channel(), lk)
	}
	lk.Release()
	return 0
}

// sysShowBuf backs the show_buf diagnostics syscall, wiring
// bitmap.Allocator's Dump supplement (SPEC_FULL.md §5) to the console
// instead of leaving it unreachable in production.
func (d *Dispatcher) sysShowBuf(p *proc.Process) int64 {
	d.bitmaps.Dump(p, d.bitmaps.DataBitmapBlock(), func(bit uint32) {
		console.PutHex64(uint64(bit))
		console.Puts("\r\n")
	})
	return 0
}

func (d *Dispatcher) sysReadBlock(p *proc.Process, args Args) int64 {
	blockNum := uint32(args.A0)
	addr := args.A1
	b := d.cache.Read(p, blockNum)
	d.engine.CopyOut(p.Pagetable, addr, b.Data[:])
	return int64(d.putHandle(b))
}

func (d *Dispatcher) sysWriteBlock(p *proc.Process, args Args) int64 {
	b := d.takeHandle(args.A0)
	d.engine.CopyIn(p.Pagetable, b.Data[:], args.A1)
	d.cache.Write(p, b)
	return 0
}
