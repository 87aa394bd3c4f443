// Package pmem implements the two-pool physical frame allocator of
// spec.md §4.2/§3: a kernel pool (the first 1024 allocatable frames) and a
// user pool (the remainder), each LIFO over its own free list. Grounded on
// original_source/kernel/mem/pmem.c's alloc_region_t/freerange, with the
// free list's embedded-node-in-frame representation replaced by a plain
// slice of frame addresses per spec.md §9's re-architecture note (pools are
// arrays of slots; clients only ever see a handle, never a raw pointer
// threaded through freed memory).
package pmem

import (
	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/physmem"
)

// Frame is an opaque handle to an allocated physical frame: its physical
// address, wrapped so callers cannot construct one out of thin air.
type Frame struct {
	Addr uint64
}

// pool is one of the two disjoint frame ranges.
type pool struct {
	name      string
	begin, end uint64
	lk        *lock.Spinlock
	free      []uint64 // LIFO stack of free frame addresses
	allocated int
}

// Manager owns both frame pools over a shared physical RAM window.
type Manager struct {
	ram          *physmem.RAM
	kernel, user pool
}

// NewManager creates a Manager over ram, splitting it at KernelFrames
// frames as spec.md §3 requires (kernel region = first 1024 frames of
// allocatable memory, user region = remainder). The caller must have
// already reserved [ram.Base, allocBegin) for the kernel image itself;
// allocBegin is the first address eligible for pool freerange.
func NewManager(ram *physmem.RAM, allocBegin uint64) *Manager {
	kernelBytes := uint64(memlayout.KernelFrames) * memlayout.PGSIZE
	kernelEnd := allocBegin + kernelBytes
	m := &Manager{
		ram: ram,
		kernel: pool{
			name:  "kmem",
			begin: allocBegin,
			end:   kernelEnd,
			lk:    lock.New("kmem"),
		},
		user: pool{
			name:  "umem",
			begin: kernelEnd,
			end:   ram.End(),
			lk:    lock.New("umem"),
		},
	}
	m.freerange(&m.kernel)
	m.freerange(&m.user)
	return m
}

// freerange populates p's free list by freeing every page-aligned frame in
// [p.begin, p.end), mirroring original_source/kernel/mem/pmem.c's freerange.
func (m *Manager) freerange(p *pool) {
	for addr := memlayout.PgRoundUp(p.begin); addr+memlayout.PGSIZE <= p.end; addr += memlayout.PGSIZE {
		p.free = append(p.free, addr)
	}
}

func (m *Manager) poolFor(inKernel bool) *pool {
	if inKernel {
		return &m.kernel
	}
	return &m.user
}

// Alloc pops a frame from the requested pool, zeroes it, and returns its
// handle. Out-of-memory is fatal (spec.md §4.2).
func (m *Manager) Alloc(inKernel bool) Frame {
	p := m.poolFor(inKernel)
	p.lk.Acquire()
	defer p.lk.Release()

	n := len(p.free)
	if n == 0 {
		kpanic.Fatal("pmem: " + p.name + " out of memory")
	}
	addr := p.free[n-1]
	p.free = p.free[:n-1]
	p.allocated++
	m.ram.Zero(addr, memlayout.PGSIZE)
	return Frame{Addr: addr}
}

// Free validates f's range and alignment, zeroes it, and pushes it back
// onto the owning pool's free list.
func (m *Manager) Free(f Frame, inKernel bool) {
	p := m.poolFor(inKernel)
	if f.Addr%memlayout.PGSIZE != 0 || f.Addr < p.begin || f.Addr+memlayout.PGSIZE > p.end {
		kpanic.Fatal("pmem: free of invalid frame in " + p.name)
	}
	p.lk.Acquire()
	defer p.lk.Release()

	m.ram.Zero(f.Addr, memlayout.PGSIZE)
	p.free = append(p.free, f.Addr)
	p.allocated--
}

// RAM returns the physical memory window the pools are carved from, so
// other subsystems (the page-table engine) can read/write frame contents.
func (m *Manager) RAM() *physmem.RAM { return m.ram }

// Stats reports free/allocated frame counts for diagnostics and tests.
func (m *Manager) Stats(inKernel bool) (free, allocated int) {
	p := m.poolFor(inKernel)
	p.lk.Acquire()
	defer p.lk.Release()
	return len(p.free), p.allocated
}
