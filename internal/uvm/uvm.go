// Package uvm implements the per-process heap grow/ungrow and mmap/munmap
// operations of spec.md §4.4, composing internal/vmem's page-table engine
// with internal/mmap's free-interval lists and internal/pmem's frame pool.
// Grounded on original_source/kernel/mem/uvm.c's uvm_heap_grow/
// uvm_heap_ungrow/uvm_mmap/uvm_munmap, with uvm_munmap's coalesce logic
// re-derived against the four canonical cases per spec.md §9 and
// SPEC_FULL.md's Open Question 3 decision (the original's loop-termination
// bug is not reproduced).
package uvm

import (
	"rvkernel/internal/memlayout"
	"rvkernel/internal/pmem"
	"rvkernel/internal/proc"
	"rvkernel/internal/vmem"
)

// Manager implements the heap/mmap surface internal/syscall's Dispatcher
// delegates to.
type Manager struct {
	engine *vmem.Engine
	frames *pmem.Manager
}

// New returns a Manager over engine and frames.
func New(engine *vmem.Engine, frames *pmem.Manager) *Manager {
	return &Manager{engine: engine, frames: frames}
}

// heapCeiling is the highest address the heap may ever reach: one page
// below TRAPFRAME, leaving room for the user stack above it (spec.md §6).
const heapCeiling = memlayout.TRAPFRAME - memlayout.PGSIZE

// Grow extends p's heap from its current top to newTop, mapping fresh
// U|R|W frames page by page. Per SPEC_FULL.md's binding Open Question 2
// decision, growing past heapCeiling returns ok=false (a user-recoverable
// error, spec.md §7) rather than the original's panic — only
// programmer-fatal invariants halt a hart.
func (m *Manager) Grow(p *proc.Process, newTop uint64) (uint64, bool) {
	if newTop > heapCeiling {
		return p.HeapTop, false
	}
	oldTop := p.HeapTop
	for va := memlayout.PgRoundUp(oldTop); va < newTop; va += memlayout.PGSIZE {
		f := m.frames.Alloc(false)
		m.engine.Map(p.Pagetable, va, f.Addr, memlayout.PGSIZE, vmem.FlagU|vmem.FlagR|vmem.FlagW)
	}
	return newTop, true
}

// Ungrow shrinks p's heap from its current top down to newTop, unmapping
// and freeing whole pages that fall entirely out of the new heap.
func (m *Manager) Ungrow(p *proc.Process, newTop uint64) uint64 {
	oldTop := p.HeapTop
	oldPageTop := memlayout.PgRoundUp(oldTop)
	newPageTop := memlayout.PgRoundUp(newTop)
	if newPageTop < oldPageTop {
		m.engine.Unmap(p.Pagetable, newPageTop, oldPageTop-newPageTop, true)
	}
	return newTop
}

// Mmap locates the free interval containing [begin, begin+npages*PGSIZE)
// (or, if begin==0, the first interval large enough to hold npages,
// first-fit), reshapes the free list, and installs fresh U|R|W user
// frames over the reserved range.
func (m *Manager) Mmap(p *proc.Process, begin, npages uint64) (uint64, bool) {
	actual, ok := p.Mmap.Reserve(begin, npages)
	if !ok {
		return 0, false
	}
	m.mapFresh(p.Pagetable, actual, npages, vmem.FlagU|vmem.FlagR|vmem.FlagW)
	return actual, true
}

// mapFresh installs npages fresh, individually allocated user frames
// starting at virtual address va, each with perm|V. Engine.Map only
// installs a single contiguous physical range per call, and freshly
// allocated user frames are not contiguous with one another, so each page
// is mapped to its own frame individually.
func (m *Manager) mapFresh(root, va uint64, npages uint64, perm vmem.Flag) {
	for i := uint64(0); i < npages; i++ {
		f := m.frames.Alloc(false)
		m.engine.Map(root, va+i*memlayout.PGSIZE, f.Addr, memlayout.PGSIZE, perm)
	}
}

// Munmap unmaps and frees the underlying user frames for
// [begin, begin+npages*PGSIZE), then reinserts the interval into p's free
// list, coalescing with adjacent neighbours.
func (m *Manager) Munmap(p *proc.Process, begin, npages uint64) bool {
	if begin%memlayout.PGSIZE != 0 {
		return false
	}
	m.engine.Unmap(p.Pagetable, begin, npages*memlayout.PGSIZE, true)
	p.Mmap.Insert(begin, npages)
	return true
}
