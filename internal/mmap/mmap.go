// Package mmap implements the per-process sparse virtual-region allocator
// of spec.md §4.4: each process keeps a sorted, non-overlapping,
// non-adjacent list of free virtual intervals inside
// [MMAP_BEGIN, MMAP_END), drawn from a shared capacity of interval nodes.
// Grounded on original_source/kernel/mem/mmap.c, whose node pool is a
// singly-linked free list of array-embedded nodes; per spec.md §9's
// re-architecture note this becomes a plain sorted Go slice per process
// plus a shared counting pool that tracks how many nodes are outstanding
// system-wide, so "allocation failure is fatal" (the pool-exhaustion
// invariant) is preserved without embedding raw next-pointers in memory
// that could alias.
package mmap

import (
	"sort"

	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
)

// Interval is one contiguous free virtual-address range: [Begin, Begin+NPages*PGSIZE).
type Interval struct {
	Begin  uint64
	NPages uint64
}

func (iv Interval) end() uint64 { return iv.Begin + iv.NPages*memlayout.PGSIZE }

// NodePool is the shared capacity of interval nodes every process's free
// list draws from. Exhaustion is fatal (spec.md §3: "Allocation failure is
// fatal").
type NodePool struct {
	lk       *lock.Spinlock
	capacity int
	used     int
}

// NewNodePool returns a pool with room for capacity outstanding interval
// nodes across every process in the system.
func NewNodePool(capacity int) *NodePool {
	return &NodePool{lk: lock.New("mmap_pool"), capacity: capacity}
}

func (p *NodePool) take(n int) {
	p.lk.Acquire()
	defer p.lk.Release()
	if p.used+n > p.capacity {
		kpanic.Fatal("mmap: node pool exhausted")
	}
	p.used += n
}

func (p *NodePool) give(n int) {
	p.lk.Acquire()
	defer p.lk.Release()
	p.used -= n
}

// FreeList is one process's sorted list of free virtual intervals.
type FreeList struct {
	pool      *NodePool
	intervals []Interval
}

// NewFreeList returns a free list initialized to a single node covering the
// whole mmap window [MMAP_BEGIN, MMAP_END), consuming one node from pool.
func NewFreeList(pool *NodePool) *FreeList {
	pool.take(1)
	return &FreeList{
		pool: pool,
		intervals: []Interval{{
			Begin:  memlayout.MMAPBEGIN,
			NPages: (memlayout.MMAPEND - memlayout.MMAPBEGIN) / memlayout.PGSIZE,
		}},
	}
}

// Release returns fl's nodes to its pool. Called when a process exits.
func (fl *FreeList) Release() {
	fl.pool.give(len(fl.intervals))
	fl.intervals = nil
}

// Snapshot returns a copy of the current free-interval list, for tests.
func (fl *FreeList) Snapshot() []Interval {
	out := make([]Interval, len(fl.intervals))
	copy(out, fl.intervals)
	return out
}

// Reserve finds a free interval that can satisfy npages starting at begin
// (or, if begin==0, the first interval large enough, first-fit), reshapes
// the list by the appropriate one of the four canonical cases — cut
// prefix, cut suffix, split in the middle, or consume the whole interval —
// and returns the actual start address. ok is false if no interval can
// satisfy the request (spec.md §4.4, §8: "mmap(0,len) with list exhausted
// returns -1").
func (fl *FreeList) Reserve(begin, npages uint64) (actual uint64, ok bool) {
	length := npages * memlayout.PGSIZE

	idx := -1
	if begin == 0 {
		for i, iv := range fl.intervals {
			if iv.NPages >= npages {
				idx = i
				begin = iv.Begin
				break
			}
		}
	} else {
		if begin%memlayout.PGSIZE != 0 {
			return 0, false
		}
		for i, iv := range fl.intervals {
			if iv.Begin <= begin && begin+length <= iv.end() {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return 0, false
	}

	iv := fl.intervals[idx]
	switch {
	case begin == iv.Begin && length == iv.NPages*memlayout.PGSIZE:
		// Whole interval consumed: remove its node.
		fl.intervals = append(fl.intervals[:idx], fl.intervals[idx+1:]...)
		fl.pool.give(1)
	case begin == iv.Begin:
		// Cut prefix: shrink from the front.
		fl.intervals[idx] = Interval{Begin: begin + length, NPages: iv.NPages - npages}
	case begin+length == iv.end():
		// Cut suffix: shrink from the back.
		fl.intervals[idx] = Interval{Begin: iv.Begin, NPages: iv.NPages - npages}
	default:
		// Split in the middle: two surviving fragments, one new node.
		fl.pool.take(1)
		left := Interval{Begin: iv.Begin, NPages: (begin - iv.Begin) / memlayout.PGSIZE}
		right := Interval{Begin: begin + length, NPages: (iv.end() - (begin + length)) / memlayout.PGSIZE}
		fl.intervals[idx] = left
		fl.intervals = append(fl.intervals, Interval{})
		copy(fl.intervals[idx+2:], fl.intervals[idx+1:])
		fl.intervals[idx+1] = right
	}
	return begin, true
}

// Insert returns [begin, begin+npages*PGSIZE) to the free list, coalescing
// with the left and/or right neighbours when they become adjacent
// (spec.md §4.4, re-derived per the four canonical cases in spec.md §9 —
// no neighbour, left only, right only, both — rather than the original's
// confirmed-buggy loop). Inserting a range that overlaps an already-free
// interval is a double-free and fatal (spec.md §8 boundary case).
func (fl *FreeList) Insert(begin, npages uint64) {
	niv := Interval{Begin: begin, NPages: npages}

	i := sort.Search(len(fl.intervals), func(i int) bool { return fl.intervals[i].Begin >= begin })

	if i < len(fl.intervals) && fl.intervals[i].Begin < niv.end() {
		kpanic.Fatal("mmap: munmap of already-free interval")
	}
	if i > 0 && fl.intervals[i-1].end() > niv.Begin {
		kpanic.Fatal("mmap: munmap of already-free interval")
	}

	leftAdj := i > 0 && fl.intervals[i-1].end() == niv.Begin
	rightAdj := i < len(fl.intervals) && niv.end() == fl.intervals[i].Begin

	switch {
	case leftAdj && rightAdj:
		// Both neighbours merge into one: net one fewer node.
		merged := Interval{
			Begin:  fl.intervals[i-1].Begin,
			NPages: fl.intervals[i-1].NPages + niv.NPages + fl.intervals[i].NPages,
		}
		fl.intervals[i-1] = merged
		fl.intervals = append(fl.intervals[:i], fl.intervals[i+1:]...)
		fl.pool.give(1)
	case leftAdj:
		fl.intervals[i-1].NPages += niv.NPages
	case rightAdj:
		fl.intervals[i].Begin = niv.Begin
		fl.intervals[i].NPages += niv.NPages
	default:
		fl.pool.take(1)
		fl.intervals = append(fl.intervals, Interval{})
		copy(fl.intervals[i+1:], fl.intervals[i:])
		fl.intervals[i] = niv
	}
}
