// Package buf implements the block buffeer cache of spec.md §4.7: a fixed
// N=64-entry LRU ring keyed by block number, one cache-wide spinlock for
// linkage/ref/block-number fields, and a per-buffer sleeplock for payload
// and I/O ordering. Grounded on original_source/kernel/fs/buf.c, whose
// ring is a doubly-linked list of buf_node_t pointers with an embedded
// head_buf sentinel; per spec.md §9's re-architecture note this becomes a
// fixed array of buffers plus a pair of next/prev index arrays, with the
// sentinel represented as one extra slot index rather than a distinct
// pointer type. The original's read() search loop and free-slot scan both
// carry confirmed comparison bugs (`b == head_buf` where `!=` was meant,
// and an off-by-one in the free scan); this package implements spec.md
// §4.7's authoritative description instead (SPEC_FULL.md Open Question 5).
package buf

import (
	"rvkernel/internal/blockdev"
	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/proc"
	"rvkernel/internal/sleeplock"
)

const n = memlayout.NBUF
const sentinel = n // one extra ring slot standing in for head_buf

const unusedBlock = ^uint32(0)

// Buffer is one cache slot: a block's cached payload plus the bookkeeping
// the cache and its caller need.
type Buffer struct {
	BlockNum uint32
	Ref      int
	valid    bool // true once a real block has ever been assigned
	sleep    *sleeplock.Sleeplock
	Data     [memlayout.BSIZE]byte

	idx int
}

// Cache is the fixed buffer pool and its MRU/LRU ring.
type Cache struct {
	lk      *lock.Spinlock
	buffers [n]Buffer
	next    [n + 1]int
	prev    [n + 1]int
	dev     blockdev.Device
}

// New initializes an empty cache backed by dev, with every slot linked
// into the ring behind the sentinel (all initially free), mirroring
// buf_init.
func New(dev blockdev.Device, table *proc.Table) *Cache {
	c := &Cache{lk: lock.New("buf_cache"), dev: dev}
	c.next[sentinel] = sentinel
	c.prev[sentinel] = sentinel
	for i := 0; i < n; i++ {
		// Every slot starts pointing at the sentinel so insert's unlink
		// step is a harmless no-op the first time each slot is linked.
		c.next[i] = sentinel
		c.prev[i] = sentinel
		c.buffers[i] = Buffer{BlockNum: unusedBlock, idx: i, sleep: sleeplock.New("buf", table)}
		c.insert(i, false) // all slots start at the LRU end
	}
	return c
}

// insert unconditionally unlinks slot idx from its current ring position
// and relinks it adjacent to the sentinel: headNext places it at the MRU
// end, !headNext at the LRU end.
func (c *Cache) insert(idx int, headNext bool) {
	c.next[c.prev[idx]] = c.next[idx]
	c.prev[c.next[idx]] = c.prev[idx]
	if headNext {
		c.prev[idx] = sentinel
		c.next[idx] = c.next[sentinel]
		c.prev[c.next[sentinel]] = idx
		c.next[sentinel] = idx
	} else {
		c.next[idx] = sentinel
		c.prev[idx] = c.prev[sentinel]
		c.next[c.prev[sentinel]] = idx
		c.prev[sentinel] = idx
	}
}

// Read returns the buffer for blockNum, pinned and sleeplock-held. If the
// block is already cached, its ref is bumped and it moves to MRU. Otherwise
// the LRU buffer with ref==0 is evicted (writing its old contents back
// first if it ever held a block), refilled from disk, and returned.
// Exhausting the cache (all 64 buffers pinned) is fatal.
func (c *Cache) Read(p *proc.Process, blockNum uint32) *Buffer {
	c.lk.Acquire()
	for i := c.next[sentinel]; i != sentinel; i = c.next[i] {
		b := &c.buffers[i]
		if b.valid && b.BlockNum == blockNum {
			b.Ref++
			c.insert(i, true)
			c.lk.Release()
			b.sleep.Acquire(p)
			return b
		}
	}

	victim := -1
	for i := c.prev[sentinel]; i != sentinel; i = c.prev[i] {
		if c.buffers[i].Ref == 0 {
			victim = i
			break
		}
	}
	if victim == -1 {
		kpanic.Fatal("buf: no free buffers")
	}
	b := &c.buffers[victim]
	c.insert(victim, true)
	c.lk.Release()

	b.sleep.Acquire(p)
	if b.valid {
		c.dev.WriteBlock(b.BlockNum, b.Data[:])
	}
	b.BlockNum = blockNum
	b.valid = true
	c.lk.Acquire()
	b.Ref = 1
	c.lk.Release()
	c.dev.ReadBlock(blockNum, b.Data[:])
	return b
}

// Write issues a synchronous write of b's payload to disk. Caller must
// hold b's sleeplock.
func (c *Cache) Write(p *proc.Process, b *Buffer) {
	if !b.sleep.Holding(p) {
		kpanic.Fatal("buf: write without sleeplock")
	}
	c.dev.WriteBlock(b.BlockNum, b.Data[:])
}

// Release releases b's sleeplock, decrements its ref under the cache lock,
// and moves it to the LRU end once its ref reaches zero.
func (c *Cache) Release(p *proc.Process, b *Buffer) {
	if !b.sleep.Holding(p) {
		kpanic.Fatal("buf: release without sleeplock")
	}
	b.sleep.Release(p)

	c.lk.Acquire()
	b.Ref--
	if b.Ref == 0 {
		c.insert(b.idx, false)
	}
	c.lk.Release()
}
