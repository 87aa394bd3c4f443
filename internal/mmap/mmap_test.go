package mmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/memlayout"
	"rvkernel/internal/mmap"
	"rvkernel/internal/testhw"
)

func init() {
	testhw.Install()
}

func wholeRegionPages() uint64 {
	return (memlayout.MMAPEND - memlayout.MMAPBEGIN) / memlayout.PGSIZE
}

func TestNewFreeListCoversWholeRegion(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)
	snap := fl.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, uint64(memlayout.MMAPBEGIN), snap[0].Begin)
	require.Equal(t, wholeRegionPages(), snap[0].NPages)
}

func TestReserveFirstFitConsumesPrefix(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)

	actual, ok := fl.Reserve(0, 4)
	require.True(t, ok)
	require.Equal(t, uint64(memlayout.MMAPBEGIN), actual)

	snap := fl.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, uint64(memlayout.MMAPBEGIN)+4*memlayout.PGSIZE, snap[0].Begin)
	require.Equal(t, wholeRegionPages()-4, snap[0].NPages)
}

func TestReserveWholeIntervalRemovesNode(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)

	total := wholeRegionPages()
	_, ok := fl.Reserve(0, total)
	require.True(t, ok)
	require.Empty(t, fl.Snapshot())
}

func TestReserveMiddleSplitsIntoTwo(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)

	begin := uint64(memlayout.MMAPBEGIN) + 4*memlayout.PGSIZE
	actual, ok := fl.Reserve(begin, 2)
	require.True(t, ok)
	require.Equal(t, begin, actual)

	snap := fl.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, uint64(memlayout.MMAPBEGIN), snap[0].Begin)
	require.Equal(t, uint64(4), snap[0].NPages)
	require.Equal(t, begin+2*memlayout.PGSIZE, snap[1].Begin)
}

func TestReserveTooLargeFails(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)
	_, ok := fl.Reserve(0, wholeRegionPages()+1)
	require.False(t, ok)
}

func TestInsertCoalescesBothNeighbours(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)

	begin := uint64(memlayout.MMAPBEGIN) + 4*memlayout.PGSIZE
	fl.Reserve(begin, 2)
	require.Len(t, fl.Snapshot(), 2)

	fl.Insert(begin, 2)
	snap := fl.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, uint64(memlayout.MMAPBEGIN), snap[0].Begin)
	require.Equal(t, wholeRegionPages(), snap[0].NPages)
}

func TestInsertOfAlreadyFreeRangeIsFatal(t *testing.T) {
	pool := mmap.NewNodePool(8)
	fl := mmap.NewFreeList(pool)
	require.True(t, testhw.ExpectFatal(t, func() {
		fl.Insert(memlayout.MMAPBEGIN, 1)
	}))
}

func TestNodePoolExhaustionIsFatal(t *testing.T) {
	pool := mmap.NewNodePool(1)
	fl := mmap.NewFreeList(pool)

	begin := uint64(memlayout.MMAPBEGIN) + 4*memlayout.PGSIZE
	require.True(t, testhw.ExpectFatal(t, func() {
		fl.Reserve(begin, 2)
	}))
}
