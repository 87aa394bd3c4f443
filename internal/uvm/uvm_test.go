package uvm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/memlayout"
	"rvkernel/internal/testhw"
	"rvkernel/internal/uvm"
)

func init() {
	testhw.Install()
}

func newManager(t *testing.T) (*uvm.Manager, *testhw.Kernel) {
	t.Helper()
	k := testhw.NewKernel()
	return uvm.New(k.Engine, k.Frames), k
}

func TestGrowMapsFreshPages(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()
	base := p.HeapTop

	newTop, ok := m.Grow(p, base+2*memlayout.PGSIZE)
	require.True(t, ok)
	require.Equal(t, base+2*memlayout.PGSIZE, newTop)

	pa, mapped := k.Engine.GetPhysicalAddress(p.Pagetable, memlayout.PgRoundDown(base))
	require.True(t, mapped)
	require.NotZero(t, pa)
}

func TestGrowPastCeilingFails(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()

	_, ok := m.Grow(p, memlayout.TRAPFRAME+memlayout.PGSIZE)
	require.False(t, ok)
}

func TestUngrowUnmapsFreedPages(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()
	base := memlayout.PgRoundUp(p.HeapTop)

	newTop, ok := m.Grow(p, base+3*memlayout.PGSIZE)
	require.True(t, ok)
	p.HeapTop = newTop

	m.Ungrow(p, base+memlayout.PGSIZE)

	_, mapped := k.Engine.GetPhysicalAddress(p.Pagetable, base+2*memlayout.PGSIZE)
	require.False(t, mapped)
}

func TestMmapThenMunmapRoundTrips(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()

	va, ok := m.Mmap(p, 0, 2)
	require.True(t, ok)

	pa, mapped := k.Engine.GetPhysicalAddress(p.Pagetable, va)
	require.True(t, mapped)
	require.NotZero(t, pa)

	require.True(t, m.Munmap(p, va, 2))
	_, mapped = k.Engine.GetPhysicalAddress(p.Pagetable, va)
	require.False(t, mapped)
}

func TestMunmapMisalignedBeginFails(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()

	va, ok := m.Mmap(p, 0, 1)
	require.True(t, ok)

	require.False(t, m.Munmap(p, va+1, 1))
}

func TestMmapAtExplicitBeginReservesThatAddress(t *testing.T) {
	m, k := newManager(t)
	p := k.MakeFirstProcess()

	first, ok := m.Mmap(p, 0, 1)
	require.True(t, ok)

	second, ok := m.Mmap(p, first+memlayout.PGSIZE, 1)
	require.True(t, ok)
	require.Equal(t, first+memlayout.PGSIZE, second)
}
