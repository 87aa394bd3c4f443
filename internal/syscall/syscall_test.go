package syscall_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/bitmap"
	"rvkernel/internal/blockdev"
	"rvkernel/internal/buf"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/syscall"
	"rvkernel/internal/testhw"
	"rvkernel/internal/timer"
	"rvkernel/internal/uvm"
)

func init() {
	testhw.Install()
}

func newDispatcher(t *testing.T) (*syscall.Dispatcher, *testhw.Kernel) {
	t.Helper()
	k := testhw.NewKernel()
	dev := blockdev.NewMemory(memlayout.NBUF * 4)
	cache := buf.New(dev, k.Procs)
	sb := bitmap.Superblock{DataBitmapStart: 2, InodeBitmapStart: 34}
	bitmaps := bitmap.New(cache, sb)
	clock := timer.New()
	heap := uvm.New(k.Engine, k.Frames)
	return syscall.New(k.Procs, k.Engine, cache, bitmaps, clock, heap), k
}

func TestSysBrkGrowsThenReportsCurrentTop(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	queried := d.Dispatch(p, syscall.SysBrk, syscall.Args{A0: 0})
	require.Equal(t, int64(p.HeapTop), queried)

	grown := d.Dispatch(p, syscall.SysBrk, syscall.Args{A0: p.HeapTop + memlayout.PGSIZE})
	require.Equal(t, int64(p.HeapTop), grown)
}

func TestSysMmapRejectsUnalignedLength(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	got := d.Dispatch(p, syscall.SysMmap, syscall.Args{A0: 0, A1: memlayout.PGSIZE + 1})
	require.Equal(t, int64(-1), got)
}

func TestSysMmapThenSysMunmapRoundTrips(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	va := d.Dispatch(p, syscall.SysMmap, syscall.Args{A0: 0, A1: memlayout.PGSIZE})
	require.NotEqual(t, int64(-1), va)

	ret := d.Dispatch(p, syscall.SysMunmap, syscall.Args{A0: uint64(va), A1: memlayout.PGSIZE})
	require.Zero(t, ret)
}

func TestSysAllocBlockThenSysFreeBlockRoundTrips(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	blk := d.Dispatch(p, syscall.SysAllocBlock, syscall.Args{})
	require.NotEqual(t, int64(-1), blk)

	ret := d.Dispatch(p, syscall.SysFreeBlock, syscall.Args{A0: uint64(blk)})
	require.Zero(t, ret)
}

func TestSysReadBlockThenSysReleaseBlock(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	// Read a page's worth of scratch VA so CopyOut has somewhere to land;
	// the first process's heap starts unmapped, so grow it one page first.
	top := d.Dispatch(p, syscall.SysBrk, syscall.Args{A0: p.HeapTop + memlayout.PGSIZE})
	require.NotEqual(t, int64(-1), top)
	dst := memlayout.PgRoundDown(p.HeapTop - 1)

	handle := d.Dispatch(p, syscall.SysReadBlock, syscall.Args{A0: 0, A1: dst})
	require.NotEqual(t, int64(-1), handle)

	ret := d.Dispatch(p, syscall.SysReleaseBlock, syscall.Args{A0: uint64(handle)})
	require.Zero(t, ret)
}

func TestSysSleepZeroSecondsReturnsImmediately(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	ret := d.Dispatch(p, syscall.SysSleep, syscall.Args{A0: 0})
	require.Zero(t, ret)
}

func TestUnknownSyscallReturnsNegativeOne(t *testing.T) {
	d, k := newDispatcher(t)
	p := k.MakeFirstProcess()

	ret := d.Dispatch(p, 999, syscall.Args{})
	require.Equal(t, int64(-1), ret)
}
