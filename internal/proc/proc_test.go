package proc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/memlayout"
	"rvkernel/internal/proc"
	"rvkernel/internal/testhw"
)

func init() {
	testhw.Install()
}

func TestMakeFirstInstallsRunnableProcZero(t *testing.T) {
	k := testhw.NewKernel()
	p := k.MakeFirstProcess()
	require.NotNil(t, p)
	require.Equal(t, 1, p.Pid)
	require.Equal(t, proc.Runnable, p.State)
	require.Equal(t, uint64(memlayout.USERBASE), p.Trapframe.EPC)
	require.Equal(t, uint64(memlayout.TRAPFRAME), p.Trapframe.SP)
}

func TestForkReturnsNewChildPid(t *testing.T) {
	k := testhw.NewKernel()
	parent := k.MakeFirstProcess()
	parent.Trapframe.A0 = 42

	childPid := k.Procs.Fork(parent)
	require.Equal(t, 2, childPid)
	require.NotEqual(t, parent.Pid, childPid)
}

func TestForkLeavesParentMmapListUnchanged(t *testing.T) {
	k := testhw.NewKernel()
	parent := k.MakeFirstProcess()

	// Reserve part of the parent's mmap region so its free list diverges
	// from a fresh one.
	parent.Mmap.Reserve(0, 4)
	parentSnap := parent.Mmap.Snapshot()
	require.Len(t, parentSnap, 1)
	require.NotEqual(t, uint64(memlayout.MMAPBEGIN), parentSnap[0].Begin)

	k.Procs.Fork(parent)
	// The child process slot isn't directly reachable from this package's
	// exported surface without Myproc switching hart context, but Fork
	// must not have mutated the parent's own free list as a side effect.
	require.Equal(t, parentSnap, parent.Mmap.Snapshot())
}

func TestWaitWithNoChildrenReturnsNegativeOne(t *testing.T) {
	k := testhw.NewKernel()
	p := k.MakeFirstProcess()
	require.Equal(t, -1, k.Procs.Wait(p, memlayout.USERBASE))
}
