package cpu_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/cpu"
)

func TestMycpuidFollowsHartIDFunc(t *testing.T) {
	old := cpu.HartIDFunc
	defer func() { cpu.HartIDFunc = old }()

	cpu.HartIDFunc = func() uint64 { return 3 }
	require.Equal(t, 3, cpu.Mycpuid())
}

func TestMycpuReturnsDistinctRecordsPerHart(t *testing.T) {
	old := cpu.HartIDFunc
	defer func() { cpu.HartIDFunc = old }()

	cpu.HartIDFunc = func() uint64 { return 0 }
	a := cpu.Mycpu()
	a.Noff = 7

	cpu.HartIDFunc = func() uint64 { return 1 }
	b := cpu.Mycpu()
	require.NotEqual(t, 7, b.Noff)

	cpu.HartIDFunc = func() uint64 { return 0 }
	require.Equal(t, 7, cpu.Mycpu().Noff)
	a.Noff = 0
}
