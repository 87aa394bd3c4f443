package kpanic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/kpanic"
)

func TestFatalPrintsAndHalts(t *testing.T) {
	oldHalt := kpanic.Halt
	defer func() { kpanic.Halt = oldHalt }()

	halted := false
	kpanic.Halt = func() { halted = true }

	kpanic.Fatal("boom")
	require.True(t, halted)
}

func TestAssertOnlyFatalsWhenFalse(t *testing.T) {
	oldHalt := kpanic.Halt
	defer func() { kpanic.Halt = oldHalt }()

	calls := 0
	kpanic.Halt = func() { calls++ }

	kpanic.Assert(true, "unreachable")
	require.Zero(t, calls)

	kpanic.Assert(false, "unreachable")
	require.Equal(t, 1, calls)
}
