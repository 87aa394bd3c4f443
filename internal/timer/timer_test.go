package timer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/testhw"
	"rvkernel/internal/timer"
)

func init() {
	testhw.Install()
}

func TestTickAdvancesTicks(t *testing.T) {
	tm := timer.New()
	require.Zero(t, tm.Ticks())

	tm.Tick()
	tm.Tick()
	tm.Tick()
	require.Equal(t, uint64(3), tm.Ticks())
}

func TestChannelIsStableAcrossTicks(t *testing.T) {
	tm := timer.New()
	before := tm.Channel()
	tm.Tick()
	require.Equal(t, before, tm.Channel())
}

func TestTicksLockedReflectsTick(t *testing.T) {
	tm := timer.New()
	tm.Tick()
	tm.Tick()

	tm.Lock().Acquire()
	defer tm.Lock().Release()
	require.Equal(t, uint64(2), tm.TicksLocked())
}
