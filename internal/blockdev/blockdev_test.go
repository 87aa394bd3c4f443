package blockdev_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/memlayout"
)

func TestWriteBlockThenReadBlockRoundTrips(t *testing.T) {
	dev := blockdev.NewMemory(4)
	payload := make([]byte, memlayout.BSIZE)
	copy(payload, "block payload")

	dev.WriteBlock(2, payload)

	got := make([]byte, memlayout.BSIZE)
	dev.ReadBlock(2, got)
	require.Equal(t, payload, got)
}

func TestNewMemoryBlocksStartZeroed(t *testing.T) {
	dev := blockdev.NewMemory(1)
	got := make([]byte, memlayout.BSIZE)
	dev.ReadBlock(0, got)
	require.Equal(t, make([]byte, memlayout.BSIZE), got)
}

func TestBlocksAreIndependent(t *testing.T) {
	dev := blockdev.NewMemory(2)
	a := make([]byte, memlayout.BSIZE)
	a[0] = 0xff
	dev.WriteBlock(0, a)

	got := make([]byte, memlayout.BSIZE)
	dev.ReadBlock(1, got)
	require.Equal(t, make([]byte, memlayout.BSIZE), got)
}
