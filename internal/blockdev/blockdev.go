// Package blockdev is the named external collaborator for the block
// device (spec.md §1, §6: "a block device is read or written one block at
// a time via a blocking MMIO driver that wakes its waiter on completion").
// This kernel never pokes disk-controller MMIO registers outside an
// implementation of this interface; the register-layout texture such an
// implementation would have is grounded on
// mazboot/golang/main/sdhci.go's SDHCI_* constant blocks, but the controller
// itself is out of this module's scope — production boot code wires a real
// driver, tests wire an in-memory fake.
package blockdev

import "rvkernel/internal/memlayout"

// Device is a synchronous, blocking block device: one BSIZE-byte block
// read or written per call. A real driver blocks the calling goroutine
// until the controller's completion interrupt fires and wakes it; this
// kernel only depends on that blocking contract, not on how it's met.
type Device interface {
	ReadBlock(blockNum uint32, dst []byte)
	WriteBlock(blockNum uint32, src []byte)
}

// Memory is an in-process Device backed by a flat byte slice, standing in
// for real disk hardware the way internal/physmem stands in for RAM. Used
// by boot images small enough to fit in memory and by every test in this
// module.
type Memory struct {
	blocks [][memlayout.BSIZE]byte
}

// NewMemory returns a Memory device with nBlocks zeroed blocks.
func NewMemory(nBlocks int) *Memory {
	return &Memory{blocks: make([][memlayout.BSIZE]byte, nBlocks)}
}

func (m *Memory) ReadBlock(blockNum uint32, dst []byte) {
	copy(dst, m.blocks[blockNum][:])
}

func (m *Memory) WriteBlock(blockNum uint32, src []byte) {
	copy(m.blocks[blockNum][:], src)
}
