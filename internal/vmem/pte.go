// Package vmem implements the Sv39 three-level page-table engine of
// spec.md §4.3, grounded on original_source/kernel/mem/kvm.c and uvm.c.
// Page-table entry bit twiddling is confined to this file's PTE type per
// spec.md §9 ("page-table entry arithmetic... no raw integer casting
// outside this module"); every other file in this package and every other
// package in the kernel constructs/reads PTEs only through it.
package vmem

import "rvkernel/internal/memlayout"

// Flag is one PTE permission/status bit.
type Flag uint64

const (
	FlagV Flag = 1 << 0 // valid
	FlagR Flag = 1 << 1 // readable
	FlagW Flag = 1 << 2 // writable
	FlagX Flag = 1 << 3 // executable
	FlagU Flag = 1 << 4 // user-accessible
	FlagG Flag = 1 << 5 // global
	FlagA Flag = 1 << 6 // accessed
	FlagD Flag = 1 << 7 // dirty

	flagBits = 10 // Sv39 reserves the low 10 bits for V..D plus 2 RSW bits
	ppnShift = 10
)

// PTE is one 64-bit Sv39 page-table entry.
type PTE uint64

// NewLeaf constructs a valid leaf/non-leaf PTE for physical address pa with
// the given flags. pa must be page-aligned; callers get that guarantee from
// memlayout.PgRoundDown upstream, this constructor does not re-check it to
// stay a pure bit-packer.
func NewLeaf(pa uint64, flags Flag) PTE {
	return PTE((pa>>memlayout.PGSHIFT)<<ppnShift | uint64(flags))
}

// PA extracts the physical address this entry points at.
func (e PTE) PA() uint64 {
	return (uint64(e) >> ppnShift) << memlayout.PGSHIFT
}

// Flags extracts the low status/permission bits.
func (e PTE) Flags() Flag {
	return Flag(uint64(e) & (1<<flagBits - 1))
}

// Valid reports whether V is set.
func (e PTE) Valid() bool { return uint64(e)&uint64(FlagV) != 0 }

// IsLeaf reports whether this valid entry is a leaf: at least one of R/W/X
// set (spec.md §3: "at level 0 a valid leaf has V and at least one of
// RWX"). A valid entry with none of RWX set is a non-leaf pointer to the
// next-level table.
func (e PTE) IsLeaf() bool {
	return e.Valid() && uint64(e)&(uint64(FlagR)|uint64(FlagW)|uint64(FlagX)) != 0
}

// Has reports whether all bits in want are set.
func (e PTE) Has(want Flag) bool {
	return uint64(e)&uint64(want) == uint64(want)
}
