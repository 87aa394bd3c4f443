// Package riscv declares the machine-level primitives this kernel treats as
// named external collaborators (spec.md §1, §9): the assembly trampoline and
// context-switch stubs, fence/atomic intrinsics, and control/status register
// access. None of these have a Go body here, the same boundary
// mazboot/golang/main/mmu.go sits behind: it imports "mazboot/asm" and
// calls asm.Dsb/asm.Isb/asm.InvalidateTlbAll without that package
// appearing anywhere in the retrieved source — its implementation is
// assembly shipped alongside, not Go. Every declaration below is
// implemented by the board's boot assembly, outside this module's scope.
package riscv

import "unsafe"

// Context holds the callee-saved registers plus ra and sp that Swtch
// preserves across a context switch (spec.md §4.5: "Context-switch saves/
// restores only callee-saves plus ra and sp").
type Context struct {
	RA, SP                                     uint64
	S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
}

// Trapframe mirrors the per-process trapframe page: saved user registers
// plus the kernel-entry context the trampoline needs to get back into S-mode
// (spec.md §4.6).
type Trapframe struct {
	KernelSATP  uint64
	KernelSP    uint64
	KernelTrap  uint64
	KernelHart  uint64
	EPC         uint64
	KernelA0Tmp uint64
	RA, SP, GP, TP                             uint64
	T0, T1, T2                                 uint64
	S0, S1                                     uint64
	A0, A1, A2, A3, A4, A5, A6, A7              uint64
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11    uint64
	T3, T4, T5, T6                              uint64
}

// Swtch saves the callee-saves of the caller into old and restores them
// from new, transferring control. Implemented in assembly (swtch.S
// equivalent); declared here only so internal/proc can name it.
//
//go:noescape
func Swtch(old, new *Context)

// HartID returns the value latched into tp at boot (the mhartid captured by
// the M-mode start stub, per spec.md §6).
//
//go:noescape
func HartID() uint64

// IntrGet reports whether S-mode interrupts are currently enabled (sstatus.SIE).
//
//go:noescape
func IntrGet() bool

// IntrOn/IntrOff enable/disable S-mode interrupts.
//
//go:noescape
func IntrOn()

//go:noescape
func IntrOff()

// Fence and SfenceVMA are memory and TLB-ordering intrinsics; the RISC-V
// instructions they wrap are FENCE and SFENCE.VMA.
//
//go:noescape
func Fence()

//go:noescape
func SfenceVMA()

// WriteSATP installs a new translation register value (root page table
// physical frame plus the Sv39 mode bits), per spec.md §3
// ("the top-level table root pointer plus a format tag is written to the
// translation register").
//
//go:noescape
func WriteSATP(satp uint64)

//go:noescape
func ReadSATP() uint64

// TrampolineUserReturn and TrampolineUserVector are the physical entry
// points of the trampoline page (spec.md §4.6); they are re-mapped at
// TRAMPOLINE in every address space so the jump target is identical in
// user and kernel maps. The assembly layer that backs them is out of
// scope; this kernel only ever references their addresses.
var (
	TrampolineUserReturn uintptr
	TrampolineUserVector uintptr
	KernelVector         uintptr
)

// Control/status register accessors the trap plane needs. Each is a bare
// declaration implemented by a one-instruction assembly stub, the same
// shape as the fence/SATP accessors above.
//
//go:noescape
func Rsepc() uint64

//go:noescape
func Wsepc(v uint64)

//go:noescape
func Rsstatus() uint64

//go:noescape
func Wsstatus(v uint64)

//go:noescape
func Rscause() uint64

//go:noescape
func Rstval() uint64

//go:noescape
func Wstvec(v uint64)

//go:noescape
func Rsip() uint64

//go:noescape
func Wsip(v uint64)

// Sstatus bit positions the trap plane tests/sets directly.
const (
	SstatusSPP  = 1 << 8
	SstatusSPIE = 1 << 5
)

// JumpToUserReturn transfers control to the trampoline's user-return stub
// with the given trapframe address and satp value, switching to the user
// page table and sret-ing into U-mode. Implemented in the trampoline
// assembly; never returns to its caller.
//
//go:noescape
func JumpToUserReturn(trapframe, satp uint64)

// Bzero zeros n bytes at ptr. Declared alongside the other intrinsics
// because mazboot/golang/main/mmu.go calls asm.Bzero, a tight assembly
// loop; this kernel's Go-visible
// pools are backed by internal/physmem instead, so production code should
// prefer physmem.RAM.Zero — Bzero exists for completeness against
// raw physical pointers obtained outside physmem (e.g. page-table frames
// during early boot before physmem is wired up).
//
//go:noescape
func Bzero(ptr unsafe.Pointer, n uintptr)
