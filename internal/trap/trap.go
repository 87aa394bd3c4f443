// Package trap implements the S-mode trap dispatch of spec.md §4.6: a
// shared trampoline entry for user- and kernel-origin traps, dispatching
// on scause to the timer, external-interrupt, and syscall paths. Grounded
// on original_source/kernel/trap/trap_user.c and trap_kernel.c.
package trap

import (
	"rvkernel/internal/console"
	"rvkernel/internal/kpanic"
	"rvkernel/internal/lock"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/plic"
	"rvkernel/internal/proc"
	"rvkernel/internal/riscv"
	"rvkernel/internal/syscall"
	"rvkernel/internal/timer"
)

const (
	causeInterruptBit = 1 << 63
	// causeTimer is the S-mode software-interrupt cause (1): the M-mode
	// CLINT handler signals the timer tick to S-mode by setting SSIP,
	// which S-mode sees as a software interrupt rather than cause 5.
	causeTimer    = 1
	causeExternal = 9 // S-mode external interrupt
	causeEcall    = 8 // environment call from U-mode
)

// Plane owns everything the trap dispatch needs to reach: the process
// table (for myproc/yield), the syscall dispatcher, the timer, and the
// interrupt controller.
type Plane struct {
	procs      *proc.Table
	dispatcher *syscall.Dispatcher
	clock      *timer.Timer
	controller plic.Controller
}

// New returns a Plane wired to the given subsystems.
func New(procs *proc.Table, dispatcher *syscall.Dispatcher, clock *timer.Timer, controller plic.Controller) *Plane {
	if controller == nil {
		controller = plic.None{}
	}
	return &Plane{procs: procs, dispatcher: dispatcher, clock: clock, controller: controller}
}

// UserHandler runs when a trap arrives from U-mode: stvec is retargeted to
// the kernel vector, the faulting PC is saved, the cause is dispatched,
// and the handler returns to its caller; it does not call UserReturn
// itself. Grounded on trap_user_handler.
func (pl *Plane) UserHandler(kernelVector uint64) {
	sepc := riscv.Rsepc()
	sstatus := riscv.Rsstatus()
	scause := riscv.Rscause()

	if sstatus&riscv.SstatusSPP != 0 {
		kpanic.Fatal("trap: user handler entered from non-U-mode")
	}

	riscv.Wstvec(kernelVector)

	p := pl.procs.Myproc()
	p.Trapframe.EPC = sepc

	trapID := int(scause & 0xf)
	if scause&causeInterruptBit != 0 {
		pl.dispatchInterrupt(trapID)
	} else if trapID == causeEcall {
		p.Trapframe.EPC += 4
		riscv.IntrOn()
		pl.runSyscall(p)
	} else {
		kpanic.Fatal("trap: unexpected user exception")
	}
}

// KernelHandler runs when a trap arrives from S-mode: interrupts must
// already be disabled and the origin must be S-mode; any exception here
// is fatal (spec.md §4.6: "exceptions in S-mode are fatal"). Register
// state the caller needs restored (sepc/sstatus) is returned for the
// assembly trap-return path to reinstall. Grounded on trap_kernel_handler.
func (pl *Plane) KernelHandler() (sepc, sstatus uint64) {
	sepc = riscv.Rsepc()
	sstatus = riscv.Rsstatus()
	scause := riscv.Rscause()

	if sstatus&riscv.SstatusSPP == 0 {
		kpanic.Fatal("trap: kernel handler entered from non-S-mode")
	}
	if riscv.IntrGet() {
		kpanic.Fatal("trap: kernel handler entered with interrupts enabled")
	}

	trapID := int(scause & 0xf)
	if scause&causeInterruptBit != 0 {
		pl.dispatchInterrupt(trapID)
	} else {
		kpanic.Fatal("trap: unexpected kernel exception")
	}
	return sepc, sstatus
}

func (pl *Plane) dispatchInterrupt(trapID int) {
	switch trapID {
	case causeTimer:
		pl.TimerInterrupt()
	case causeExternal:
		pl.ExternalInterrupt()
	default:
		console.Puts("trap: unexpected interrupt\r\n")
	}
}

// TimerInterrupt advances the global tick on hart 0 only, clears the SSIP
// bit, and yields the running process if one is current.
func (pl *Plane) TimerInterrupt() {
	if cpuIsHartZero() {
		pl.clock.Tick()
	}
	riscv.Wsip(riscv.Rsip() &^ 2)

	p := pl.procs.Myproc()
	if p != nil && p.State == proc.Running {
		pl.procs.Yield(p)
	}
}

// ExternalInterrupt claims and completes a pending PLIC interrupt. Device
// dispatch (UART, virtio) beyond claim/complete is outside this module's
// scope (spec.md §1: "PLIC/virtio MMIO drivers" is a named external
// collaborator).
func (pl *Plane) ExternalInterrupt() {
	irq := pl.controller.Claim()
	if irq != 0 {
		pl.controller.Complete(irq)
	}
}

func (pl *Plane) runSyscall(p *proc.Process) {
	tf := p.Trapframe
	num := int(tf.A7)
	args := syscall.Args{A0: tf.A0, A1: tf.A1, A2: tf.A2, A3: tf.A3, A4: tf.A4, A5: tf.A5}
	ret := pl.dispatcher.Dispatch(p, num, args)
	tf.A0 = uint64(ret)
}

// UserReturn prepares the trapframe's kernel re-entry fields, sets sstatus
// for a U-mode return with interrupts enabled, installs the user vector,
// and jumps to the trampoline's user-return stub with the user satp.
// Never returns. Grounded on trap_user_return.
func (pl *Plane) UserReturn(p *proc.Process, userVector uint64) {
	riscv.IntrOff()
	riscv.Wstvec(userVector)

	tf := p.Trapframe
	tf.KernelSATP = riscv.ReadSATP()
	tf.KernelSP = p.KstackVA + memlayout.PGSIZE
	tf.KernelHart = riscv.HartID()

	x := riscv.Rsstatus()
	x &^= riscv.SstatusSPP
	x |= riscv.SstatusSPIE
	riscv.Wsstatus(x)
	riscv.Wsepc(tf.EPC)

	satp := makeSATP(p.Pagetable)
	riscv.JumpToUserReturn(memlayout.TRAPFRAME, satp)
}

// makeSATP packs a page-table root physical address into Sv39 satp format:
// mode 8 in the top 4 bits, PPN in the low 44.
func makeSATP(root uint64) uint64 {
	const modeSv39 = uint64(8) << 60
	return modeSv39 | (root >> memlayout.PGSHIFT)
}

func cpuIsHartZero() bool {
	lock.PushOff()
	defer lock.PopOff()
	return riscv.HartID() == 0
}
