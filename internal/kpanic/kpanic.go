// Package kpanic implements the kernel's one fatal-error path.
//
// Every programmer-fatal condition in this kernel (lock-discipline
// violation, page-table structural violation, pool exhaustion, scheduler
// invariant break) funnels through Fatal. There is no recover: a hart that
// reaches Fatal has found a bug, not a recoverable condition, and halts
// after printing, the same "print(...); for {}" pattern
// mazboot/golang/main/mmu.go uses.
package kpanic

import "rvkernel/internal/console"

// Halt is swapped out by tests so Fatal can be exercised without hanging
// the test binary. Production code never reassigns it.
var Halt = func() { select {} }

// Fatal prints msg and halts the current hart. It never returns.
func Fatal(msg string) {
	console.Puts("\r\nFATAL: ")
	console.Puts(msg)
	console.Puts("\r\n")
	Halt()
}

// Assert calls Fatal(msg) if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		Fatal(msg)
	}
}
