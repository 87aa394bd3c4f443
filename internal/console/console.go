// Package console is the named external collaborator for line-oriented
// polled UART I/O (spec.md §1, §6: "Console. Line-oriented polled UART;
// writes are serialized by a process-wide print lock.").
//
// The kernel never touches the UART MMIO registers directly outside this
// package. Real boot firmware wires Write to the board's UART base address
// the same way mazboot/golang/main/uart_qemu.go pokes a fixed MMIO
// register; tests and host-side tooling wire it to
// a buffer. Either way every other package only ever calls Puts/PutHex64,
// and each such call writes under the shared print lock below, so the bytes
// of one call are never interleaved with another's; a line built from
// several calls can still be interleaved.
package console

import "sync"

var (
	printLock sync.Mutex
	// Write sends raw bytes to the UART. Swapped out in tests; production
	// builds point it at the polled MMIO register described in spec.md §6.
	// Defaults to a no-op because the MMIO access pattern it wraps belongs
	// to the excluded driver layer.
	Write = func(b []byte) {}
)

// Puts writes s to the console under the print lock.
func Puts(s string) {
	printLock.Lock()
	defer printLock.Unlock()
	Write([]byte(s))
}

// PutHex64 writes v as a zero-padded 16-digit hex string.
func PutHex64(v uint64) {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	Puts(string(buf[:]))
}
