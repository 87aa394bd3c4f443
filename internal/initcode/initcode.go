// Package initcode holds the first user process's compiled machine code.
// Out of this module's scope (spec.md §1: "user-space initcode" is a
// named external collaborator) — a real boot image embeds the actual
// compiled bytes the same way the board's build does; Bytes here is a
// minimal placeholder (a single self-jump instruction) so
// proc.Table.MakeFirst has something to map and run.
package initcode

// Bytes is "jal x0, 0" encoded little-endian: an infinite self-loop, RISC-V
// opcode 0x6f with rd=x0 and all immediate bits zero.
var Bytes = []byte{0x6f, 0x00, 0x00, 0x00}
