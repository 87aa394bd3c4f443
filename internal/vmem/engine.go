package vmem

import (
	"rvkernel/internal/kpanic"
	"rvkernel/internal/memlayout"
	"rvkernel/internal/physmem"
	"rvkernel/internal/pmem"
)

const ptesPerTable = 512

// vpn extracts the 9-bit virtual page number for the given Sv39 level
// (2=top, 1=middle, 0=leaf) out of va.
func vpn(va uint64, level int) uint64 {
	shift := memlayout.PGSHIFT + 9*level
	return (va >> shift) & 0x1ff
}

// Engine walks and mutates Sv39 page tables backed by ram, allocating
// intermediate tables from frames.
type Engine struct {
	ram    *physmem.RAM
	frames *pmem.Manager
}

// NewEngine returns an Engine over the given physical RAM and frame
// allocator.
func NewEngine(ram *physmem.RAM, frames *pmem.Manager) *Engine {
	return &Engine{ram: ram, frames: frames}
}

func (e *Engine) readPTE(tableAddr uint64, idx uint64) PTE {
	return PTE(e.ram.ReadUint64(tableAddr + idx*8))
}

func (e *Engine) writePTE(tableAddr uint64, idx uint64, v PTE) {
	e.ram.WriteUint64(tableAddr+idx*8, uint64(v))
}

// Walk descends the three Sv39 levels for va starting at root, returning
// the physical address of the level-0 PTE slot. When alloc is true, a
// missing intermediate table is allocated from the kernel frame pool,
// zeroed, and installed with V only; when false, a missing intermediate
// table yields ok=false (spec.md §4.3).
func (e *Engine) Walk(root uint64, va uint64, alloc bool) (pteAddr uint64, ok bool) {
	if va >= memlayout.VAMax {
		kpanic.Fatal("vmem: walk va above VA_MAX")
	}
	table := root
	for level := 2; level > 0; level-- {
		idx := vpn(va, level)
		pte := e.readPTE(table, idx)
		if pte.Valid() {
			if pte.IsLeaf() {
				kpanic.Fatal("vmem: walk found leaf at non-zero level")
			}
			table = pte.PA()
			continue
		}
		if !alloc {
			return 0, false
		}
		f := e.frames.Alloc(true)
		e.writePTE(table, idx, NewLeaf(f.Addr, FlagV))
		table = f.Addr
	}
	return table + vpn(va, 0)*8, true
}

// Map installs leaf PTEs for every page in [va, va+len) mapping to the
// corresponding page in [pa, pa+len), with the given permission flags
// or'd with V. va and pa must be page-aligned, len>0, va+len<=VA_MAX.
// Double-mapping an already-valid entry is fatal (spec.md §4.3).
func (e *Engine) Map(root, va, pa, length uint64, perm Flag) {
	if va%memlayout.PGSIZE != 0 || pa%memlayout.PGSIZE != 0 || length == 0 {
		kpanic.Fatal("vmem: map requires page-aligned va/pa and len>0")
	}
	if va+length > memlayout.VAMax {
		kpanic.Fatal("vmem: map range exceeds VA_MAX")
	}
	for off := uint64(0); off < length; off += memlayout.PGSIZE {
		pteAddr, _ := e.Walk(root, va+off, true)
		if PTE(e.ram.ReadUint64(pteAddr)).Valid() {
			kpanic.Fatal("vmem: map of already-mapped page")
		}
		e.ram.WriteUint64(pteAddr, uint64(NewLeaf(pa+off, perm|FlagV)))
	}
}

// Unmap clears the leaf PTEs for [va, va+len), optionally freeing the
// underlying user frames. Unmapping a non-leaf or unmapped entry, or a
// range not fully mapped, is fatal (spec.md §4.3).
func (e *Engine) Unmap(root, va, length uint64, freeFrames bool) {
	if va%memlayout.PGSIZE != 0 {
		kpanic.Fatal("vmem: unmap requires page-aligned va")
	}
	for off := uint64(0); off < length; off += memlayout.PGSIZE {
		pteAddr, ok := e.Walk(root, va+off, false)
		if !ok {
			kpanic.Fatal("vmem: unmap of unmapped range")
		}
		pte := PTE(e.ram.ReadUint64(pteAddr))
		if !pte.Valid() {
			kpanic.Fatal("vmem: unmap of unmapped entry")
		}
		if !pte.IsLeaf() {
			kpanic.Fatal("vmem: unmap of non-leaf entry")
		}
		if freeFrames {
			e.frames.Free(pmem.Frame{Addr: pte.PA()}, false)
		}
		e.ram.WriteUint64(pteAddr, 0)
	}
}

// Destroy recursively frees every intermediate table and, at level 0,
// every leaf target frame from the user pool. The trampoline and
// trapframe mappings must already have been removed without freeing their
// frames before calling Destroy (spec.md §4.3).
func (e *Engine) Destroy(root uint64) {
	e.destroyLevel(root, 2)
}

func (e *Engine) destroyLevel(table uint64, level int) {
	for idx := uint64(0); idx < ptesPerTable; idx++ {
		pte := e.readPTE(table, idx)
		if !pte.Valid() {
			continue
		}
		if level > 0 && !pte.IsLeaf() {
			e.destroyLevel(pte.PA(), level-1)
			e.frames.Free(pmem.Frame{Addr: pte.PA()}, true)
		} else if level == 0 {
			e.frames.Free(pmem.Frame{Addr: pte.PA()}, false)
		}
	}
}

// GetPhysicalAddress translates a user virtual address to its backing
// physical address, or ok=false if unmapped.
func (e *Engine) GetPhysicalAddress(root, va uint64) (pa uint64, ok bool) {
	pteAddr, found := e.Walk(root, memlayout.PgRoundDown(va), false)
	if !found {
		return 0, false
	}
	pte := PTE(e.ram.ReadUint64(pteAddr))
	if !pte.Valid() {
		return 0, false
	}
	return pte.PA() + (va % memlayout.PGSIZE), true
}

// CopyRange copies [begin, begin+length) from old's page table to new's,
// allocating fresh user frames and moving their contents, preserving
// flags. Intermediate tables in new are created on demand. Grounded on
// original_source/kernel/mem/uvm.c's copy_range.
func (e *Engine) CopyRange(old, new, begin, length uint64) {
	start := memlayout.PgRoundDown(begin)
	end := memlayout.PgRoundUp(begin + length)
	for va := start; va < end; va += memlayout.PGSIZE {
		srcAddr, ok := e.Walk(old, va, false)
		if !ok {
			continue
		}
		srcPTE := PTE(e.ram.ReadUint64(srcAddr))
		if !srcPTE.Valid() {
			continue
		}
		dst := e.frames.Alloc(false)
		e.ram.CopyWithin(dst.Addr, srcPTE.PA(), memlayout.PGSIZE)
		dstAddr, _ := e.Walk(new, va, true)
		e.ram.WriteUint64(dstAddr, uint64(NewLeaf(dst.Addr, srcPTE.Flags())))
	}
}

// CopyIn copies len(dst) bytes from user virtual address srcVA in root
// into dst, walking page by page. It stops silently at the first unmapped
// page, returning the number of bytes actually copied (spec.md §4.3, §7:
// "silent partial" — copyin/copyout stop on the first unmapped page).
func (e *Engine) CopyIn(root uint64, dst []byte, srcVA uint64) int {
	return e.copyBytes(root, dst, srcVA, true)
}

// CopyOut copies src into user virtual address dstVA in root, stopping
// silently at the first unmapped page.
func (e *Engine) CopyOut(root uint64, dstVA uint64, src []byte) int {
	return e.copyBytes(root, src, dstVA, false)
}

func (e *Engine) copyBytes(root uint64, buf []byte, userVA uint64, fromUser bool) int {
	copied := 0
	for copied < len(buf) {
		va0 := memlayout.PgRoundDown(userVA)
		pa, ok := e.GetPhysicalAddress(root, va0)
		if !ok {
			return copied
		}
		pageOff := userVA - va0
		n := uint64(len(buf)-copied)
		if n > memlayout.PGSIZE-pageOff {
			n = memlayout.PGSIZE - pageOff
		}
		if fromUser {
			copy(buf[copied:uint64(copied)+n], e.ram.ReadAt(pa+pageOff, n))
		} else {
			e.ram.WriteAt(pa+pageOff, buf[copied:uint64(copied)+n])
		}
		copied += int(n)
		userVA += n
	}
	return copied
}

// CopyInStr copies a NUL-terminated string from user virtual address srcVA
// into dst, stopping at NUL, len(dst)-1 (to leave room for a NUL
// terminator), or the first unmapped page, whichever comes first. Returns
// the number of bytes written excluding the terminator.
func (e *Engine) CopyInStr(root uint64, dst []byte, srcVA uint64) int {
	max := len(dst)
	if max == 0 {
		return 0
	}
	n := 0
	for n < max-1 {
		va0 := memlayout.PgRoundDown(srcVA)
		pa, ok := e.GetPhysicalAddress(root, va0)
		if !ok {
			break
		}
		pageOff := srcVA - va0
		b := e.ram.ReadAt(pa+pageOff, 1)[0]
		if b == 0 {
			break
		}
		dst[n] = b
		n++
		srcVA++
	}
	dst[n] = 0
	return n
}
