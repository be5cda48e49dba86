package vm

import (
	"bytes"
	"debug/elf"

	"defs"
	"mem"
)

// Userspace images are loaded with the standard library's debug/elf --
// the same package the teacher's kernel entry code (kernel/chentry.go)
// used to parse the boot ELF, so this keeps using it rather than reaching
// for a third-party ELF parser the pack never shows.

const (
	userStackPages0 = UserStackPages
	heapInitPages   = 0 // heap starts empty; brk() grows it lazily
)

/// NewFromElf builds a fresh MemorySet_t from a raw ELF image: PT_LOAD
/// segments become framed areas (spec.md §4.3 item 2), the user stack is
/// reserved (the trap-context page is mapped separately, by
/// MapTrapContext), and the heap begins immediately after
/// the highest loaded segment. It returns the entry point, the initial
/// stack pointer, and the ELF auxiliary vector.
func NewFromElf(img []byte) (ms *MemorySet_t, entry, sp mem.Va_t, auxv []AuxEntry_t, err defs.Err_t) {
	f, perr := elf.NewFile(bytes.NewReader(img))
	if perr != nil {
		return nil, 0, 0, nil, -defs.ENOEXEC
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, 0, nil, -defs.ENOEXEC
	}

	ms, ok := newEmptyMemorySet()
	if !ok {
		return nil, 0, 0, nil, -defs.ENOMEM
	}

	var highest mem.Va_t
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		perm := mem.PTE_R
		if p.Flags&elf.PF_W != 0 {
			perm |= mem.PTE_W
		}
		if p.Flags&elf.PF_X != 0 {
			perm |= mem.PTE_X
		}

		loStart := mem.Va_t(mem.Pgrounddown(int(p.Vaddr)))
		hiEnd := mem.Va_t(mem.Pgroundup(int(p.Vaddr + p.Memsz)))
		npages := int((hiEnd - loStart) / mem.Va_t(mem.PGSIZE))
		vpnStart := int(loStart / mem.Va_t(mem.PGSIZE))

		raw := make([]byte, p.Filesz)
		if _, rerr := p.ReadAt(raw, 0); rerr != nil {
			return nil, 0, 0, nil, -defs.ENOEXEC
		}
		pageOff := int(p.Vaddr) - int(loStart)
		full := make([]byte, npages*mem.PGSIZE)
		copy(full[pageOff:], raw)

		src := make([][]byte, npages)
		for i := 0; i < npages; i++ {
			src[i] = full[i*mem.PGSIZE : (i+1)*mem.PGSIZE]
		}
		if e := ms.insertFramedAreaLocked(vpnStart, npages, perm, src); e != 0 {
			return nil, 0, 0, nil, e
		}
		if hiEnd > highest {
			highest = hiEnd
		}
	}

	ms.HeapBase = highest
	ms.HeapTop = highest

	lo, hi := StackArea(0)
	if e := ms.InsertFramedArea(int(lo/mem.Va_t(mem.PGSIZE)), UserStackPages, mem.PTE_R|mem.PTE_W); e != 0 {
		return nil, 0, 0, nil, e
	}

	auxv = []AuxEntry_t{
		{Tag: defs.AT_PAGESZ, Val: uint64(mem.PGSIZE)},
		{Tag: defs.AT_ENTRY, Val: uint64(f.Entry)},
		{Tag: defs.AT_NULL, Val: 0},
	}

	return ms, mem.Va_t(f.Entry), hi, auxv, 0
}
