package vm

import (
	"defs"
	"mem"
)

// CheckLazy implements mem.LazyFaulter_i: it is the single entry point the
// trap gate and TranslateLazy call on a page fault (spec.md §4.4). It
// decides, from the faulting address alone, whether the fault is a
// legitimate lazy heap/mmap touch to materialize or a genuine segfault.

/// CheckLazy handles one page fault at addr, materializing a heap or mmap
/// page on demand (spec.md §4.4). It returns -EFAULT for any address the
/// current regions don't claim, including addr==0 (the "null pointer
/// dereference is never lazy" fast-fail case).
func (ms *MemorySet_t) CheckLazy(addr mem.Va_t) defs.Err_t {
	if addr == 0 {
		return -defs.EFAULT
	}

	ms.mu.Lock()
	inHeap := addr >= ms.HeapBase && addr < ms.HeapTop
	ms.mu.Unlock()
	if inHeap {
		return ms.InsertHeapDataframe(addr)
	}

	ms.mu.Lock()
	area := ms.findMmap(addr)
	if area == nil {
		ms.mu.Unlock()
		return -defs.EFAULT
	}
	vpn := int(mem.VPN(addr))
	idx := vpn - area.VpnStart
	if _, ok := area.Frames[idx]; ok {
		ms.mu.Unlock()
		return 0 // already materialized by a racing thread
	}

	if area.Anonymous() {
		ft, ok := mem.Physmem.Alloc()
		if !ok {
			ms.mu.Unlock()
			return -defs.ENOMEM
		}
		va := mem.Va_t(vpn << mem.PGSHIFT)
		ms.PT.Map(va, ft.Pa(), area.Perm|mem.PTE_U)
		area.Frames[idx] = ft
		ms.mu.Unlock()
		return 0
	}

	file := area.File
	off := area.FileOff + idx*mem.PGSIZE
	ms.mu.Unlock()

	// file-backed: the page comes from the block/data cache, not a fresh
	// frame, so concurrent mappings of the same file observe the same
	// bytes (spec.md §9 "File-backed mmap sharing the block cache").
	pa, err := file.CachedPage(off)
	if err != 0 {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := area.Frames[idx]; ok {
		return 0
	}
	va := mem.Va_t(vpn << mem.PGSHIFT)
	ms.PT.Map(va, pa, area.Perm|mem.PTE_U)
	return 0
}

/// GrowHeap moves HeapTop to newTop, lazily: no frames are allocated here,
/// only the boundary used by CheckLazy/InsertHeapDataframe moves (spec.md
/// §4.6 "brk"). Shrinking drops any already-backed pages past the new top.
func (ms *MemorySet_t) GrowHeap(newTop mem.Va_t) defs.Err_t {
	ms.mu.Lock()
	if newTop < ms.HeapBase {
		ms.mu.Unlock()
		return -defs.EINVAL
	}
	prevTop := ms.HeapTop
	shrinking := newTop < prevTop
	ms.HeapTop = newTop
	ms.mu.Unlock()

	if shrinking {
		ms.RemoveHeapDataframes(prevTop, newTop)
	}
	return 0
}

/// Mmap reserves [addr, addr+length) (addr chosen by the bump allocator
/// when hint==0) as a new mmap region and returns its base VA. Pages are
/// materialized lazily by CheckLazy on first touch (spec.md §4.6 "mmap").
func (ms *MemorySet_t) Mmap(hint mem.Va_t, length int, perm mem.Pa_t, flags int, file MmapFile_i, off int) (mem.Va_t, defs.Err_t) {
	npages := mem.Pgroundup(length) / mem.PGSIZE
	ms.mu.Lock()
	base := hint
	if base == 0 {
		base = ms.MmapTop
		ms.MmapTop += mem.Va_t(npages * mem.PGSIZE)
	}
	ms.mu.Unlock()

	ms.PushMmapArea(int(base/mem.Va_t(mem.PGSIZE)), npages, perm, flags, file, off)
	return base, 0
}
