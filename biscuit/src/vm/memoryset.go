package vm

import (
	"sync"

	"defs"
	"mem"
)

/// MapType_t distinguishes an address space region that simply identity-maps
/// existing physical memory (kernel text/MMIO) from one backed by
/// individually-owned frames (spec.md §3 "Address space").
type MapType_t int

const (
	MIdentity MapType_t = iota
	MFramed
)

/// FramedArea_t is a contiguous virtual-page range with one permission
/// bitmap (spec.md §3 "Address space").
type FramedArea_t struct {
	VpnStart int
	Npages   int
	Perm     mem.Pa_t
	Mtype    MapType_t
	Frames   map[int]*mem.FrameTracker_t // page-index (relative to VpnStart) -> frame; empty for MIdentity
}

/// MmapFile_i is the seam a backing file plugs into a file-backed mmap
/// region: on first touch the region asks for the cached physical frame
/// backing a byte offset, rather than allocating a fresh one, so that
/// writes are visible through the block/data cache (spec.md §4.4, §9
/// "File-backed mmap sharing the block cache").
type MmapFile_i interface {
	CachedPage(offset int) (mem.Pa_t, defs.Err_t)
}

/// MmapArea_t is one mmap(2) mapping (spec.md §3 "Mmap region").
type MmapArea_t struct {
	VpnStart int
	Npages   int
	Perm     mem.Pa_t
	Flags    int
	File     MmapFile_i
	FileOff  int
	Frames   map[int]*mem.FrameTracker_t // anonymous pages only
}

/// Anonymous reports whether the region has no backing file.
func (m *MmapArea_t) Anonymous() bool { return m.File == nil }

/// AuxEntry_t is one (tag, value) pair of the ELF auxiliary vector
/// (spec.md §4.3 item 2).
type AuxEntry_t struct {
	Tag, Val uint64
}

/// MemorySet_t is one process's address space (spec.md §3 "Address space"):
/// one root Sv39 page table, the framed regions, the mmap regions, and the
/// heap frame set, all protected by a single mutex as spec.md §4.3 requires.
type MemorySet_t struct {
	mu sync.Mutex

	PT     *mem.Pagetable_t
	rootFt *mem.FrameTracker_t

	Framed []*FramedArea_t
	Mmap   []*MmapArea_t

	HeapBase   mem.Va_t
	HeapTop    mem.Va_t
	HeapFrames map[int]*mem.FrameTracker_t

	MmapTop mem.Va_t

	trampolinePa mem.Pa_t
	trapCxFrames []*mem.FrameTracker_t
}

/// Lock/Unlock expose the address-space mutex to callers (the trap gate's
/// page-fault path, fork, exec) exactly as spec.md §4.3 describes.
func (ms *MemorySet_t) Lock()   { ms.mu.Lock() }
func (ms *MemorySet_t) Unlock() { ms.mu.Unlock() }

/// NewEmpty allocates a fresh, otherwise-empty address space (a bare root
/// page table with no regions) -- for callers, such as other packages'
/// tests, that need an address space without loading a real ELF image.
func NewEmpty() (*MemorySet_t, bool) {
	return newEmptyMemorySet()
}

func newEmptyMemorySet() (*MemorySet_t, bool) {
	pt, rootFt, ok := mem.NewPagetable(mem.Physmem)
	if !ok {
		return nil, false
	}
	return &MemorySet_t{
		PT:         pt,
		rootFt:     rootFt,
		HeapFrames: make(map[int]*mem.FrameTracker_t),
		MmapTop:    MmapBase,
	}, true
}

/// MapTrampoline installs the single shared trampoline frame read-execute
/// at the fixed Trampoline VA in this address space (spec.md §4.3 item 1,
/// §9 "Trampoline shared page"). The same physical frame is mapped into
/// every address space; it is never owned/dropped by any one MemorySet_t.
func (ms *MemorySet_t) MapTrampoline(pa mem.Pa_t) {
	ms.trampolinePa = pa
	ms.PT.Map(Trampoline, pa, mem.PTE_R|mem.PTE_X)
}

/// MapTrapContext allocates a fresh physical frame and maps it kernel-only
/// (no PTE_U) at va, the thread's dedicated trap-context page (spec.md §9
/// "Trampoline shared page" / per-thread trap context). Unlike the
/// trampoline frame, this one is owned by the address space and dropped
/// with it; every thread gets its own, so the frame is tracked here rather
/// than passed in the way MapTrampoline's shared frame is.
func (ms *MemorySet_t) MapTrapContext(va mem.Va_t) (mem.Pa_t, defs.Err_t) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ft, ok := mem.Physmem.Alloc()
	if !ok {
		return 0, -defs.ENOMEM
	}
	ms.PT.Map(va, ft.Pa(), mem.PTE_R|mem.PTE_W)
	ms.trapCxFrames = append(ms.trapCxFrames, ft)
	return ft.Pa(), 0
}

/// Token returns the satp value selecting this address space.
func (ms *MemorySet_t) Token() uint64 { return ms.PT.Token() }

/// InsertFramedArea allocates Npages fresh zeroed frames and maps them at
/// vpnStart with perm (spec.md §4.3 "insert_framed_area").
func (ms *MemorySet_t) InsertFramedArea(vpnStart, npages int, perm mem.Pa_t) defs.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.insertFramedAreaLocked(vpnStart, npages, perm, nil)
}

func (ms *MemorySet_t) insertFramedAreaLocked(vpnStart, npages int, perm mem.Pa_t, src [][]byte) defs.Err_t {
	area := &FramedArea_t{VpnStart: vpnStart, Npages: npages, Perm: perm, Mtype: MFramed,
		Frames: make(map[int]*mem.FrameTracker_t, npages)}
	for i := 0; i < npages; i++ {
		ft, ok := mem.Physmem.Alloc()
		if !ok {
			for _, f := range area.Frames {
				f.Drop()
			}
			return -defs.ENOMEM
		}
		if src != nil && i < len(src) {
			pg := mem.Dmap(ft.Pa())
			copy(pg[:], src[i])
		}
		va := mem.Va_t((vpnStart + i) << mem.PGSHIFT)
		ms.PT.Map(va, ft.Pa(), perm|mem.PTE_U)
		area.Frames[i] = ft
	}
	ms.Framed = append(ms.Framed, area)
	return 0
}

/// InsertIdentityArea identity-maps [pa, pa+npages*PGSIZE) at the same
/// virtual address (spec.md §4.3 item 1, kernel construction).
func (ms *MemorySet_t) InsertIdentityArea(pa mem.Pa_t, npages int, perm mem.Pa_t) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	vpnStart := int(mem.PPN(pa))
	for i := 0; i < npages; i++ {
		va := mem.Va_t((vpnStart + i) << mem.PGSHIFT)
		ms.PT.Map(va, pa+mem.Pa_t(i*mem.PGSIZE), perm)
	}
	ms.Framed = append(ms.Framed, &FramedArea_t{VpnStart: vpnStart, Npages: npages, Perm: perm, Mtype: MIdentity})
}

/// RemoveAreaWithStartVpn unmaps and releases the framed area beginning at
/// vpnStart (spec.md §4.3 "remove_area_with_start_vpn").
func (ms *MemorySet_t) RemoveAreaWithStartVpn(vpnStart int) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, a := range ms.Framed {
		if a.VpnStart == vpnStart {
			ms.unmapFramed(a)
			ms.Framed = append(ms.Framed[:i], ms.Framed[i+1:]...)
			return true
		}
	}
	return false
}

func (ms *MemorySet_t) unmapFramed(a *FramedArea_t) {
	for i := 0; i < a.Npages; i++ {
		va := mem.Va_t((a.VpnStart + i) << mem.PGSHIFT)
		if a.Mtype == MFramed {
			if _, ok := a.Frames[i]; ok {
				ms.PT.Unmap(va)
			}
		} else {
			ms.PT.Unmap(va)
		}
	}
	for _, ft := range a.Frames {
		ft.Drop()
	}
}

/// PushMmapArea records a new mmap region without mapping any pages yet
/// (spec.md §4.3 "push_mmap_area", §4.6 "pages remain unallocated until
/// first touch").
func (ms *MemorySet_t) PushMmapArea(vpnStart, npages int, perm mem.Pa_t, flags int, file MmapFile_i, off int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.Mmap = append(ms.Mmap, &MmapArea_t{
		VpnStart: vpnStart, Npages: npages, Perm: perm, Flags: flags,
		File: file, FileOff: off, Frames: make(map[int]*mem.FrameTracker_t),
	})
}

/// RemoveMmapAreaWithStartVpn unmaps and releases the mmap region beginning
/// at vpnStart.
func (ms *MemorySet_t) RemoveMmapAreaWithStartVpn(vpnStart int) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, a := range ms.Mmap {
		if a.VpnStart == vpnStart {
			for pgi := range a.Frames {
				va := mem.Va_t((a.VpnStart + pgi) << mem.PGSHIFT)
				ms.PT.Unmap(va)
			}
			for _, ft := range a.Frames {
				ft.Drop()
			}
			ms.Mmap = append(ms.Mmap[:i], ms.Mmap[i+1:]...)
			return true
		}
	}
	return false
}

func (ms *MemorySet_t) findMmap(va mem.Va_t) *MmapArea_t {
	vpn := int(mem.VPN(va))
	for _, a := range ms.Mmap {
		if vpn >= a.VpnStart && vpn < a.VpnStart+a.Npages {
			return a
		}
	}
	return nil
}

/// InsertHeapDataframe allocates and records one zeroed heap page at addr
/// iff addr lies in [HeapBase, HeapTop) (spec.md §4.3
/// "insert_heap_dataframe"). It is idempotent: a page already present is
/// left alone, matching the "two threads simultaneously faulted" race in
/// spec.md §4.4.
func (ms *MemorySet_t) InsertHeapDataframe(addr mem.Va_t) defs.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if addr < ms.HeapBase || addr >= ms.HeapTop {
		return -defs.EFAULT
	}
	vpn := int(mem.VPN(addr))
	base := int(mem.VPN(ms.HeapBase))
	idx := vpn - base
	if _, ok := ms.HeapFrames[idx]; ok {
		return 0
	}
	ft, ok := mem.Physmem.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	va := mem.Va_t(vpn << mem.PGSHIFT)
	ms.PT.Map(va, ft.Pa(), mem.PTE_U|mem.PTE_R|mem.PTE_W)
	ms.HeapFrames[idx] = ft
	return 0
}

/// RemoveHeapDataframes drops every heap page whose vpn falls in
/// [newTop, prevTop) -- spec.md §4.3 "remove_heap_dataframes", used when
/// brk() shrinks the heap.
func (ms *MemorySet_t) RemoveHeapDataframes(prevTop, newTop mem.Va_t) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	base := int(mem.VPN(ms.HeapBase))
	lo := int(mem.VPN(newTop))
	hi := int(mem.VPN(prevTop))
	if mem.Pgrounddown(int(newTop)) != int(newTop) {
		lo++ // keep the partial page at newTop itself
	}
	for vpn := lo; vpn < hi; vpn++ {
		idx := vpn - base
		ft, ok := ms.HeapFrames[idx]
		if !ok {
			continue
		}
		ms.PT.Unmap(mem.Va_t(vpn << mem.PGSHIFT))
		ft.Drop()
		delete(ms.HeapFrames, idx)
	}
}

/// NofHeapFrames reports the number of currently-backed heap pages --
/// used by tests to verify the lazy-allocation invariant of spec.md §8.
func (ms *MemorySet_t) NofHeapFrames() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.HeapFrames)
}
