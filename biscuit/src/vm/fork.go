package vm

import "mem"

// ForkFrom duplicates every mapped byte of src into a brand new address
// space (spec.md §4.3 item 3, and the explicit Non-goal "No copy-on-write
// in this core": fork always performs a full physical copy, never shares
// frames between parent and child).

/// ForkFrom builds a new MemorySet_t that is a byte-for-byte copy of src:
/// every framed area, every already-materialized mmap/heap page gets a
/// fresh frame with the same contents; unmaterialized mmap/heap pages stay
/// unmaterialized in the child and will fault independently.
func ForkFrom(src *MemorySet_t) (*MemorySet_t, bool) {
	src.mu.Lock()
	defer src.mu.Unlock()

	dst, ok := newEmptyMemorySet()
	if !ok {
		return nil, false
	}
	dst.HeapBase = src.HeapBase
	dst.HeapTop = src.HeapTop
	dst.MmapTop = src.MmapTop

	for _, a := range src.Framed {
		na := &FramedArea_t{VpnStart: a.VpnStart, Npages: a.Npages, Perm: a.Perm, Mtype: a.Mtype,
			Frames: make(map[int]*mem.FrameTracker_t, len(a.Frames))}
		if a.Mtype == MIdentity {
			for i := 0; i < a.Npages; i++ {
				va := mem.Va_t((a.VpnStart + i) << mem.PGSHIFT)
				pa := a.VpnStart // identity: pa == vpn<<shift
				dst.PT.Map(va, mem.Pa_t((pa+i)<<mem.PGSHIFT), a.Perm)
			}
			dst.Framed = append(dst.Framed, na)
			continue
		}
		for i := 0; i < a.Npages; i++ {
			srcFt, ok := a.Frames[i]
			if !ok {
				continue
			}
			dstFt, ok := mem.Physmem.AllocNoZero()
			if !ok {
				unwindFork(dst)
				return nil, false
			}
			copy(mem.Dmap(dstFt.Pa())[:], mem.Dmap(srcFt.Pa())[:])
			va := mem.Va_t((a.VpnStart + i) << mem.PGSHIFT)
			dst.PT.Map(va, dstFt.Pa(), a.Perm|mem.PTE_U)
			na.Frames[i] = dstFt
		}
		dst.Framed = append(dst.Framed, na)
	}

	for idx, ft := range src.HeapFrames {
		dstFt, ok := mem.Physmem.AllocNoZero()
		if !ok {
			unwindFork(dst)
			return nil, false
		}
		copy(mem.Dmap(dstFt.Pa())[:], mem.Dmap(ft.Pa())[:])
		vpn := int(mem.VPN(src.HeapBase)) + idx
		dst.PT.Map(mem.Va_t(vpn<<mem.PGSHIFT), dstFt.Pa(), mem.PTE_U|mem.PTE_R|mem.PTE_W)
		dst.HeapFrames[idx] = dstFt
	}

	for _, a := range src.Mmap {
		na := &MmapArea_t{VpnStart: a.VpnStart, Npages: a.Npages, Perm: a.Perm, Flags: a.Flags,
			File: a.File, FileOff: a.FileOff, Frames: make(map[int]*mem.FrameTracker_t, len(a.Frames))}
		for idx, ft := range a.Frames {
			if !a.Anonymous() {
				// file-backed pages are re-derived from the cache on the
				// child's own first touch rather than copied.
				continue
			}
			dstFt, ok := mem.Physmem.AllocNoZero()
			if !ok {
				unwindFork(dst)
				return nil, false
			}
			copy(mem.Dmap(dstFt.Pa())[:], mem.Dmap(ft.Pa())[:])
			vpn := a.VpnStart + idx
			dst.PT.Map(mem.Va_t(vpn<<mem.PGSHIFT), dstFt.Pa(), a.Perm|mem.PTE_U)
			na.Frames[idx] = dstFt
		}
		dst.Mmap = append(dst.Mmap, na)
	}

	if src.trampolinePa != 0 {
		dst.MapTrampoline(src.trampolinePa)
	}

	return dst, true
}

func unwindFork(dst *MemorySet_t) {
	for _, a := range dst.Framed {
		for _, ft := range a.Frames {
			ft.Drop()
		}
	}
	for _, ft := range dst.HeapFrames {
		ft.Drop()
	}
	for _, a := range dst.Mmap {
		for _, ft := range a.Frames {
			ft.Drop()
		}
	}
	dst.rootFt.Drop()
}
