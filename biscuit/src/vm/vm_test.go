package vm

import (
	"testing"

	"defs"
	"mem"
)

func setup(t *testing.T) {
	t.Helper()
	mem.Init(512, 0, 0)
}

func freshSet(t *testing.T) *MemorySet_t {
	t.Helper()
	ms, ok := newEmptyMemorySet()
	if !ok {
		t.Fatalf("could not allocate address space")
	}
	return ms
}

func TestHeapLazyFaultMaterializesOnePage(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	ms.HeapBase = 0x10000000
	ms.HeapTop = ms.HeapBase + mem.Va_t(4*mem.PGSIZE)

	addr := ms.HeapBase + 10
	if _, ok := ms.PT.Translate(addr); ok {
		t.Fatalf("heap page materialized before any fault")
	}
	pte, err := ms.PT.TranslateLazy(addr, ms)
	if err != 0 {
		t.Fatalf("lazy translate failed: %d", err)
	}
	if pte.Perm()&mem.PTE_W == 0 {
		t.Fatalf("heap page not writable")
	}
	if n := ms.NofHeapFrames(); n != 1 {
		t.Fatalf("expected 1 heap frame, got %d", n)
	}

	// second fault on a different byte of the same page must not allocate twice
	if _, err := ms.PT.TranslateLazy(ms.HeapBase+11, ms); err != 0 {
		t.Fatalf("re-translate failed: %d", err)
	}
	if n := ms.NofHeapFrames(); n != 1 {
		t.Fatalf("expected still 1 heap frame, got %d", n)
	}
}

func TestHeapFaultOutsideRangeFails(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	ms.HeapBase = 0x10000000
	ms.HeapTop = ms.HeapBase + mem.Va_t(mem.PGSIZE)

	if err := ms.CheckLazy(ms.HeapTop + 1); err != -defs.EFAULT {
		t.Fatalf("expected EFAULT outside heap range, got %d", err)
	}
}

func TestNullDerefNeverLazy(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	ms.HeapBase = 0
	ms.HeapTop = mem.Va_t(mem.PGSIZE) * 4
	if err := ms.CheckLazy(0); err != -defs.EFAULT {
		t.Fatalf("expected EFAULT on null deref, got %d", err)
	}
}

func TestGrowHeapShrinkDropsFrames(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	ms.HeapBase = 0x20000000
	ms.HeapTop = ms.HeapBase + mem.Va_t(4*mem.PGSIZE)

	for i := 0; i < 4; i++ {
		addr := ms.HeapBase + mem.Va_t(i*mem.PGSIZE)
		if err := ms.InsertHeapDataframe(addr); err != 0 {
			t.Fatalf("insert heap frame %d failed: %d", i, err)
		}
	}
	if n := ms.NofHeapFrames(); n != 4 {
		t.Fatalf("expected 4 heap frames, got %d", n)
	}

	if err := ms.GrowHeap(ms.HeapBase + mem.Va_t(2*mem.PGSIZE)); err != 0 {
		t.Fatalf("shrink failed: %d", err)
	}
	if n := ms.NofHeapFrames(); n != 2 {
		t.Fatalf("expected 2 heap frames after shrink, got %d", n)
	}
}

func TestAnonMmapLazyFault(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	base, err := ms.Mmap(0, 3*mem.PGSIZE, mem.PTE_R|mem.PTE_W, defs.MAP_ANONYMOUS, nil, 0)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	if _, ok := ms.PT.Translate(base); ok {
		t.Fatalf("mmap page materialized before touch")
	}
	if _, err := ms.PT.TranslateLazy(base+5, ms); err != 0 {
		t.Fatalf("mmap lazy fault failed: %d", err)
	}
	if _, ok := ms.PT.Translate(base + mem.Va_t(mem.PGSIZE)); ok {
		t.Fatalf("untouched mmap page should not be materialized")
	}
}

type fakeFile struct {
	pa mem.Pa_t
}

func (f *fakeFile) CachedPage(off int) (mem.Pa_t, defs.Err_t) { return f.pa, 0 }

func TestFileBackedMmapUsesCachedPage(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	ft, ok := mem.Physmem.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	defer ft.Drop()
	copy(mem.Dmap(ft.Pa())[:], []byte("hello"))

	base, err := ms.Mmap(0, mem.PGSIZE, mem.PTE_R, 0, &fakeFile{pa: ft.Pa()}, 0)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	pte, err := ms.PT.TranslateLazy(base, ms)
	if err != 0 {
		t.Fatalf("lazy fault failed: %d", err)
	}
	if pte.Pa() != ft.Pa() {
		t.Fatalf("file-backed mapping points at wrong frame")
	}
}

func TestForkCopiesNotShares(t *testing.T) {
	setup(t)
	src := freshSet(t)
	if err := src.InsertFramedArea(0x1000/mem.PGSIZE, 1, mem.PTE_R|mem.PTE_W); err != 0 {
		t.Fatalf("insert failed: %d", err)
	}
	pte, _ := src.PT.Translate(mem.Va_t(0x1000))
	copy(mem.Dmap(pte.Pa())[:], []byte("parent"))

	dst, ok := ForkFrom(src)
	if !ok {
		t.Fatalf("fork failed")
	}
	dpte, ok := dst.PT.Translate(mem.Va_t(0x1000))
	if !ok {
		t.Fatalf("child missing forked page")
	}
	if dpte.Pa() == pte.Pa() {
		t.Fatalf("fork shared a physical frame instead of copying (no-COW violation)")
	}
	childPg := mem.Dmap(dpte.Pa())
	if string(childPg[:6]) != "parent" {
		t.Fatalf("fork did not copy page contents")
	}

	// mutating the child must not affect the parent
	childPg[0] = 'X'
	parentPg := mem.Dmap(pte.Pa())
	if parentPg[0] == 'X' {
		t.Fatalf("child write leaked into parent frame")
	}
}

func TestRemoveAreaDropsFrames(t *testing.T) {
	setup(t)
	ms := freshSet(t)
	vpn := 0x5000 / mem.PGSIZE
	if err := ms.InsertFramedArea(vpn, 2, mem.PTE_R|mem.PTE_W); err != 0 {
		t.Fatalf("insert failed: %d", err)
	}
	before := mem.Physmem.Nlive()
	if !ms.RemoveAreaWithStartVpn(vpn) {
		t.Fatalf("remove did not find area")
	}
	if n := mem.Physmem.Nlive(); n != before-2 {
		t.Fatalf("expected 2 frames freed, live went from %d to %d", before, n)
	}
	if _, ok := ms.PT.Translate(mem.Va_t(vpn * mem.PGSIZE)); ok {
		t.Fatalf("page still mapped after remove")
	}
}
