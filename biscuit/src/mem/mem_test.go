package mem

import "testing"

func setup(t *testing.T) {
	t.Helper()
	Init(256, 0, 0)
}

func TestAllocatorConservation(t *testing.T) {
	setup(t)
	var live []*FrameTracker_t
	for i := 0; i < 10; i++ {
		ft, ok := Physmem.Alloc()
		if !ok {
			t.Fatalf("alloc %d failed", i)
		}
		live = append(live, ft)
	}
	if n := Physmem.Nlive(); n != 10 {
		t.Fatalf("expected 10 live frames, got %d", n)
	}
	pas := make(map[Pa_t]bool)
	for _, ft := range live {
		if pas[ft.Pa()] {
			t.Fatalf("frame %#x allocated twice", ft.Pa())
		}
		pas[ft.Pa()] = true
	}
	for _, ft := range live {
		ft.Drop()
	}
	if n := Physmem.Nlive(); n != 0 {
		t.Fatalf("expected 0 live frames after drop, got %d", n)
	}
}

func TestAllocatorDoubleFreePanics(t *testing.T) {
	setup(t)
	ft, _ := Physmem.Alloc()
	ft.Drop()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double free")
		}
	}()
	ft.Drop()
}

func TestAllocatorSkipsReservedWindow(t *testing.T) {
	RamInit(16)
	Physmem.mu.Lock()
	Physmem.bump = 0
	Physmem.top = Pa_t(16 * PGSIZE)
	Physmem.free = nil
	Physmem.resStart = Pa_t(2 * PGSIZE)
	Physmem.resEnd = Pa_t(5 * PGSIZE)
	Physmem.live = make(map[Pa_t]bool)
	Physmem.mu.Unlock()

	for i := 0; i < 2; i++ {
		ft, ok := Physmem.Alloc()
		if !ok || ft.Pa() >= Physmem.resStart {
			t.Fatalf("unexpected frame before reserved window: %#x", ft.Pa())
		}
	}
	ft, ok := Physmem.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	if ft.Pa() >= Physmem.resStart && ft.Pa() < Physmem.resEnd {
		t.Fatalf("allocator handed out frame inside reserved window: %#x", ft.Pa())
	}
}

func TestPageTableMapTranslateUnmap(t *testing.T) {
	setup(t)
	pt, rootFt, ok := NewPagetable(Physmem)
	if !ok {
		t.Fatalf("could not allocate root page table")
	}
	defer rootFt.Drop()

	dataFt, ok := Physmem.Alloc()
	if !ok {
		t.Fatalf("could not allocate data frame")
	}
	defer dataFt.Drop()

	va := Va_t(0x1000)
	perm := PTE_R | PTE_W | PTE_U
	if !pt.Map(va, dataFt.Pa(), perm) {
		t.Fatalf("map failed")
	}
	pte, ok := pt.Translate(va)
	if !ok {
		t.Fatalf("translate failed after map")
	}
	if pte.Pa() != dataFt.Pa() {
		t.Fatalf("translate returned wrong frame: got %#x want %#x", pte.Pa(), dataFt.Pa())
	}
	if pte.Perm()&(PTE_R|PTE_W|PTE_U) != perm {
		t.Fatalf("translate returned wrong permissions: %#x", pte.Perm())
	}

	pa := pt.Unmap(va)
	if pa != dataFt.Pa() {
		t.Fatalf("unmap returned wrong frame")
	}
	if _, ok := pt.Translate(va); ok {
		t.Fatalf("translate succeeded after unmap")
	}
}

func TestPageTableDoubleMapPanics(t *testing.T) {
	setup(t)
	pt, rootFt, _ := NewPagetable(Physmem)
	defer rootFt.Drop()
	dataFt, _ := Physmem.Alloc()
	defer dataFt.Drop()
	va := Va_t(0x2000)
	pt.Map(va, dataFt.Pa(), PTE_R)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double map")
		}
	}()
	pt.Map(va, dataFt.Pa(), PTE_R)
}

func TestPageTableUnmapInvalidPanics(t *testing.T) {
	setup(t)
	pt, rootFt, _ := NewPagetable(Physmem)
	defer rootFt.Drop()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unmap of invalid page")
		}
	}()
	pt.Unmap(Va_t(0x3000))
}
