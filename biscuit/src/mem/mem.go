// Package mem implements the physical frame allocator and models physical
// memory as a single simulated RAM arena (spec.md §4.1), plus (in
// pagetable.go) the Sv39 page-table engine (spec.md §4.2).
//
// The teacher kernel (biscuit) gets its physical-address space for free
// from a patched Go runtime running on bare x86-64 hardware
// (runtime.Get_phys/runtime.Cpuid in the pack's mem/dmap.go). This core
// targets ordinary `go build` with no such runtime fork, so physical
// memory is instead a plain byte arena addressed by Pa_t offset -- the same
// "direct map" idea the teacher uses (mem.Physmem.Dmap), just backed by a
// Go slice instead of a hardware recursive mapping.
package mem

import (
	"sync"
	"unsafe"
)

/// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks the offset within a page.
const PGOFFSET Pa_t = Pa_t(PGSIZE) - 1

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^PGOFFSET

/// Pa_t is a physical address.
type Pa_t uintptr

/// Va_t is a user or kernel virtual address.
type Va_t uintptr

/// Pg_t is a page-sized array of bytes, the unit the frame allocator hands
/// out.
type Pg_t [PGSIZE]byte

/// VPN extracts the page number (address >> 12) from a virtual address.
func VPN(va Va_t) uintptr { return uintptr(va) >> PGSHIFT }

/// PPN extracts the page number from a physical address.
func PPN(pa Pa_t) uintptr { return uintptr(pa) >> PGSHIFT }

/// Pgroundup rounds n up to the next page boundary.
func Pgroundup(n int) int { return (n + PGSIZE - 1) &^ (PGSIZE - 1) }

/// Pgrounddown rounds n down to the previous page boundary.
func Pgrounddown(n int) int { return n &^ (PGSIZE - 1) }

// ram_t is the simulated physical memory arena. A real RISC-V kernel reads
// and writes physical pages directly since it runs with the MMU off (or
// with an identity map) during early boot; here the same access pattern is
// expressed as indexing into a Go byte slice.
type ram_t struct {
	bytes []byte
	base  Pa_t
}

var ram ram_t

/// RamInit sizes the simulated physical memory arena. Must be called once,
/// before the frame allocator hands out any frame.
func RamInit(npages int) {
	ram.bytes = make([]byte, npages*PGSIZE)
	ram.base = 0
}

/// Dmap returns a pointer to the page-sized region backing pa. It panics if
/// pa falls outside the simulated arena -- the equivalent of a hardware bus
/// error.
func Dmap(pa Pa_t) *Pg_t {
	off := pa - ram.base
	if off < 0 || int(off)+PGSIZE > len(ram.bytes) {
		panic("mem: physical address out of range")
	}
	return (*Pg_t)(unsafe.Pointer(&ram.bytes[off]))
}

/// Dmap8 returns a byte slice view of pa through the end of its page.
func Dmap8(pa Pa_t) []uint8 {
	off := pa & PGOFFSET
	pg := Dmap(pa &^ PGOFFSET)
	return pg[off:]
}

// Allocator_t is the single global frame allocator described in spec.md
// §4.1: a bump pointer plus a recycle stack, both behind one mutex, with a
// reserved window (the filesystem-image region, when the image is embedded
// in the same simulated RAM as the kernel) skipped during bump allocation.
type Allocator_t struct {
	mu       sync.Mutex
	bump     Pa_t          // next never-yet-allocated frame
	top      Pa_t          // one past the last usable frame
	free     []Pa_t        // recycle stack
	resStart Pa_t          // start of the reserved (skipped) window, inclusive
	resEnd   Pa_t          // end of the reserved window, exclusive
	live     map[Pa_t]bool // debug: currently-allocated frames
}

/// Physmem is the kernel's single global frame allocator.
var Physmem = &Allocator_t{}

/// Init configures the allocator over the given simulated RAM and marks
/// [resStart, resEnd) as forbidden to the bump allocator (the filesystem
/// image window).
func Init(npages int, resStart, resEnd Pa_t) {
	RamInit(npages)
	Physmem.mu.Lock()
	defer Physmem.mu.Unlock()
	Physmem.bump = 0
	Physmem.top = Pa_t(npages * PGSIZE)
	Physmem.free = nil
	Physmem.resStart = resStart
	Physmem.resEnd = resEnd
	Physmem.live = make(map[Pa_t]bool)
}

// FrameTracker_t owns exactly one physical frame. Rust's ownership model
// frees the frame automatically when the tracker's scope ends; Go has no
// deterministic destructors, so callers must call Drop explicitly (the
// kernel's region-removal and thread-teardown paths always do, never
// relying on the garbage collector for correctness).
type FrameTracker_t struct {
	pa    Pa_t
	freed bool
}

/// Pa returns the physical frame this tracker owns.
func (ft *FrameTracker_t) Pa() Pa_t { return ft.pa }

/// Drop returns the frame to the allocator. It panics on double-drop,
/// matching spec.md §4.1's "duplicate deallocation is fatal".
func (ft *FrameTracker_t) Drop() {
	if ft.freed {
		panic("mem: double free of frame tracker")
	}
	ft.freed = true
	Physmem.dealloc(ft.pa)
}

/// Alloc hands out one zeroed physical frame as a FrameTracker_t, or
/// reports failure on exhaustion.
func (a *Allocator_t) Alloc() (*FrameTracker_t, bool) {
	pa, ok := a.allocRaw()
	if !ok {
		return nil, false
	}
	pg := Dmap(pa)
	for i := range pg {
		pg[i] = 0
	}
	return &FrameTracker_t{pa: pa}, true
}

/// AllocNoZero is Alloc without zeroing, for callers about to overwrite the
/// whole page anyway (e.g. fork's byte-for-byte region copy).
func (a *Allocator_t) AllocNoZero() (*FrameTracker_t, bool) {
	pa, ok := a.allocRaw()
	if !ok {
		return nil, false
	}
	return &FrameTracker_t{pa: pa}, true
}

func (a *Allocator_t) allocRaw() (Pa_t, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		pa := a.free[n-1]
		a.free = a.free[:n-1]
		a.live[pa] = true
		return pa, true
	}
	for a.bump >= a.resStart && a.bump < a.resEnd {
		a.bump += Pa_t(PGSIZE)
	}
	if a.bump >= a.top {
		return 0, false
	}
	pa := a.bump
	a.bump += Pa_t(PGSIZE)
	a.live[pa] = true
	return pa, true
}

func (a *Allocator_t) dealloc(pa Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live[pa] {
		panic("mem: dealloc of frame not currently allocated")
	}
	delete(a.live, pa)
	a.free = append(a.free, pa)
}

/// Nlive reports the number of frames currently allocated -- used by tests
/// to verify the conservation invariant of spec.md §8.
func (a *Allocator_t) Nlive() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
