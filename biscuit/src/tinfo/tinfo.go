// Package tinfo tracks the per-thread kill/doom bookkeeping spec.md §4.6
// associates with a running thread (original_source's TaskControlBlockInner
// kill flag plus the teacher's own Tnote_t). The teacher locates the
// current thread's note through a goroutine-local pointer installed via a
// patched Go runtime (runtime.Gptr/Setgptr); this core's threads are the
// kernel's own cooperatively-scheduled Tid_t values, not OS goroutines, so
// the note is instead looked up by Tid_t against a package-level registry
// -- the same bookkeeping, addressed the idiomatic-Go way for a thread
// model that already carries its identifier everywhere it matters.
package tinfo

import (
	"sync"

	"defs"
)

/// Tnote_t stores per-thread state a kill/signal path needs to observe or
/// set without going through the full TCB.
type Tnote_t struct {
	Alive    bool
	Killed   bool
	Isdoomed bool

	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t tracks every live thread's note, keyed by tid.
type Threadinfo_t struct {
	mu    sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// registry is the single system-wide thread-note table (the teacher's
// goroutine-local pointer, addressed by tid instead of by goroutine).
var registry = Threadinfo_t{Notes: make(map[defs.Tid_t]*Tnote_t)}

/// Current returns tid's thread note, panicking if none is installed.
func Current(tid defs.Tid_t) *Tnote_t {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	n, ok := registry.Notes[tid]
	if !ok {
		panic("tinfo: no note installed for tid")
	}
	return n
}

/// SetCurrent installs n as tid's thread note.
func SetCurrent(tid defs.Tid_t, n *Tnote_t) {
	if n == nil {
		panic("tinfo: nil note")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.Notes[tid]; ok {
		panic("tinfo: note already installed for tid")
	}
	registry.Notes[tid] = n
}

/// ClearCurrent removes tid's thread note.
func ClearCurrent(tid defs.Tid_t) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.Notes[tid]; !ok {
		panic("tinfo: no note installed for tid")
	}
	delete(registry.Notes, tid)
}
