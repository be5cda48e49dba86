// Package fdops declares the interfaces that every kind of open file
// descriptor (a VFS file, a pipe end, stdin/stdout, a device) implements, so
// that the syscall layer and the fd table never need to know which kind of
// descriptor they're holding.
package fdops

import "defs"
import "stat"

/// Userio_i abstracts a destination/source buffer for a read or write --
/// either an in-kernel byte slice (used from host-side tests and tools)
/// or a user address range translated through the owning address space's
/// page table (package syscall's userIO_t, via
/// mem.Pagetable_t.TranslateLazy).
type Userio_i interface {
	/// Uioread copies into dst from the underlying source, returning the
	/// number of bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	/// Uiowrite copies from src into the underlying destination.
	Uiowrite(src []uint8) (int, defs.Err_t)
	/// Remain reports how many bytes are left to transfer.
	Remain() int
	/// Totalsz reports the full requested transfer size.
	Totalsz() int
}

/// Fdops_i is implemented by every open-file kind: vfs.OSFile_t, pipe ends,
/// and the stdio/device stubs.
type Fdops_i interface {
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Fstat(st *stat.Stat_t) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
	Getdents(dst Userio_i) (int, defs.Err_t)
	Pathi() string
}

// Lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

/// Pollmsg_t/Ready_t model the blocking-readiness handshake used by pipes
/// and stdin: a waiter registers a Pollmsg_t and is later woken when the
/// polled object transitions into one of the Ready_t bits.
type Ready_t uint8

const (
	R_READ  Ready_t = 1 << 0
	R_WRITE Ready_t = 1 << 1
	R_HUP   Ready_t = 1 << 2
	R_ERROR Ready_t = 1 << 3
)

/// Pollmsg_t names the events a waiter cares about.
type Pollmsg_t struct {
	Events Ready_t
}

/// Pollable_i is implemented by descriptors that can be waited on
/// (spec.md §4.13's pipe blocking semantics).
type Pollable_i interface {
	Pollone(pm Pollmsg_t) (Ready_t, defs.Err_t)
}
