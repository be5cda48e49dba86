// Package syscall (module ksyscall) implements the syscall dispatcher of
// spec.md §6: Sys_t satisfies trap.Dispatcher_i, decoding the six ecall
// argument registers and routing to a per-family handler that drives
// package proc/vfs/pipe/trap.
//
// Grounded on original_source/os/src/syscall/mod.rs's syscall() match and
// the teacher's own vm/userbuf.go (Userbuf_t): a user pointer is not a Go
// slice, so every handler that touches user memory goes through a small
// Userio_i adapter that walks the calling thread's page table one page at
// a time, materializing lazy pages as it goes (mem.Pagetable_t.TranslateLazy)
// the same way Userbuf_t's _tx loop called Vm_t.Userdmap8_inner per page.
package syscall

import (
	"defs"
	"fdops"
	"mem"
	"vm"
)

/// userIO_t adapts a [base, base+len) span of a thread's user virtual
/// address space to fdops.Userio_i, so vfs/pipe read and write paths can
/// consume it exactly like any other Fdops_i caller.
type userIO_t struct {
	ms   *vm.MemorySet_t
	base mem.Va_t
	len  int
	off  int
}

/// newUserIO builds a userIO_t over ms's address space spanning [base,
/// base+length).
func newUserIO(ms *vm.MemorySet_t, base mem.Va_t, length int) *userIO_t {
	return &userIO_t{ms: ms, base: base, len: length}
}

func (u *userIO_t) Remain() int  { return u.len - u.off }
func (u *userIO_t) Totalsz() int { return u.len }

// pagePtr returns a byte slice covering the remainder of the page
// containing the VA at the current offset, materializing the page via
// TranslateLazy if it is not yet mapped.
func (u *userIO_t) pagePtr() ([]uint8, defs.Err_t) {
	va := u.base + mem.Va_t(u.off)
	pte, err := u.ms.PT.TranslateLazy(va, u.ms)
	if err != 0 {
		return nil, err
	}
	pa := pte.Pa() + mem.Pa_t(va&mem.Va_t(mem.PGOFFSET))
	return mem.Dmap8(pa), 0
}

// tx copies buf to (write==true) or from (write==false) the user range,
// one page at a time, returning the number of bytes moved.
func (u *userIO_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	moved := 0
	for len(buf) > 0 && u.off < u.len {
		page, err := u.pagePtr()
		if err != 0 {
			return moved, err
		}
		n := len(page)
		if n > len(buf) {
			n = len(buf)
		}
		if left := u.len - u.off; n > left {
			n = left
		}
		if write {
			copy(page[:n], buf[:n])
		} else {
			copy(buf[:n], page[:n])
		}
		buf = buf[n:]
		u.off += n
		moved += n
	}
	return moved, 0
}

/// Uioread copies FROM user memory INTO dst (a write(2) pulls the
/// user-supplied buffer out this way).
func (u *userIO_t) Uioread(dst []uint8) (int, defs.Err_t) { return u.tx(dst, false) }

/// Uiowrite copies FROM src INTO user memory (a read(2) pushes the
/// kernel-read bytes in this way).
func (u *userIO_t) Uiowrite(src []uint8) (int, defs.Err_t) { return u.tx(src, true) }

/// fakeIO_t wraps an ordinary kernel byte slice in fdops.Userio_i, for
/// syscalls that hand Fdops_i a kernel-resident buffer instead of a user
/// range (e.g. execve reading an ELF image), grounded on the teacher's
/// Fakeubuf_t.
type fakeIO_t struct {
	buf []uint8
	off int
}

func newFakeIO(buf []uint8) *fakeIO_t { return &fakeIO_t{buf: buf} }

func (f *fakeIO_t) Remain() int  { return len(f.buf) - f.off }
func (f *fakeIO_t) Totalsz() int { return len(f.buf) }

func (f *fakeIO_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, f.buf[f.off:])
	f.off += n
	return n, 0
}

func (f *fakeIO_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(f.buf[f.off:], src)
	f.off += n
	return n, 0
}

var _ fdops.Userio_i = (*userIO_t)(nil)
var _ fdops.Userio_i = (*fakeIO_t)(nil)

// copyInString reads a NUL-terminated string from user memory starting at
// va, up to maxlen bytes (bpath/ustr's path arguments).
func copyInString(ms *vm.MemorySet_t, va mem.Va_t, maxlen int) (string, defs.Err_t) {
	var out []byte
	for len(out) < maxlen {
		pte, err := ms.PT.TranslateLazy(va, ms)
		if err != 0 {
			return "", err
		}
		pa := pte.Pa() + mem.Pa_t(va&mem.Va_t(mem.PGOFFSET))
		page := mem.Dmap8(pa)
		for _, c := range page {
			if c == 0 {
				return string(out), 0
			}
			out = append(out, c)
			if len(out) >= maxlen {
				return "", -defs.ENAMETOOLONG
			}
		}
		va += mem.Va_t(len(page))
	}
	return "", -defs.ENAMETOOLONG
}

// copyInBytes reads exactly n bytes from user memory at va into a fresh
// kernel buffer (fixed-size structs: sigaction, timespec, stat requests
// going the other direction use copyOutBytes).
func copyInBytes(ms *vm.MemorySet_t, va mem.Va_t, n int) ([]byte, defs.Err_t) {
	buf := make([]byte, n)
	u := newUserIO(ms, va, n)
	if _, err := u.Uioread(buf); err != 0 {
		return nil, err
	}
	return buf, 0
}

// copyOutBytes writes buf to user memory at va.
func copyOutBytes(ms *vm.MemorySet_t, va mem.Va_t, buf []byte) defs.Err_t {
	if va == 0 {
		return 0
	}
	u := newUserIO(ms, va, len(buf))
	_, err := u.Uiowrite(buf)
	return err
}
