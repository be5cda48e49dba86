package main

import "defs"

// fakeIO_t adapts a host-memory byte slice to fdops.Userio_i so the boot
// sequence can pull the init binary's bytes out of the mounted filesystem
// before any user address space exists to translate through -- the same
// role biscuit/src/mkfs's own fakeIO_t plays on the image-writing side.
type fakeIO_t struct {
	buf []byte
	off int
}

func newFakeIO(buf []byte) *fakeIO_t { return &fakeIO_t{buf: buf} }

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
