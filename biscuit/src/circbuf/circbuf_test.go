package circbuf

import (
	"testing"

	"defs"
	"mem"
)

type sliceUio struct {
	buf []byte
	pos int
}

func (s *sliceUio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, s.buf[s.pos:])
	s.pos += n
	return n, 0
}

func (s *sliceUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	s.buf = append(s.buf, src...)
	return len(src), 0
}

func (s *sliceUio) Remain() int  { return len(s.buf) - s.pos }
func (s *sliceUio) Totalsz() int { return len(s.buf) }

func setup(t *testing.T) {
	t.Helper()
	mem.Init(8, 0, 0)
}

func TestCopyinCopyoutRoundtrip(t *testing.T) {
	setup(t)
	var cb Circbuf_t
	cb.Cb_init(64)

	src := &sliceUio{buf: []byte("hello world")}
	n, err := cb.Copyin(src)
	if err != 0 || n != len(src.buf) {
		t.Fatalf("Copyin = %d, %d, want %d, 0", n, err, len(src.buf))
	}
	if cb.Used() != len(src.buf) {
		t.Fatalf("Used() = %d, want %d", cb.Used(), len(src.buf))
	}

	dst := &sliceUio{}
	n, err = cb.Copyout(dst)
	if err != 0 || n != len("hello world") {
		t.Fatalf("Copyout = %d, %d", n, err)
	}
	if string(dst.buf) != "hello world" {
		t.Fatalf("roundtrip mismatch: got %q", dst.buf)
	}
	if !cb.Empty() {
		t.Fatalf("expected buffer empty after full copyout")
	}
}

func TestFullBufferRejectsCopyin(t *testing.T) {
	setup(t)
	var cb Circbuf_t
	cb.Cb_init(8)
	src := &sliceUio{buf: make([]byte, 8)}
	if _, err := cb.Copyin(src); err != 0 {
		t.Fatalf("Copyin failed: %d", err)
	}
	if !cb.Full() {
		t.Fatalf("expected buffer full")
	}
	n, err := cb.Copyin(&sliceUio{buf: []byte("x")})
	if err != 0 || n != 0 {
		t.Fatalf("expected a no-op copyin on a full buffer, got n=%d err=%d", n, err)
	}
}

func TestWraparoundCopy(t *testing.T) {
	setup(t)
	var cb Circbuf_t
	cb.Cb_init(8)
	cb.Copyin(&sliceUio{buf: []byte("abcdef")}) // head=6 tail=0
	cb.Copyout_n(&sliceUio{}, 4)                 // tail=4, 2 bytes remain (ef)
	// now write 6 more bytes -- this wraps around the 8-byte buffer
	n, err := cb.Copyin(&sliceUio{buf: []byte("ghijkl")})
	if err != 0 {
		t.Fatalf("Copyin failed: %d", err)
	}
	if n != 6 {
		t.Fatalf("expected to fit exactly 6 bytes (2 left + 6 free), got %d", n)
	}
	dst := &sliceUio{}
	cb.Copyout(dst)
	if string(dst.buf) != "efghijkl" {
		t.Fatalf("wraparound mismatch: got %q", dst.buf)
	}
}

func TestCbReleaseDropsFrame(t *testing.T) {
	setup(t)
	var cb Circbuf_t
	cb.Cb_init(16)
	cb.Cb_ensure()
	if mem.Physmem.Nlive() != 1 {
		t.Fatalf("expected one live frame, got %d", mem.Physmem.Nlive())
	}
	cb.Cb_release()
	if mem.Physmem.Nlive() != 0 {
		t.Fatalf("expected frame released, got %d live", mem.Physmem.Nlive())
	}
}
