package vfs

import (
	"circbuf"
	"defs"
	"fdops"
	"sbi"
	"stat"
)

// lf/cr are the line-terminator bytes Stdin_t folds into a single CR
// byte, per original_source/os/src/fs/stdio.rs: a line typed as "...\n"
// or "...\r" is delivered to the reader as "...\r".
const (
	lf = 0x0a
	cr = 0x0d
)

// lineBufCap bounds a single typed line to one circbuf.Circbuf_t page
// (circbuf.Cb_init panics above mem.PGSIZE); a console line longer than
// that is not truncated: Read stops pulling characters once the buffer
// is full and the rest of the line arrives in later reads.
const lineBufCap = 4096

/// Stdin_t is the console-input device stub (spec.md §4.12 "Stdin
/// (blocking on SBI console getchar, translating LF/CR)"), grounded on
/// stdio.rs's Stdin::read: each call assembles one line, translating its
/// terminator to a single CR and stopping there. Lines are assembled into
/// a circbuf.Circbuf_t rather than written straight to dst a character at
/// a time -- a single console has exactly one reader daemon at a time,
/// the "not safe for concurrent use" case circbuf's own doc comment
/// describes (package pipe keeps its own 128 KiB ring instead, larger
/// than one circbuf page).
type Stdin_t struct {
	console sbi.Console_i
	line    circbuf.Circbuf_t
}

func NewStdin(console sbi.Console_i) *Stdin_t {
	s := &Stdin_t{console: console}
	s.line.Cb_init(lineBufCap)
	return s
}

// byteIO_t adapts a single in-memory byte to fdops.Userio_i so Stdin_t can
// feed one console character at a time into its line circbuf.
type byteIO_t struct {
	buf [1]byte
	off int
}

func (b *byteIO_t) Remain() int  { return 1 - b.off }
func (b *byteIO_t) Totalsz() int { return 1 }

func (b *byteIO_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b.buf[b.off:])
	b.off += n
	return n, 0
}

func (b *byteIO_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(b.buf[b.off:], src)
	b.off += n
	return n, 0
}

func (s *Stdin_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	for !s.line.Full() {
		c, ok := s.console.GetChar()
		if !ok {
			break // console closed/EOF
		}
		if c == lf || c == cr {
			c = cr
		}
		one := &byteIO_t{buf: [1]byte{c}}
		if _, err := s.line.Copyin(one); err != 0 {
			return 0, err
		}
		if c == cr {
			break
		}
	}
	return s.line.Copyout(dst)
}

func (s *Stdin_t) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EBADF }
func (s *Stdin_t) Fstat(st *stat.Stat_t) defs.Err_t           { st.Wmode(sCharDev); return 0 }
func (s *Stdin_t) Lseek(off, whence int) (int, defs.Err_t)    { return 0, -defs.ESPIPE }
func (s *Stdin_t) Close() defs.Err_t                          { return 0 }
func (s *Stdin_t) Reopen() defs.Err_t                         { return 0 }
func (s *Stdin_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (s *Stdin_t) Pathi() string { return "/dev/stdin" }

/// Stdout_t is the console-output device stub (stdio.rs's Stdout::write:
/// prints each buffer segment as-is).
type Stdout_t struct {
	console sbi.Console_i
}

func NewStdout(console sbi.Console_i) *Stdout_t { return &Stdout_t{console: console} }

func (s *Stdout_t) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EBADF }

func (s *Stdout_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	for _, c := range buf[:n] {
		s.console.PutChar(c)
	}
	return n, 0
}

func (s *Stdout_t) Fstat(st *stat.Stat_t) defs.Err_t        { st.Wmode(sCharDev); return 0 }
func (s *Stdout_t) Lseek(off, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (s *Stdout_t) Close() defs.Err_t                        { return 0 }
func (s *Stdout_t) Reopen() defs.Err_t                       { return 0 }
func (s *Stdout_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (s *Stdout_t) Pathi() string { return "/dev/stdout" }

// sCharDev is S_IFCHR's mode bit (0o020000), reported through Fstat.
const sCharDev = 0o020000
