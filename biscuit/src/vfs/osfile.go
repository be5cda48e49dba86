package vfs

import (
	"sync"
	"time"

	"defs"
	"fat32"
	"fdops"
	"mem"
	"stat"
)

// Open flags this layer interprets, matching defs.O_* numerically
// (vfile.rs's OpenFlags, generalized from its bitflags! derivation).
const (
	openAccessMask = defs.O_WRONLY | defs.O_RDWR
)

func readWrite(flags int) (readable, writable bool) {
	switch flags & openAccessMask {
	case defs.O_RDONLY:
		return true, false
	case defs.O_WRONLY:
		return false, true
	default: // O_RDWR
		return true, true
	}
}

/// OSFile_t wraps a VFile with the per-open-instance (readable,
/// writable) bits and mutable (offset, atime, mtime) record (spec.md
/// §4.12 "Wraps a VFile with (readable, writable) bits and a mutable
/// (offset, atime, mtime) record", vfile.rs's OSFile/OSFileInner).
type OSFile_t struct {
	readable bool
	writable bool
	vfile    *VFile_t

	mu    sync.Mutex
	off   int
	atime int64
	mtime int64
}

func now() int64 { return time.Now().UnixNano() }

/// NewOSFile wraps vf for an open() call with the given flags; offset
/// starts at the file's end when O_APPEND is set.
func NewOSFile(vf *VFile_t, flags int) *OSFile_t {
	r, w := readWrite(flags)
	f := &OSFile_t{readable: r, writable: w, vfile: vf, atime: now(), mtime: now()}
	if flags&defs.O_APPEND != 0 {
		f.off = int(vf.Size())
	}
	return f
}

func (f *OSFile_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if !f.readable {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, dst.Remain())
	n, err := f.vfile.ReadAt(f.off, buf)
	if err != 0 {
		return 0, err
	}
	if n == 0 {
		return 0, 0
	}
	wn, err := dst.Uiowrite(buf[:n])
	if err != 0 {
		return 0, err
	}
	f.off += wn
	f.atime = now()
	return wn, 0
}

func (f *OSFile_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !f.writable {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	wn, err := f.vfile.WriteAt(f.off, buf[:n])
	if err != 0 {
		return wn, err
	}
	f.off += wn
	f.mtime = now()
	return wn, 0
}

func (f *OSFile_t) Fstat(st *stat.Stat_t) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := uint(0o644)
	if f.vfile.IsDir() {
		mode |= 0o040000
	} else {
		mode |= 0o100000
	}
	st.Wmode(mode)
	st.Wsize(uint(f.vfile.Size()))
	st.Wino(uint(f.vfile.FirstCluster()))
	return 0
}

func (f *OSFile_t) Lseek(off, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case fdops.SEEK_SET:
		f.off = off
	case fdops.SEEK_CUR:
		f.off += off
	case fdops.SEEK_END:
		f.off = int(f.vfile.Size()) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, -defs.EINVAL
	}
	return f.off, 0
}

func (f *OSFile_t) Close() defs.Err_t { return 0 }

func (f *OSFile_t) Reopen() defs.Err_t { return 0 }

func (f *OSFile_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	if !f.vfile.IsDir() {
		return 0, -defs.ENOTDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for {
		name, _, size, attr, ok, end, err := f.vfile.DirentInfo(f.off)
		if err != 0 {
			return total, err
		}
		if end {
			return total, 0
		}
		f.off += fat32.DirEntrySize
		if !ok {
			continue
		}
		rec := encodeDirent(name, size, attr)
		if dst.Remain() < len(rec) {
			f.off -= fat32.DirEntrySize
			return total, 0
		}
		n, err := dst.Uiowrite(rec)
		if err != 0 {
			return total, err
		}
		total += n
	}
}

func (f *OSFile_t) Pathi() string { return f.vfile.Name() }

/// CachedPage satisfies vm.MmapFile_i by delegating to the wrapped
/// VFile_t, so a file-backed mmap region can be given an open OSFile_t
/// directly instead of reaching past it for the VFile_t underneath.
func (f *OSFile_t) CachedPage(offset int) (mem.Pa_t, defs.Err_t) {
	return f.vfile.CachedPage(offset)
}

// encodeDirent renders one getdents64-style record: a NUL-terminated
// name followed by its FAT attribute byte and its size (a simplified,
// fixed-field rendering -- this core has no d_off/d_reclen readers to
// satisfy beyond its own Getdents loop above).
func encodeDirent(name string, size uint32, attr uint8) []byte {
	rec := make([]byte, 0, len(name)+1+1+4)
	rec = append(rec, name...)
	rec = append(rec, 0)
	rec = append(rec, attr)
	rec = append(rec, byte(size), byte(size>>8), byte(size>>16), byte(size>>24))
	return rec
}
