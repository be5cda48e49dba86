package proc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"defs"
	"fd"
	"mem"
)

// buildMiniElf hand-assembles the smallest valid RISC-V ELF64 executable
// with one PT_LOAD segment, the same byte-level approach the teacher's
// kernel/chentry.go uses to rewrite an ELF header in place with
// encoding/binary, just building a whole file instead of patching one.
func buildMiniElf(t *testing.T, vaddr uint64, code []byte, entry uint64) []byte {
	t.Helper()
	const ehsize = 64
	const phentsize = 56

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /*ELFCLASS64*/, 1 /*LSB*/, 1 /*EV_CURRENT*/}
	hdr := struct {
		Ident     [16]byte
		Type      uint16
		Machine   uint16
		Version   uint32
		Entry     uint64
		Phoff     uint64
		Shoff     uint64
		Flags     uint32
		Ehsize    uint16
		Phentsize uint16
		Phnum     uint16
		Shentsize uint16
		Shnum     uint16
		Shstrndx  uint16
	}{
		Ident: ident, Type: uint16(elf.ET_EXEC), Machine: uint16(elf.EM_RISCV), Version: 1,
		Entry: entry, Phoff: ehsize, Ehsize: ehsize, Phentsize: phentsize, Phnum: 1,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("write ehdr: %v", err)
	}

	dataOff := uint64(ehsize + phentsize)
	phdr := struct {
		Type   uint32
		Flags  uint32
		Offset uint64
		Vaddr  uint64
		Paddr  uint64
		Filesz uint64
		Memsz  uint64
		Align  uint64
	}{
		Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X | elf.PF_W),
		Offset: dataOff, Vaddr: vaddr, Paddr: vaddr,
		Filesz: uint64(len(code)), Memsz: uint64(len(code)), Align: uint64(mem.PGSIZE),
	}
	if err := binary.Write(&buf, binary.LittleEndian, phdr); err != nil {
		t.Fatalf("write phdr: %v", err)
	}
	buf.Write(code)
	return buf.Bytes()
}

func setup(t *testing.T) {
	t.Helper()
	mem.Init(4096, 0, 0)
}

func stdioTriple() [3]*fd.Fd_t { return [3]*fd.Fd_t{nil, nil, nil} }

func TestNewProcessFromElf(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x1000, []byte{0x13, 0x00, 0x00, 0x00 /* nop */}, 0x1000)
	p, tid, entry, sp, _, err := NewProcess(img, stdioTriple())
	if err != 0 {
		t.Fatalf("NewProcess failed: %d", err)
	}
	if entry != 0x1000 {
		t.Fatalf("unexpected entry: %#x", entry)
	}
	if sp == 0 {
		t.Fatalf("expected nonzero initial stack pointer")
	}
	if p.ThreadCount() != 1 {
		t.Fatalf("expected 1 thread, got %d", p.ThreadCount())
	}
	if _, ok := Lookup(p.Pid); !ok {
		t.Fatalf("process not registered")
	}
	if tid == 0 {
		t.Fatalf("expected nonzero tid")
	}
}

func TestForkCopiesAddressSpace(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x2000, make([]byte, mem.PGSIZE), 0x2000)
	p, _, _, _, _, err := NewProcess(img, stdioTriple())
	if err != 0 {
		t.Fatalf("NewProcess failed: %d", err)
	}

	child, _, err := p.Fork()
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}
	if child.Pid == p.Pid {
		t.Fatalf("child shares pid with parent")
	}
	if child.AS == p.AS {
		t.Fatalf("child shares address space pointer with parent (no-COW violation)")
	}
}

func TestForkRejectsMultiThreaded(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x3000, make([]byte, mem.PGSIZE), 0x3000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())
	p.newThread() // simulate a second thread

	if _, _, err := p.Fork(); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL forking multi-threaded process, got %d", err)
	}
}

func TestExitWaitReapsChild(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x4000, make([]byte, mem.PGSIZE), 0x4000)
	parent, _, _, _, _, _ := NewProcess(img, stdioTriple())
	child, _, err := parent.Fork()
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}

	go func() {
		child.Exit(7)
	}()

	pid, code, err := parent.Wait4(0, false)
	if err != 0 {
		t.Fatalf("wait4 failed: %d", err)
	}
	if pid != child.Pid || code != 7 {
		t.Fatalf("wait4 returned pid=%d code=%d, want pid=%d code=7", pid, code, child.Pid)
	}
	if _, ok := Lookup(child.Pid); ok {
		t.Fatalf("reaped child still registered")
	}
}

func TestWait4NoChildrenReturnsNegativeOne(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x5000, make([]byte, mem.PGSIZE), 0x5000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())
	if _, _, err := p.Wait4(0, false); err != -1 {
		t.Fatalf("expected -1, got %d", err)
	}
}

func TestWait4UnmatchedPidReturnsNegativeOneImmediately(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x5000, make([]byte, mem.PGSIZE), 0x5000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())
	child, _, err := p.Fork()
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}
	if _, _, err := p.Wait4(child.Pid+1000, false); err != -1 {
		t.Fatalf("expected -1 for unmatched pid, got %d", err)
	}
}

func TestWait4NoHangOnLiveChildReturnsNegativeTwo(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x5000, make([]byte, mem.PGSIZE), 0x5000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())
	if _, _, err := p.Fork(); err != 0 {
		t.Fatalf("fork failed: %d", err)
	}
	if _, _, err := p.Wait4(0, true); err != -2 {
		t.Fatalf("expected -2 for WNOHANG on a live child, got %d", err)
	}
}

func TestBrkGrowsHeapLazily(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x6000, make([]byte, mem.PGSIZE), 0x6000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())

	base, _ := p.Brk(0)
	newTop := base + mem.Va_t(4*mem.PGSIZE)
	top, err := p.Brk(newTop)
	if err != 0 {
		t.Fatalf("brk failed: %d", err)
	}
	if top != newTop {
		t.Fatalf("brk returned %#x, want %#x", top, newTop)
	}
	if n := p.AS.NofHeapFrames(); n != 0 {
		t.Fatalf("brk should not eagerly allocate frames, got %d", n)
	}
	if err := p.AS.CheckLazy(base + 5); err != 0 {
		t.Fatalf("heap fault after brk failed: %d", err)
	}
	if n := p.AS.NofHeapFrames(); n != 1 {
		t.Fatalf("expected 1 heap frame after touch, got %d", n)
	}
}

func TestMmapMunmap(t *testing.T) {
	setup(t)
	img := buildMiniElf(t, 0x7000, make([]byte, mem.PGSIZE), 0x7000)
	p, _, _, _, _, _ := NewProcess(img, stdioTriple())

	addr, err := p.Mmap(2*mem.PGSIZE, mem.PTE_R|mem.PTE_W, defs.MAP_ANONYMOUS, nil, 0)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	if addr == 0 {
		t.Fatalf("expected nonzero mmap address")
	}
	if err := p.Munmap(addr); err != 0 {
		t.Fatalf("munmap failed: %d", err)
	}
	if err := p.Munmap(addr); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL double-munmap, got %d", err)
	}
}
