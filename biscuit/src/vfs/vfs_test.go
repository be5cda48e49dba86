package vfs

import (
	"encoding/binary"
	"os"
	"testing"

	"block"
	"defs"
	"fat32"
	"mem"
	"sbi"
)

// TestMain seeds the frame allocator once for the whole package: Stdin_t's
// line circbuf lazily allocates a physical frame on first use, the same
// convention package proc's tests follow for mem.Init(4096, 0, 0).
func TestMain(m *testing.M) {
	mem.Init(4096, 0, 0)
	os.Exit(m.Run())
}

type memDisk struct {
	sectors map[int][]byte
}

func newMemDisk() *memDisk { return &memDisk{sectors: make(map[int][]byte)} }

func (d *memDisk) ReadSector(secno int, buf []byte) defs.Err_t {
	s, ok := d.sectors[secno]
	if !ok {
		s = make([]byte, fat32.BlockSize)
	}
	copy(buf, s)
	return 0
}

func (d *memDisk) WriteSector(secno int, buf []byte) defs.Err_t {
	cp := make([]byte, fat32.BlockSize)
	copy(cp, buf)
	d.sectors[secno] = cp
	return 0
}

// buildImage lays down a minimal FAT32 volume with 512-byte (one-sector)
// clusters and plenty of free clusters for directory growth, the same
// shape fat32's own test harness uses.
func buildImage(t *testing.T) *memDisk {
	t.Helper()
	d := newMemDisk()

	sec0 := make([]byte, fat32.BlockSize)
	binary.LittleEndian.PutUint16(sec0[11:13], 512)
	sec0[13] = 1
	binary.LittleEndian.PutUint16(sec0[14:16], 2)
	sec0[16] = 2
	binary.LittleEndian.PutUint32(sec0[36:40], 1)
	binary.LittleEndian.PutUint32(sec0[44:48], 2)
	binary.LittleEndian.PutUint16(sec0[48:50], 1)
	binary.LittleEndian.PutUint32(sec0[0x1C6:0x1C6+4], 0)
	d.sectors[0] = sec0

	fsinfo := make([]byte, fat32.BlockSize)
	binary.LittleEndian.PutUint32(fsinfo[0:4], 0x41615252)
	binary.LittleEndian.PutUint32(fsinfo[484:488], 0x61417272)
	binary.LittleEndian.PutUint32(fsinfo[488:492], 2000)
	binary.LittleEndian.PutUint32(fsinfo[492:496], 2)
	binary.LittleEndian.PutUint32(fsinfo[508:512], 0xAA550000)
	d.sectors[1] = fsinfo

	fat1 := make([]byte, fat32.BlockSize)
	binary.LittleEndian.PutUint32(fat1[8:12], fat32.EndCluster)
	d.sectors[2] = fat1
	fat2 := make([]byte, fat32.BlockSize)
	binary.LittleEndian.PutUint32(fat2[8:12], fat32.EndCluster)
	d.sectors[3] = fat2

	return d
}

func mount(t *testing.T) *Mount_t {
	t.Helper()
	d := buildImage(t)
	info := block.NewManager(d, block.ReadWrite, 16)
	data := block.NewManager(d, block.ReadWrite, 16)
	fm, err := fat32.Open(info, data)
	if err != 0 {
		t.Fatalf("Open failed: %d", err)
	}
	return NewMount(fm)
}

func TestCreateThenFindRoundtrips(t *testing.T) {
	m := mount(t)
	child, err := m.Root.Create("hello.txt", fat32.AttrArchive)
	if err != 0 {
		t.Fatalf("Create failed: %d", err)
	}
	if child.Name() != "hello.txt" {
		t.Fatalf("expected name hello.txt, got %q", child.Name())
	}
	found, err := m.Root.Find("HELLO.TXT")
	if err != 0 {
		t.Fatalf("Find failed: %d", err)
	}
	if found.Name() != "hello.txt" {
		t.Fatalf("case-insensitive find returned %q", found.Name())
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	m := mount(t)
	if _, err := m.Root.Create("dup.txt", fat32.AttrArchive); err != 0 {
		t.Fatalf("first Create failed: %d", err)
	}
	if _, err := m.Root.Create("dup.txt", fat32.AttrArchive); err != -defs.EEXIST {
		t.Fatalf("expected EEXIST, got %d", err)
	}
}

func TestLongNameSurvivesRoundtrip(t *testing.T) {
	m := mount(t)
	const long = "a-rather-long-file-name-that-needs-several-chunks.txt"
	if _, err := m.Root.Create(long, fat32.AttrArchive); err != 0 {
		t.Fatalf("Create failed: %d", err)
	}
	found, err := m.Root.Find(long)
	if err != 0 {
		t.Fatalf("Find failed: %d", err)
	}
	if found.Name() != long {
		t.Fatalf("expected %q, got %q", long, found.Name())
	}
}

func TestWriteAtThenReadAtRoundtrips(t *testing.T) {
	m := mount(t)
	vf, err := m.Root.Create("data.bin", fat32.AttrArchive)
	if err != 0 {
		t.Fatalf("Create failed: %d", err)
	}
	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := vf.WriteAt(0, payload)
	if err != 0 || n != len(payload) {
		t.Fatalf("WriteAt = %d, %d", n, err)
	}
	if vf.Size() != uint32(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), vf.Size())
	}

	out := make([]byte, len(payload))
	n, err = vf.ReadAt(0, out)
	if err != 0 || n != len(payload) {
		t.Fatalf("ReadAt = %d, %d", n, err)
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, out[i], payload[i])
		}
	}
}

func TestWriteAtPastEOFExtendsFile(t *testing.T) {
	m := mount(t)
	vf, _ := m.Root.Create("sparse.bin", fat32.AttrArchive)
	if _, err := vf.WriteAt(0, []byte("hi")); err != 0 {
		t.Fatalf("initial write failed: %d", err)
	}
	if _, err := vf.WriteAt(1000, []byte("there")); err != 0 {
		t.Fatalf("extending write failed: %d", err)
	}
	if vf.Size() != 1005 {
		t.Fatalf("expected size 1005, got %d", vf.Size())
	}
}

func TestRemoveThenFindFails(t *testing.T) {
	m := mount(t)
	vf, _ := m.Root.Create("gone.txt", fat32.AttrArchive)
	if err := vf.Delete(); err != 0 {
		t.Fatalf("Delete failed: %d", err)
	}
	if _, err := m.Root.Find("gone.txt"); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT after delete, got %d", err)
	}
}

func TestDeleteReusesFreedSlot(t *testing.T) {
	m := mount(t)
	vf, _ := m.Root.Create("first.txt", fat32.AttrArchive)
	if err := vf.Delete(); err != 0 {
		t.Fatalf("Delete failed: %d", err)
	}
	if _, err := m.Root.Create("second.txt", fat32.AttrArchive); err != 0 {
		t.Fatalf("Create after delete failed: %d", err)
	}
	if _, err := m.Root.Find("second.txt"); err != 0 {
		t.Fatalf("expected second.txt to be found")
	}
}

func TestMkdirCreatesLazyDirectory(t *testing.T) {
	m := mount(t)
	if err := m.Mkdir("/sub"); err != 0 {
		t.Fatalf("Mkdir failed: %d", err)
	}
	sub, err := m.Root.Find("sub")
	if err != 0 {
		t.Fatalf("Find(sub) failed: %d", err)
	}
	if !sub.IsDir() {
		t.Fatalf("expected a directory")
	}
	if sub.FirstCluster() != 0 {
		t.Fatalf("expected a lazily-materialized directory (first_cluster=0), got %d", sub.FirstCluster())
	}
	child, err := sub.Create("inside.txt", fat32.AttrArchive)
	if err != 0 {
		t.Fatalf("Create inside subdirectory failed: %d", err)
	}
	if sub.FirstCluster() == 0 {
		t.Fatalf("expected subdirectory to materialize a cluster on first write")
	}
	if found, err := sub.Find("inside.txt"); err != 0 || found.Name() != child.Name() {
		t.Fatalf("expected to find inside.txt, err=%d", err)
	}
}

func TestDirentInfoEnumeratesDirectory(t *testing.T) {
	m := mount(t)
	names := []string{"a.txt", "b.txt", "c.txt"}
	for _, n := range names {
		if _, err := m.Root.Create(n, fat32.AttrArchive); err != 0 {
			t.Fatalf("Create(%s) failed: %d", n, err)
		}
	}
	seen := map[string]bool{}
	for offset := 0; ; offset += fat32.DirEntrySize {
		name, _, _, _, ok, end, err := m.Root.DirentInfo(offset)
		if err != 0 {
			t.Fatalf("DirentInfo failed: %d", err)
		}
		if end {
			break
		}
		if ok {
			seen[name] = true
		}
	}
	for _, n := range names {
		if !seen[n] {
			t.Fatalf("expected to enumerate %s, got %v", n, seen)
		}
	}
}

func TestOpenCommonFileCreatesOnMiss(t *testing.T) {
	m := mount(t)
	f, err := m.OpenCommonFile("/new.txt", defs.O_RDWR|defs.O_CREAT)
	if err != 0 {
		t.Fatalf("OpenCommonFile failed: %d", err)
	}
	src := &byteUio{buf: []byte("payload")}
	if n, err := f.Write(src); err != 0 || n != len(src.buf) {
		t.Fatalf("Write = %d, %d", n, err)
	}
	f2, err := m.OpenCommonFile("/new.txt", defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen failed: %d", err)
	}
	dst := &byteUio{buf: make([]byte, 7)}
	if n, err := f2.Read(dst); err != 0 || n != 7 {
		t.Fatalf("Read = %d, %d", n, err)
	}
	if string(dst.buf) != "payload" {
		t.Fatalf("got %q", dst.buf)
	}
}

func TestOpenCommonFileExclFailsOnExisting(t *testing.T) {
	m := mount(t)
	if _, err := m.OpenCommonFile("/x.txt", defs.O_CREAT); err != 0 {
		t.Fatalf("first open failed: %d", err)
	}
	if _, err := m.OpenCommonFile("/x.txt", defs.O_CREAT|defs.O_EXCL); err != -defs.EEXIST {
		t.Fatalf("expected EEXIST, got %d", err)
	}
}

func TestOpenCommonFileTruncTruncatesExisting(t *testing.T) {
	m := mount(t)
	f, _ := m.OpenCommonFile("/t.txt", defs.O_RDWR|defs.O_CREAT)
	f.Write(&byteUio{buf: []byte("0123456789")})

	f2, err := m.OpenCommonFile("/t.txt", defs.O_RDWR|defs.O_TRUNC)
	if err != 0 {
		t.Fatalf("trunc-open failed: %d", err)
	}
	var st struct{ size uint }
	_ = st
	dst := &byteUio{buf: make([]byte, 10)}
	n, err := f2.Read(dst)
	if err != 0 || n != 0 {
		t.Fatalf("expected empty file after TRUNC, got n=%d err=%d", n, err)
	}
}

func TestStdinTranslatesLineTerminator(t *testing.T) {
	console := sbi.NewConsole(new(discard), newFixedInput("ab\ncd"))
	in := NewStdin(console)
	dst := &byteUio{buf: make([]byte, 8)}
	n, err := in.Read(dst)
	if err != 0 {
		t.Fatalf("Read failed: %d", err)
	}
	if string(dst.buf[:n]) != "ab\r" {
		t.Fatalf("expected %q, got %q", "ab\r", dst.buf[:n])
	}
}

func TestStdoutWritesEveryByte(t *testing.T) {
	var out fixedOutput
	console := sbi.NewConsole(&out, newFixedInput(""))
	o := NewStdout(console)
	src := &byteUio{buf: []byte("hi")}
	n, err := o.Write(src)
	if err != 0 || n != 2 {
		t.Fatalf("Write = %d, %d", n, err)
	}
	if out.String() != "hi" {
		t.Fatalf("expected %q, got %q", "hi", out.String())
	}
}

// --- test scaffolding shared across the table above ---

type byteUio struct {
	buf []byte
	pos int
}

func (b *byteUio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b.buf[b.pos:])
	b.pos += n
	return n, 0
}

func (b *byteUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(b.buf[b.pos:], src)
	b.pos += n
	return n, 0
}

func (b *byteUio) Remain() int  { return len(b.buf) - b.pos }
func (b *byteUio) Totalsz() int { return len(b.buf) }

type discard struct{}

func (d *discard) Write(p []byte) (int, error) { return len(p), nil }

type fixedOutput struct{ data []byte }

func (f *fixedOutput) Write(p []byte) (int, error) {
	f.data = append(f.data, p...)
	return len(p), nil
}
func (f *fixedOutput) String() string { return string(f.data) }

type fixedInput struct {
	data []byte
	pos  int
}

func newFixedInput(s string) *fixedInput { return &fixedInput{data: []byte(s)} }

func (f *fixedInput) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, errEOF{}
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

type errEOF struct{}

func (errEOF) Error() string { return "EOF" }
