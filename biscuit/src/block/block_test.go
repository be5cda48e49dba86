package block

import (
	"bytes"
	"testing"

	"defs"
)

type memDisk struct {
	sectors map[int][]byte
	reads   int
	writes  int
}

func newMemDisk() *memDisk { return &memDisk{sectors: make(map[int][]byte)} }

func (d *memDisk) ReadSector(secno int, buf []byte) defs.Err_t {
	d.reads++
	s, ok := d.sectors[secno]
	if !ok {
		s = make([]byte, SectorSize)
	}
	copy(buf, s)
	return 0
}

func (d *memDisk) WriteSector(secno int, buf []byte) defs.Err_t {
	d.writes++
	cp := make([]byte, SectorSize)
	copy(cp, buf)
	d.sectors[secno] = cp
	return 0
}

func TestReadMissLoadsFromDisk(t *testing.T) {
	d := newMemDisk()
	d.sectors[5] = bytes.Repeat([]byte{0x42}, SectorSize)
	m := NewManager(d, ReadOnly, 4)

	buf := make([]byte, SectorSize)
	if err := m.Read(5, buf); err != 0 {
		t.Fatalf("Read failed: %d", err)
	}
	if buf[0] != 0x42 {
		t.Fatalf("expected loaded byte 0x42, got %#x", buf[0])
	}
	if d.reads != 1 {
		t.Fatalf("expected one disk read, got %d", d.reads)
	}

	// second read should hit the cache, no extra disk read
	if err := m.Read(5, buf); err != 0 {
		t.Fatalf("Read failed: %d", err)
	}
	if d.reads != 1 {
		t.Fatalf("expected cached read to avoid disk access, reads=%d", d.reads)
	}
}

func TestWriteDirtyDeferredUntilSync(t *testing.T) {
	d := newMemDisk()
	m := NewManager(d, ReadWrite, 4)

	src := bytes.Repeat([]byte{0x7}, SectorSize)
	if err := m.Write(3, src); err != 0 {
		t.Fatalf("Write failed: %d", err)
	}
	if d.writes != 0 {
		t.Fatalf("expected no writeback before Sync, writes=%d", d.writes)
	}
	if err := m.SyncAll(); err != 0 {
		t.Fatalf("SyncAll failed: %d", err)
	}
	if d.writes != 1 {
		t.Fatalf("expected one writeback after SyncAll, writes=%d", d.writes)
	}
	if d.sectors[3][0] != 0x7 {
		t.Fatalf("disk sector not updated")
	}
}

func TestReadOnlyWritesThroughImmediately(t *testing.T) {
	d := newMemDisk()
	m := NewManager(d, ReadOnly, 4)
	src := bytes.Repeat([]byte{0x9}, SectorSize)
	if err := m.Write(1, src); err != 0 {
		t.Fatalf("Write failed: %d", err)
	}
	if d.writes != 1 {
		t.Fatalf("expected immediate writethrough, writes=%d", d.writes)
	}
}

func TestEvictionWritesBackDirtySlot(t *testing.T) {
	d := newMemDisk()
	m := NewManager(d, ReadWrite, 2)

	m.Write(0, bytes.Repeat([]byte{1}, SectorSize))
	m.Write(1, bytes.Repeat([]byte{2}, SectorSize))
	// cache is full (cap 2); touching a third sector evicts slot 0 (clock hand)
	buf := make([]byte, SectorSize)
	m.Read(2, buf)

	if d.writes != 1 {
		t.Fatalf("expected eviction to flush the dirty slot, writes=%d", d.writes)
	}
	if d.sectors[0][0] != 1 {
		t.Fatalf("evicted slot's data was not written back correctly")
	}
}

func TestStartSectorOffsetsDiskAccess(t *testing.T) {
	d := newMemDisk()
	d.sectors[100+5] = bytes.Repeat([]byte{0x11}, SectorSize)
	m := NewManager(d, ReadOnly, 4)
	m.SetStartSector(100)

	buf := make([]byte, SectorSize)
	if err := m.Read(5, buf); err != 0 {
		t.Fatalf("Read failed: %d", err)
	}
	if buf[0] != 0x11 {
		t.Fatalf("expected start-sector-relative read to hit physical sector 105, got %#x", buf[0])
	}
}

func TestCachedBytesReturnsBackingArray(t *testing.T) {
	d := newMemDisk()
	m := NewManager(d, ReadWrite, 4)
	m.Write(7, bytes.Repeat([]byte{0xAB}, SectorSize))

	p, err := m.CachedBytes(7)
	if err != 0 {
		t.Fatalf("CachedBytes failed: %d", err)
	}
	if p[0] != 0xAB {
		t.Fatalf("expected cached byte 0xAB, got %#x", p[0])
	}
	// mutating through the pointer should be visible on the next Read --
	// CachedBytes hands out the slot's own array, not a copy.
	p[0] = 0xCD
	buf := make([]byte, SectorSize)
	m.Read(7, buf)
	if buf[0] != 0xCD {
		t.Fatalf("expected aliasing through CachedBytes, got %#x", buf[0])
	}
}
