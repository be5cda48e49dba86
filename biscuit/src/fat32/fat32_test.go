package fat32

import (
	"encoding/binary"
	"testing"

	"block"
	"defs"
)

type memDisk struct {
	sectors map[int][]byte
}

func newMemDisk() *memDisk { return &memDisk{sectors: make(map[int][]byte)} }

func (d *memDisk) ReadSector(secno int, buf []byte) defs.Err_t {
	s, ok := d.sectors[secno]
	if !ok {
		s = make([]byte, BlockSize)
	}
	copy(buf, s)
	return 0
}

func (d *memDisk) WriteSector(secno int, buf []byte) defs.Err_t {
	cp := make([]byte, BlockSize)
	copy(cp, buf)
	d.sectors[secno] = cp
	return 0
}

// buildImage lays down a minimal but structurally valid FAT32 boot
// sector + FSInfo + two tiny mirrored FATs, with cluster 2 (the root
// directory) marked end-of-chain.
func buildImage(t *testing.T) *memDisk {
	t.Helper()
	d := newMemDisk()

	sec0 := make([]byte, BlockSize)
	binary.LittleEndian.PutUint16(sec0[11:13], 512) // bytes per sector
	sec0[13] = 1                                     // sectors per cluster
	binary.LittleEndian.PutUint16(sec0[14:16], 2)    // reserved sectors
	sec0[16] = 2                                      // num FATs
	binary.LittleEndian.PutUint32(sec0[36:40], 1)     // fat size (sectors)
	binary.LittleEndian.PutUint16(sec0[44:46], 0)     // (root cluster lo, unused by us)
	binary.LittleEndian.PutUint32(sec0[44:48], 2)     // root cluster
	binary.LittleEndian.PutUint16(sec0[48:50], 1)     // fsinfo sector
	binary.LittleEndian.PutUint32(sec0[0x1C6:0x1C6+4], 0) // start sector
	d.sectors[0] = sec0

	fsinfo := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(fsinfo[0:4], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(fsinfo[484:488], fsInfoStrucSig)
	binary.LittleEndian.PutUint32(fsinfo[488:492], 100) // free clusters
	binary.LittleEndian.PutUint32(fsinfo[492:496], 2)   // last alloc hint
	binary.LittleEndian.PutUint32(fsinfo[508:512], fsInfoTrailSig)
	d.sectors[1] = fsinfo

	// FAT1 (sector 2) / FAT2 (sector 3): mark cluster 2 as end-of-chain
	fat1 := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(fat1[8:12], EndCluster) // entry for cluster 2
	d.sectors[2] = fat1
	fat2 := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(fat2[8:12], EndCluster)
	d.sectors[3] = fat2

	return d
}

func mount(t *testing.T, d *memDisk) *Manager {
	t.Helper()
	info := block.NewManager(d, block.ReadWrite, 8)
	data := block.NewManager(d, block.ReadWrite, 8)
	m, err := Open(info, data)
	if err != 0 {
		t.Fatalf("Open failed: %d", err)
	}
	return m
}

func TestOpenParsesGeometry(t *testing.T) {
	m := mount(t, buildImage(t))
	if m.BytesPerCluster != 512 {
		t.Fatalf("expected 512-byte clusters, got %d", m.BytesPerCluster)
	}
	if m.RootSector != 4 {
		t.Fatalf("expected root sector 4 (2 FATs x 1 sector after FAT start at 2), got %d", m.RootSector)
	}
	if m.RootFirstCluster != 2 {
		t.Fatalf("expected root first cluster 2, got %d", m.RootFirstCluster)
	}
}

func TestRootClusterIsEndOfChain(t *testing.T) {
	m := mount(t, buildImage(t))
	if final := m.FAT().FinalOf(2); final != 2 {
		t.Fatalf("expected root cluster's chain to terminate at itself, got %d", final)
	}
}

func TestAllocClusterUpdatesFATAndFSInfo(t *testing.T) {
	m := mount(t, buildImage(t))
	before := m.FreeClusterCount()

	first, err := m.AllocCluster(3)
	if err != 0 {
		t.Fatalf("AllocCluster failed: %d", err)
	}
	if first == 0 {
		t.Fatalf("expected a nonzero first cluster")
	}
	all := m.FAT().AllClusters(first)
	if len(all) != 3 {
		t.Fatalf("expected a 3-cluster chain, got %v", all)
	}
	if final := m.FAT().FinalOf(first); final != all[2] {
		t.Fatalf("expected chain to terminate at its last cluster, got %d want %d", final, all[2])
	}
	if m.FreeClusterCount() != before-3 {
		t.Fatalf("expected free count to drop by 3, got %d (was %d)", m.FreeClusterCount(), before)
	}
}

func TestDeallocClusterFreesAndLowersHint(t *testing.T) {
	m := mount(t, buildImage(t))
	first, err := m.AllocCluster(2)
	if err != 0 {
		t.Fatalf("AllocCluster failed: %d", err)
	}
	chain := m.FAT().AllClusters(first)
	before := m.FreeClusterCount()

	if err := m.DeallocCluster(chain); err != 0 {
		t.Fatalf("DeallocCluster failed: %d", err)
	}
	if m.FreeClusterCount() != before+uint32(len(chain)) {
		t.Fatalf("expected free count to rise by %d, got %d", len(chain), m.FreeClusterCount())
	}
	if next := m.FAT().NextCluster(chain[0]); next != FreeCluster {
		t.Fatalf("expected deallocated cluster to read back FREE, got %#x", next)
	}
	if m.fsinfo.lastAllocHint != first-1 {
		t.Fatalf("expected hint lowered to %d, got %d", first-1, m.fsinfo.lastAllocHint)
	}
}

func TestAllocClusterZeroesLastCluster(t *testing.T) {
	m := mount(t, buildImage(t))

	// NextFreeCluster scans strictly forward from its hint, so on this
	// freshly built image a cluster allocated right after "single"
	// deterministically lands on the clusters the next AllocCluster call
	// will hand out -- letting a garbage seed land exactly on the chain
	// whose last cluster must come back zeroed.
	single, err := m.AllocCluster(1)
	if err != 0 {
		t.Fatalf("AllocCluster failed: %d", err)
	}
	garbage := make([]byte, BlockSize)
	for i := range garbage {
		garbage[i] = 0xff
	}
	for _, cluster := range []uint32{single + 1, single + 2} {
		if err := m.DataCache.Write(m.FirstSectorOfCluster(cluster), garbage); err != 0 {
			t.Fatalf("seeding garbage failed: %d", err)
		}
	}

	chain, err := m.AllocCluster(2)
	if err != 0 {
		t.Fatalf("AllocCluster failed: %d", err)
	}
	all := m.FAT().AllClusters(chain)
	if len(all) != 2 || all[0] != single+1 || all[1] != single+2 {
		t.Fatalf("expected chain [%d %d], got %v", single+1, single+2, all)
	}
	last := all[len(all)-1]
	buf := make([]byte, BlockSize)
	if err := m.DataCache.Read(m.FirstSectorOfCluster(last), buf); err != 0 {
		t.Fatalf("read back failed: %d", err)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("expected chain's last cluster zeroed, found byte %#x", b)
		}
	}
}

func TestAllocClusterFailsWhenInsufficientFree(t *testing.T) {
	m := mount(t, buildImage(t))
	if _, err := m.AllocCluster(1000); err != -defs.ENOSPC {
		t.Fatalf("expected ENOSPC, got %d", err)
	}
}

func TestChainCacheMatchesFATWalk(t *testing.T) {
	m := mount(t, buildImage(t))
	first, err := m.AllocCluster(4)
	if err != 0 {
		t.Fatalf("AllocCluster failed: %d", err)
	}
	want := m.FAT().AllClusters(first)

	cc := NewChainCache()
	cc.Fill(first, m.FAT())
	got := cc.AllClusters(first, m.FAT())
	if len(got) != len(want) {
		t.Fatalf("chain cache length mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain cache mismatch at %d: got %d want %d", i, got[i], want[i])
		}
	}
	if at := cc.ClusterAt(first, 2, m.FAT()); at != want[2] {
		t.Fatalf("ClusterAt(2) = %d, want %d", at, want[2])
	}
}

func TestStartSectorOffsetAppliedConsistently(t *testing.T) {
	d := buildImage(t)
	// shift every sector forward by 5 and record the start sector in the
	// 0x1C6 field of an MBR at physical sector 0, mimicking a partitioned
	// disk image.
	shifted := newMemDisk()
	for secno, data := range d.sectors {
		shifted.sectors[secno+5] = data
	}
	shifted.sectors[0] = make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(shifted.sectors[0][0x1C6:0x1C6+4], 5)

	m := mount(t, shifted)
	if m.RootSector != 4 {
		t.Fatalf("geometry should be partition-relative regardless of start sector, got %d", m.RootSector)
	}
	if final := m.FAT().FinalOf(2); final != 2 {
		t.Fatalf("expected root cluster chain lookup to respect the start-sector offset, got %d", final)
	}
}
