// Manager is the filesystem-wide mount state spec.md §4.10 describes:
// boot-time parsing of sector 0 (partition start sector, BPB, EBR,
// FSInfo), the derived geometry (first FAT sector, mirror sector, FAT
// size, fixed root-directory sector), and cluster allocation/
// deallocation against the FSInfo hint. Grounded on
// fat32_fs/src/fat32_manager.rs's FAT32Manager/FAT32ManagerInner.
package fat32

import (
	"sync"

	"block"
	"defs"
	"mem"
)

/// Manager is the mounted filesystem's shared state (fat32_manager.rs's
/// FAT32Manager).
type Manager struct {
	mu sync.Mutex

	InfoCache *block.Manager_t
	DataCache *block.Manager_t

	BytesPerSector    uint32
	BytesPerCluster   uint32
	SectorsPerCluster uint32
	RootSector        uint32

	fat    *FAT
	fsinfo FSInfo

	RootFirstCluster uint32

	// clusterFrames backs spec.md §4.11's get_data_cache_physaddr: a
	// cluster touched by a file-backed mmap gets one dedicated physical
	// frame mirroring its on-disk bytes, so vm's MmapFile_i can hand the
	// region a real Pa_t instead of the data cache's host-side byte slice.
	clusterFrames map[uint32]*mem.FrameTracker_t
}

/// Open mounts a FAT32 volume: reads the partition start sector from
/// sector 0 offset 0x1C6, installs it on both caches, parses BPB/EBR/
/// FSInfo (rejecting a bad FSInfo signature), and derives the FAT and
/// root-directory geometry (spec.md §4.10 paragraph 1,
/// fat32_manager.rs's FAT32Manager::open).
func Open(infoCache, dataCache *block.Manager_t) (*Manager, defs.Err_t) {
	sec0 := make([]byte, BlockSize)
	if err := infoCache.Read(0, sec0); err != 0 {
		return nil, err
	}
	startSector := int(le32(sec0[0x1C6 : 0x1C6+4]))
	infoCache.SetStartSector(startSector)
	dataCache.SetStartSector(startSector)

	// re-read sector 0 now that the start-sector offset is live
	if err := infoCache.Read(0, sec0); err != 0 {
		return nil, err
	}
	bpb := parseBPB(sec0)
	ebr := parseEBR(sec0)

	fsinfoBuf := make([]byte, BlockSize)
	if err := infoCache.Read(int(ebr.FSInfoSec()), fsinfoBuf); err != 0 {
		return nil, err
	}
	fsinfo, ok := parseFSInfo(ebr.FSInfoSec(), fsinfoBuf)
	if !ok {
		return nil, -defs.EINVAL
	}

	firstFAT1Sec := bpb.FirstFATSector()
	fatSize := ebr.FATSize()
	firstFAT2Sec := firstFAT1Sec + fatSize
	fat := NewFAT(infoCache, firstFAT1Sec, firstFAT2Sec, fatSize)

	sectorsPerCluster := uint32(bpb.SectorsPerCluster)
	bytesPerSector := uint32(bpb.BytesPerSector)
	rootSector := firstFAT1Sec + uint32(bpb.NumFATs)*fatSize

	m := &Manager{
		InfoCache:         infoCache,
		DataCache:         dataCache,
		BytesPerSector:    bytesPerSector,
		BytesPerCluster:   sectorsPerCluster * bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		RootSector:        rootSector,
		fat:               fat,
		fsinfo:            fsinfo,
		RootFirstCluster:  2,
		clusterFrames:     make(map[uint32]*mem.FrameTracker_t),
	}
	return m, 0
}

/// FAT returns the mounted volume's FAT view.
func (m *Manager) FAT() *FAT { return m.fat }

/// FirstSectorOfCluster maps a cluster number to its first data sector
/// (fat32_manager.rs's first_sector_of_cluster).
func (m *Manager) FirstSectorOfCluster(cluster uint32) int {
	return int((cluster-2)*m.SectorsPerCluster + m.RootSector)
}

/// SizeToCluster returns how many whole clusters are needed to hold size
/// bytes.
func (m *Manager) SizeToCluster(size uint32) uint32 {
	return (size + m.BytesPerCluster - 1) / m.BytesPerCluster
}

/// FreeClusterCount reports FSInfo's free-cluster count.
func (m *Manager) FreeClusterCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsinfo.freeClusters
}

/// ClearCluster zeroes every data sector of cluster (fat32_manager.rs's
/// clear_cluster, used before an allocated cluster is first written).
func (m *Manager) ClearCluster(cluster uint32) defs.Err_t {
	zero := make([]byte, BlockSize)
	start := m.FirstSectorOfCluster(cluster)
	for i := uint32(0); i < m.SectorsPerCluster; i++ {
		if err := m.DataCache.Write(start+int(i), zero); err != 0 {
			return err
		}
	}
	return 0
}

/// AllocCluster reserves num contiguous-in-chain free clusters starting
/// from the FSInfo hint, links them, zeroes them, and updates FSInfo's
/// free count and hint under the write lock (spec.md §4.10 "Allocation").
/// Returns the chain's first cluster, or -ENOSPC if there aren't enough
/// free clusters.
func (m *Manager) AllocCluster(num uint32) (uint32, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if num > m.fsinfo.freeClusters {
		return 0, -defs.ENOSPC
	}
	first := m.fat.NextFreeCluster(m.fsinfo.lastAllocHint)
	if first == 0 {
		return 0, -defs.ENOSPC
	}
	curr := first
	for i := uint32(1); i < num; i++ {
		if err := m.ClearCluster(curr); err != 0 {
			return 0, err
		}
		next := m.fat.NextFreeCluster(curr)
		if next == 0 {
			return 0, -defs.ENOSPC
		}
		if err := m.fat.SetNext(curr, next); err != 0 {
			return 0, err
		}
		curr = next
	}
	// The loop above zeroes every cluster it advances past but never the
	// chain's last link -- which is also the only cluster when num==1 --
	// so clear it here before sealing the chain (spec.md §4.10 "each
	// newly allocated cluster is zeroed sector-by-sector").
	if err := m.ClearCluster(curr); err != 0 {
		return 0, err
	}
	if err := m.fat.SetEnd(curr); err != 0 {
		return 0, err
	}
	m.fsinfo.freeClusters -= num
	m.fsinfo.lastAllocHint = curr
	return first, 0
}

/// DeallocCluster frees every listed cluster's FAT slot and adjusts
/// FSInfo's free count and hint (spec.md §4.10 "Deallocation").
func (m *Manager) DeallocCluster(clusters []uint32) defs.Err_t {
	if len(clusters) == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clusters {
		if err := m.fat.SetNext(c, FreeCluster); err != 0 {
			return err
		}
	}
	m.fsinfo.freeClusters += uint32(len(clusters))
	if clusters[0] > 2 && clusters[0] < m.fsinfo.lastAllocHint {
		m.fsinfo.lastAllocHint = clusters[0] - 1
	}
	for _, c := range clusters {
		if ft, ok := m.clusterFrames[c]; ok {
			ft.Drop()
			delete(m.clusterFrames, c)
		}
	}
	return 0
}

/// CachedClusterFrame returns the physical frame backing cluster's bytes,
/// allocating and populating it from the data cache on first touch
/// (spec.md §4.11 "get_data_cache_physaddr(offset) exposes the backing
/// physical-frame of the data cache for file-backed mmap"). The frame is
/// shared by every mmap of this cluster until the cluster is freed via
/// DeallocCluster, mirroring the single-source-of-truth intent of "file-
/// backed mmap sharing the block cache" even though this core's block
/// cache itself lives in host memory rather than the simulated physical
/// arena (spec.md §9).
func (m *Manager) CachedClusterFrame(cluster uint32) (mem.Pa_t, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ft, ok := m.clusterFrames[cluster]; ok {
		return ft.Pa(), 0
	}
	if m.BytesPerCluster > uint32(mem.PGSIZE) {
		return 0, -defs.ENOSYS
	}
	ft, ok := mem.Physmem.AllocNoZero()
	if !ok {
		return 0, -defs.ENOMEM
	}
	dst := mem.Dmap(ft.Pa())[:m.BytesPerCluster]
	start := m.FirstSectorOfCluster(cluster)
	for i := uint32(0); i < m.SectorsPerCluster; i++ {
		sec := dst[i*m.BytesPerSector : (i+1)*m.BytesPerSector]
		if err := m.DataCache.Read(start+int(i), sec); err != 0 {
			ft.Drop()
			return 0, err
		}
	}
	m.clusterFrames[cluster] = ft
	return ft.Pa(), 0
}

/// RefreshClusterFrame re-copies cluster's current data-cache bytes into
/// its mmap frame, if one exists, so a WriteAt through the ordinary file
/// path stays visible to any outstanding mmap of the same cluster.
func (m *Manager) RefreshClusterFrame(cluster uint32) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	ft, ok := m.clusterFrames[cluster]
	if !ok {
		return 0
	}
	dst := mem.Dmap(ft.Pa())[:m.BytesPerCluster]
	start := m.FirstSectorOfCluster(cluster)
	for i := uint32(0); i < m.SectorsPerCluster; i++ {
		sec := dst[i*m.BytesPerSector : (i+1)*m.BytesPerSector]
		if err := m.DataCache.Read(start+int(i), sec); err != 0 {
			return err
		}
	}
	return 0
}

/// ClusterCountNeeded reports how many additional clusters must be
/// allocated to grow a file/directory from oldSz to newSz bytes
/// (fat32_manager.rs's cluster_count_needed; directories count against
/// their already-materialized chain length rather than a byte size).
func (m *Manager) ClusterCountNeeded(oldSz, newSz uint32, isDir bool, firstCluster uint32) uint32 {
	if oldSz >= newSz {
		return 0
	}
	if isDir {
		have := m.fat.Count(firstCluster)
		return m.SizeToCluster(newSz) - have
	}
	return m.SizeToCluster(newSz) - m.SizeToCluster(oldSz)
}

/// SyncFSInfo writes the (possibly updated) FSInfo sector back to disk
/// (fat32_manager.rs's sync_fsinfo, called here explicitly at unmount
/// rather than from a Drop impl -- spec.md §9 notes this core has no
/// destructor equivalent).
func (m *Manager) SyncFSInfo() defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, BlockSize)
	if err := m.InfoCache.Read(int(m.fsinfo.sector), buf); err != 0 {
		return err
	}
	m.fsinfo.encode(buf)
	if err := m.InfoCache.Write(int(m.fsinfo.sector), buf); err != 0 {
		return err
	}
	return m.InfoCache.SyncAll()
}
