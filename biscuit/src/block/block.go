// Package block implements the two fixed-size block caches spec.md §4.9
// describes sitting in front of the disk: an "info" cache for boot-sector
// and FAT metadata blocks and a "data" cache for file-content blocks, each
// a small fixed set of 512-byte sectors evicted round-robin by a clock
// hand, offset by a process-wide
// partition start sector.
//
// Grounded on the public surface fat32_fs/src/lib.rs re-exports from its
// (not independently retrieved) block_cache module --
// CacheMode/get_data_block_cache/get_info_block_cache/sync_all/
// set_start_sector/DATA_BLOCK_CACHE_MANAGER/INFO_BLOCK_CACHE_MANAGER --
// plus fsimg.rs's BlockCacheManager, which shows the same
// start-sector-plus-linear-scan shape for the host-side tool. The cache
// eviction/writeback policy below (fixed capacity, clock-hand writeback)
// is this core's own rendering of that surface, since block_cache.rs
// itself was not part of the retrieved set.
package block

import (
	"sync"

	"defs"
	"stats"
)

/// SectorSize is the fixed sector size the cache and disk operate on.
const SectorSize = 512

/// Disk_i is the raw block device underneath the cache (spec.md §4.9).
type Disk_i interface {
	ReadSector(secno int, buf []byte) defs.Err_t
	WriteSector(secno int, buf []byte) defs.Err_t
}

/// CacheMode distinguishes a cache whose blocks are never left dirty --
/// each Write goes straight through to the disk (the original's
/// CacheMode::READ, used for FAT metadata) -- from one that defers
/// write-back to an explicit flush (CacheMode::WRITE).
type CacheMode int

const (
	ReadOnly CacheMode = iota
	ReadWrite
)

type entry struct {
	secno int
	dirty bool
	valid bool
	data  [SectorSize]byte
}

// Manager_t is a small fixed-capacity block cache: entries are looked up
// by linear scan (spec.md §4.9 "Lookup is linear by sector id" -- small
// enough that a map/LRU list is unnecessary overhead, consistent with the
// teacher's "linear arrays over maps for small fixed sets" texture seen in
// mem.Allocator_t's free stack), and evicted by a clock hand with dirty
// writeback.
type Manager_t struct {
	mu sync.Mutex

	disk  Disk_i
	mode  CacheMode
	cap   int
	slots []entry
	clock int

	startSector int

	// Debug is this cache's stats.Stats2String-compatible hit/miss block,
	// bumped once per ensure() call (spec.md §4.9's linear-scan lookup has
	// no other way to see whether the fixed capacity is actually enough).
	Debug struct {
		Hits   stats.Counter_t
		Misses stats.Counter_t
	}
}

/// DebugString renders m.Debug the way stats.Stats2String formats any
/// counter-only struct.
func (m *Manager_t) DebugString() string {
	return stats.Stats2String(m.Debug)
}

/// NewManager builds a Manager_t with room for cap cached sectors.
func NewManager(disk Disk_i, mode CacheMode, cap int) *Manager_t {
	return &Manager_t{disk: disk, mode: mode, cap: cap, slots: make([]entry, cap)}
}

/// SetStartSector installs the partition's start sector, added to every
/// logical sector number before the cache touches the underlying disk
/// (spec.md §4.9 "set the partition's start sector", fsimg.rs's
/// set_start_sector). Slots cached under the previous offset are written
/// back (if dirty) and dropped, so the next access reloads from the new
/// offset.
func (m *Manager_t) SetStartSector(sec int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		m.writeback(i)
		m.slots[i].valid = false
	}
	m.clock = 0
	m.startSector = sec
}

func (m *Manager_t) find(secno int) int {
	for i := range m.slots {
		if m.slots[i].valid && m.slots[i].secno == secno {
			return i
		}
	}
	return -1
}

// load brings secno into the cache under the partition offset, evicting
// (and if dirty, writing back) the clock-hand slot if the cache is full.
// Callers hold m.mu.
func (m *Manager_t) load(secno int) (int, defs.Err_t) {
	phys := m.startSector + secno
	for i := range m.slots {
		if !m.slots[i].valid {
			if err := m.disk.ReadSector(phys, m.slots[i].data[:]); err != 0 {
				return 0, err
			}
			m.slots[i].secno = secno
			m.slots[i].valid = true
			m.slots[i].dirty = false
			return i, 0
		}
	}
	i := m.clock
	m.clock = (m.clock + 1) % m.cap
	if err := m.writeback(i); err != 0 {
		return 0, err
	}
	if err := m.disk.ReadSector(phys, m.slots[i].data[:]); err != 0 {
		return 0, err
	}
	m.slots[i].secno = secno
	m.slots[i].valid = true
	m.slots[i].dirty = false
	return i, 0
}

// writeback flushes slot i if dirty. Callers hold m.mu.
func (m *Manager_t) writeback(i int) defs.Err_t {
	if m.mode == ReadWrite && m.slots[i].valid && m.slots[i].dirty {
		phys := m.startSector + m.slots[i].secno
		if err := m.disk.WriteSector(phys, m.slots[i].data[:]); err != 0 {
			return err
		}
	}
	m.slots[i].dirty = false
	return 0
}

// ensure loads secno into the cache on a miss, returning its slot index.
// Callers hold m.mu.
func (m *Manager_t) ensure(secno int) (int, defs.Err_t) {
	if i := m.find(secno); i >= 0 {
		m.Debug.Hits.Inc()
		return i, 0
	}
	m.Debug.Misses.Inc()
	return m.load(secno)
}

/// Read copies the cached contents of secno into dst (must be
/// SectorSize bytes), loading it from disk on a miss (CacheMode::READ's
/// "ensure presence" semantics).
func (m *Manager_t) Read(secno int, dst []byte) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.ensure(secno)
	if err != 0 {
		return err
	}
	copy(dst, m.slots[i].data[:])
	return 0
}

/// Write overwrites the cached contents of secno with src. In ReadWrite
/// mode the slot is marked dirty and write-back is deferred to SyncAll
/// (spec.md §4.9); in ReadOnly mode the write goes straight through,
/// since that cache's callers (FAT metadata) never batch updates.
func (m *Manager_t) Write(secno int, src []byte) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.ensure(secno)
	if err != 0 {
		return err
	}
	copy(m.slots[i].data[:], src)
	if m.mode == ReadWrite {
		m.slots[i].dirty = true
		return 0
	}
	return m.disk.WriteSector(m.startSector+secno, src)
}

/// SyncAll flushes every dirty slot to disk (lib.rs's sync_all).
func (m *Manager_t) SyncAll() defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if err := m.writeback(i); err != 0 {
			return err
		}
	}
	return 0
}

/// CachedBytes returns a pointer to the cached sector's backing array
/// without copying. File-backed mmap (spec.md §9) is wired through
/// fat32.Manager.CachedClusterFrame's per-cluster mem.FrameTracker_t
/// instead, one layer above this sector cache, so this is a direct-access
/// primitive for a caller that wants a sector's bytes by secno rather
/// than a mmap-able frame by cluster.
func (m *Manager_t) CachedBytes(secno int) (*[SectorSize]byte, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.ensure(secno)
	if err != 0 {
		return nil, err
	}
	return &m.slots[i].data, 0
}
