// FAT is the dual-mirrored cluster-chain view (spec.md §4.10), grounded
// on fat32_fs/src/fat.rs's FAT type (next_free_cluster/get_next_cluster/
// set_next_cluster/get_cluster_at/get_final_cluster/get_all_clusters/
// cluster_count), generalized to the Go block.Manager_t cache built in
// package block instead of fat.rs's get_info_block_cache helper.
package fat32

import "defs"
import "block"

const (
	entriesPerSector = BlockSize / 4

	FreeCluster = 0x00000000
	EndCluster  = 0x0FFFFFF8
	BadCluster  = 0x0FFFFFF7

	clusterMask = 0x0FFFFFFF
)

/// FAT is the mirrored FAT1/FAT2 view over the info cache.
type FAT struct {
	infoCache      *block.Manager_t
	firstFAT1Sec   uint32
	firstFAT2Sec   uint32
	fatSizeSectors uint32
	maxCluster     uint32
}

/// NewFAT builds a FAT view from the boot-time-computed FAT1/FAT2 sector
/// numbers and the FAT region's size in sectors (fat.rs's FAT::new).
func NewFAT(infoCache *block.Manager_t, firstFAT1Sec, firstFAT2Sec, fatSizeSectors uint32) *FAT {
	return &FAT{
		infoCache:      infoCache,
		firstFAT1Sec:   firstFAT1Sec,
		firstFAT2Sec:   firstFAT2Sec,
		fatSizeSectors: fatSizeSectors,
		maxCluster:     fatSizeSectors * entriesPerSector,
	}
}

func (f *FAT) position(cluster uint32) (fat1Sec, fat2Sec uint32, off int) {
	fat1Sec = f.firstFAT1Sec + cluster/entriesPerSector
	fat2Sec = f.firstFAT2Sec + cluster/entriesPerSector
	off = 4 * int(cluster%entriesPerSector)
	return
}

func (f *FAT) readEntry(sec uint32, off int) (uint32, defs.Err_t) {
	buf := make([]byte, BlockSize)
	if err := f.infoCache.Read(int(sec), buf); err != 0 {
		return 0, err
	}
	return le32(buf[off : off+4]), 0
}

func (f *FAT) writeEntry(sec uint32, off int, val uint32) defs.Err_t {
	buf := make([]byte, BlockSize)
	if err := f.infoCache.Read(int(sec), buf); err != 0 {
		return err
	}
	putLe32(buf[off:off+4], val)
	return f.infoCache.Write(int(sec), buf)
}

/// NextFreeCluster scans forward from curr+1 for a free (unallocated)
/// cluster slot, returning 0 if the FAT is exhausted (fat.rs's
/// next_free_cluster / spec.md §4.10 "find_next_free").
func (f *FAT) NextFreeCluster(curr uint32) uint32 {
	c := curr + 1
	for c <= f.maxCluster {
		fat1Sec, _, off := f.position(c)
		v, err := f.readEntry(fat1Sec, off)
		if err == 0 && v&clusterMask == FreeCluster {
			return c & clusterMask
		}
		c++
	}
	return 0
}

/// NextCluster reads cluster's successor, consulting FAT2 if FAT1 names a
/// bad-cluster marker, returning 0 if both are bad (spec.md §4.10
/// "next_cluster").
func (f *FAT) NextCluster(cluster uint32) uint32 {
	fat1Sec, fat2Sec, off := f.position(cluster)
	v1, err := f.readEntry(fat1Sec, off)
	if err == 0 && v1&clusterMask != BadCluster {
		return v1 & clusterMask
	}
	v2, err := f.readEntry(fat2Sec, off)
	if err != 0 || v2&clusterMask == BadCluster {
		return 0
	}
	return v2 & clusterMask
}

/// SetNext writes next into both FAT1 and FAT2's entry for cluster
/// (spec.md §4.10 "set_next: write both FATs").
func (f *FAT) SetNext(cluster, next uint32) defs.Err_t {
	fat1Sec, fat2Sec, off := f.position(cluster)
	if err := f.writeEntry(fat1Sec, off, next); err != 0 {
		return err
	}
	return f.writeEntry(fat2Sec, off, next)
}

/// SetEnd marks cluster as the chain's final entry.
func (f *FAT) SetEnd(cluster uint32) defs.Err_t {
	return f.SetNext(cluster, EndCluster)
}

/// ClusterAt walks index steps forward from start, returning 0 if the
/// chain runs out before reaching it.
func (f *FAT) ClusterAt(start uint32, index int) uint32 {
	c := start
	for i := 0; i < index; i++ {
		c = f.NextCluster(c)
		if c == 0 || c >= EndCluster {
			return 0
		}
	}
	return c & clusterMask
}

/// FinalOf walks to the end of start's chain, returning 0 on a broken
/// chain (spec.md §4.10 "final_of").
func (f *FAT) FinalOf(start uint32) uint32 {
	c := start
	for {
		next := f.NextCluster(c)
		if next >= EndCluster {
			return c & clusterMask
		}
		if next == 0 {
			return 0
		}
		c = next
	}
}

/// AllClusters returns every cluster in start's chain, in order.
func (f *FAT) AllClusters(start uint32) []uint32 {
	var out []uint32
	c := start
	for {
		out = append(out, c&clusterMask)
		next := f.NextCluster(c)
		if next >= EndCluster || next == 0 {
			return out
		}
		c = next
	}
}

/// Count returns the number of clusters in start's chain (0 for the
/// sentinel values 0 and 1, matching fat.rs's cluster_count).
func (f *FAT) Count(start uint32) uint32 {
	if start == 0 || start == 1 {
		return 0
	}
	var n uint32
	c := start
	for {
		n++
		next := f.NextCluster(c)
		if next >= EndCluster || next == 0 {
			return n
		}
		c = next
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
