package vfs

import (
	"defs"
	"fat32"
)

// dataPosition maps a byte offset within v's own content to the sector
// holding it and the offset within that sector, filling the chain cache
// on first use; ok is false when the offset lies past v's cluster chain.
func (v *VFile_t) dataPosition(offset int) (sector int, secOff int, ok bool) {
	bpc := int(v.fm.BytesPerCluster)
	if !v.cc.Filled() {
		v.cc.Fill(v.firstCluster, v.fm.FAT())
	}
	cluster := v.cc.ClusterAt(v.firstCluster, offset/bpc, v.fm.FAT())
	if cluster == 0 {
		return 0, 0, false
	}
	inCluster := offset % bpc
	return v.fm.FirstSectorOfCluster(cluster) + inCluster/fat32.BlockSize, inCluster % fat32.BlockSize, true
}

/// ReadAt copies up to len(dst) bytes starting at offset into dst,
/// walking the file's cluster chain via the in-core chain cache (spec.md
/// §4.11 "read_at(offset, buf)"). Returns 0 at or past EOF.
func (v *VFile_t) ReadAt(offset int, dst []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.IsDir() {
		return 0, -defs.EISDIR
	}
	if offset >= int(v.size) {
		return 0, 0
	}
	n := len(dst)
	if offset+n > int(v.size) {
		n = int(v.size) - offset
	}
	out := 0
	buf := make([]byte, fat32.BlockSize)
	for out < n {
		sector, secOff, ok := v.dataPosition(offset + out)
		if !ok {
			break
		}
		if err := v.fm.DataCache.Read(sector, buf); err != 0 {
			return out, err
		}
		avail := fat32.BlockSize - secOff
		if rem := n - out; avail > rem {
			avail = rem
		}
		copy(dst[out:out+avail], buf[secOff:secOff+avail])
		out += avail
	}
	return out, 0
}

/// WriteAt writes len(src) bytes at offset, growing the cluster chain
/// (and the file's first cluster, if it has none yet) as needed, and
/// extending the short entry's size when the write runs past the
/// current end of file (spec.md §4.11 "write_at(offset, buf) ... grow
/// the chain as required and update the short entry's size").
func (v *VFile_t) WriteAt(offset int, src []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.IsDir() {
		return 0, -defs.EISDIR
	}
	newEnd := offset + len(src)
	if uint32(newEnd) > v.size {
		if err := v.growTo(uint32(newEnd)); err != 0 {
			return 0, err
		}
	}

	out := 0
	buf := make([]byte, fat32.BlockSize)
	for out < len(src) {
		sector, secOff, ok := v.dataPosition(offset + out)
		if !ok {
			return out, -defs.EIO
		}
		avail := fat32.BlockSize - secOff
		if rem := len(src) - out; avail > rem {
			avail = rem
		}
		if avail < fat32.BlockSize {
			if err := v.fm.DataCache.Read(sector, buf); err != 0 {
				return out, err
			}
		}
		copy(buf[secOff:secOff+avail], src[out:out+avail])
		if err := v.fm.DataCache.Write(sector, buf); err != 0 {
			return out, err
		}
		out += avail
	}

	if uint32(newEnd) > v.size {
		v.size = uint32(newEnd)
		if err := v.persistSize(); err != 0 {
			return out, err
		}
	}
	v.refreshTouchedFrames(offset, out)
	return out, 0
}

// growTo allocates enough additional clusters for v's content to reach
// newSz bytes, materializing v.firstCluster on the file's first write.
func (v *VFile_t) growTo(newSz uint32) defs.Err_t {
	if v.firstCluster == 0 {
		n := v.fm.SizeToCluster(newSz)
		if n == 0 {
			n = 1
		}
		first, err := v.fm.AllocCluster(n)
		if err != 0 {
			return err
		}
		v.firstCluster = first
		v.cc.ClearAll()
		return v.persistFirstCluster()
	}
	need := v.fm.ClusterCountNeeded(v.size, newSz, false, v.firstCluster)
	if need == 0 {
		return 0
	}
	first, err := v.fm.AllocCluster(need)
	if err != 0 {
		return err
	}
	tail := v.fm.FAT().FinalOf(v.firstCluster)
	if err := v.fm.FAT().SetNext(tail, first); err != 0 {
		return err
	}
	v.cc.ClearAll()
	return 0
}

// persistSize writes v's current size field back into its own short
// entry in its parent's chain.
func (v *VFile_t) persistSize() defs.Err_t {
	parent := &VFile_t{fm: v.fm, firstCluster: v.parentFirst, cc: fat32.NewChainCache(), attr: fat32.AttrDirectory}
	cluster, raw, err := parent.readRawAt(v.short.offset)
	if err != 0 {
		return err
	}
	if cluster == 0 {
		panic("persistSize: parent slot vanished")
	}
	short := fat32.ParseShortDirEntry(raw[:])
	short.FileSize = v.size
	short.Encode(raw[:])
	return parent.writeRawAt(v.short.offset, raw)
}

// refreshTouchedFrames keeps any outstanding mmap of a just-written
// cluster coherent with the data cache (fat32.Manager.RefreshClusterFrame).
func (v *VFile_t) refreshTouchedFrames(offset, n int) {
	if n == 0 {
		return
	}
	bpc := int(v.fm.BytesPerCluster)
	for o := offset - offset%bpc; o < offset+n; o += bpc {
		cluster := v.cc.ClusterAt(v.firstCluster, o/bpc, v.fm.FAT())
		if cluster == 0 {
			continue
		}
		v.fm.RefreshClusterFrame(cluster)
	}
}
