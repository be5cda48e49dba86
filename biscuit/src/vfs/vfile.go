// Package vfs implements the directory and open-file layer spec.md
// §4.11/§4.12 describe on top of package fat32's cluster/FAT view:
// VFile_t (directory entries, long-name reconstruction, cluster-chain
// read/write), a process-wide path index, OSFile_t (the per-fd
// read/write/seek/stat wrapper), and the Stdin/Stdout device stubs.
// Grounded on original_source/os/src/fs/vfile.rs's VFile/OSFile split,
// since the crate's own vfs.rs (the short/long directory-entry scanner
// vfile.rs calls into) was not part of the retrieved pack -- the entry
// scanning and long-name reconstruction below is this core's own
// rendering of that surface, built directly on package fat32's exported
// ShortDirEntry/EncodeLongNameChunk/DecodeLongNameChunk helpers.
package vfs

import (
	"sync"

	"defs"
	"fat32"
	"mem"
)

/// dirSlot_t locates one 32-byte directory entry: a byte offset into its
/// directory's cluster chain (cluster-chain-relative, not cluster-local,
/// so it stays valid across cluster boundaries -- see clusterOffset).
type dirSlot_t struct {
	offset int
}

/// VFile_t is one directory entry: a file or directory, caching its own
/// short entry's position for in-place update (vfile.rs's VFile).
type VFile_t struct {
	mu sync.Mutex

	fm   *fat32.Manager
	name string
	attr uint8
	size uint32

	firstCluster uint32
	cc           *fat32.ChainCache_t

	// short is this entry's own byte offset within its PARENT
	// directory's chain; the root has no parent and parentFirst==0.
	short       dirSlot_t
	parentFirst uint32
	longSlots   []dirSlot_t
}

/// NewRoot constructs the synthetic root VFile fixed at cluster 2
/// (fat32_manager.rs's get_root_vfile, spec.md §4.10 "The root VFile is
/// synthetic and fixed at cluster 2").
func NewRoot(fm *fat32.Manager) *VFile_t {
	return &VFile_t{
		fm:           fm,
		name:         "/",
		attr:         fat32.AttrDirectory,
		firstCluster: fm.RootFirstCluster,
		cc:           fat32.NewChainCache(),
	}
}

func (v *VFile_t) Name() string     { return v.name }
func (v *VFile_t) IsDir() bool      { return v.attr&fat32.AttrDirectory != 0 }
func (v *VFile_t) Size() uint32     { return v.size }
func (v *VFile_t) Attr() uint8      { return v.attr }
func (v *VFile_t) FirstCluster() uint32 { return v.firstCluster }

// clusterOffset maps a directory-chain-relative byte offset to the
// (cluster, in-cluster offset) pair that addresses it, filling the chain
// cache on first use. Returns cluster==0 once offset runs past the
// chain's allocated length.
func (v *VFile_t) clusterOffset(offset int) (uint32, int) {
	if v.firstCluster == 0 {
		return 0, offset % int(v.fm.BytesPerCluster)
	}
	if !v.cc.Filled() {
		v.cc.Fill(v.firstCluster, v.fm.FAT())
	}
	bpc := int(v.fm.BytesPerCluster)
	idx := offset / bpc
	inOff := offset % bpc
	return v.cc.ClusterAt(v.firstCluster, idx, v.fm.FAT()), inOff
}

func (v *VFile_t) readRaw(cluster uint32, inOff int) ([fat32.DirEntrySize]byte, defs.Err_t) {
	var raw [fat32.DirEntrySize]byte
	sector := v.fm.FirstSectorOfCluster(cluster) + inOff/fat32.BlockSize
	secOff := inOff % fat32.BlockSize
	buf := make([]byte, fat32.BlockSize)
	if err := v.fm.DataCache.Read(sector, buf); err != 0 {
		return raw, err
	}
	copy(raw[:], buf[secOff:secOff+fat32.DirEntrySize])
	return raw, 0
}

func (v *VFile_t) writeRaw(cluster uint32, inOff int, raw [fat32.DirEntrySize]byte) defs.Err_t {
	sector := v.fm.FirstSectorOfCluster(cluster) + inOff/fat32.BlockSize
	secOff := inOff % fat32.BlockSize
	buf := make([]byte, fat32.BlockSize)
	if err := v.fm.DataCache.Read(sector, buf); err != 0 {
		return err
	}
	copy(buf[secOff:secOff+fat32.DirEntrySize], raw[:])
	return v.fm.DataCache.Write(sector, buf)
}

func (v *VFile_t) readRawAt(offset int) (cluster uint32, raw [fat32.DirEntrySize]byte, err defs.Err_t) {
	cluster, inOff := v.clusterOffset(offset)
	if cluster == 0 {
		return 0, raw, 0
	}
	raw, err = v.readRaw(cluster, inOff)
	return cluster, raw, err
}

func (v *VFile_t) writeRawAt(offset int, raw [fat32.DirEntrySize]byte) defs.Err_t {
	cluster, inOff := v.clusterOffset(offset)
	if cluster == 0 {
		panic("writeRawAt: offset past directory's allocated chain")
	}
	return v.writeRaw(cluster, inOff, raw)
}

// reconstructLongName walks backward from a short entry at shortOffset,
// collecting its preceding long-name chunks (present in descending
// ordinal order on disk) until the checksum no longer matches or the
// first chunk (seq==1) is consumed, then falls back to the bare 8.3
// name if no chunks validate.
func (v *VFile_t) reconstructLongName(shortOffset int, short fat32.ShortDirEntry) string {
	want := fat32.ShortNameChecksum(short.Name)
	chunks := map[uint8][]uint16{}
	maxSeq := uint8(0)
	for pos := shortOffset - fat32.DirEntrySize; pos >= 0; pos -= fat32.DirEntrySize {
		cluster, raw, err := v.readRawAt(pos)
		if cluster == 0 || err != 0 || raw[11] != fat32.AttrLongName {
			break
		}
		seq, _, checksum, units := fat32.DecodeLongNameChunk(raw[:])
		if checksum != want {
			break
		}
		chunks[seq] = units
		if seq > maxSeq {
			maxSeq = seq
		}
		if seq == 1 {
			break
		}
	}
	if len(chunks) == 0 {
		return shortNameToString(short)
	}
	var all []uint16
	for s := uint8(1); s <= maxSeq; s++ {
		u, ok := chunks[s]
		if !ok {
			return shortNameToString(short)
		}
		all = append(all, u...)
	}
	s, err := utf16ToString(all)
	if err != nil {
		return shortNameToString(short)
	}
	return s
}

func (v *VFile_t) childAt(offset int) (child *VFile_t, raw [fat32.DirEntrySize]byte, ok bool, err defs.Err_t) {
	cluster, raw, err := v.readRawAt(offset)
	if cluster == 0 || err != 0 {
		return nil, raw, false, err
	}
	if raw[0] == fat32.EntryEndMark || raw[0] == fat32.EntryFreeMark || raw[11] == fat32.AttrLongName {
		return nil, raw, false, 0
	}
	short := fat32.ParseShortDirEntry(raw[:])
	name := v.reconstructLongName(offset, short)
	c := &VFile_t{
		fm:           v.fm,
		name:         name,
		attr:         short.Attr,
		size:         short.FileSize,
		firstCluster: short.FirstCluster(),
		cc:           fat32.NewChainCache(),
		short:        dirSlot_t{offset: offset},
		parentFirst:  v.firstCluster,
	}
	return c, raw, true, 0
}

/// Find scans v (which must be a directory) for a case-insensitively
/// matching entry (spec.md §4.11 "scan entries, reconstructing long
/// names; case-insensitive for short names").
func (v *VFile_t) Find(name string) (*VFile_t, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.IsDir() {
		return nil, -defs.ENOTDIR
	}
	if v.firstCluster == 0 {
		return nil, -defs.ENOENT
	}
	for offset := 0; ; offset += fat32.DirEntrySize {
		child, raw, _, err := v.childAt(offset)
		if err != 0 {
			return nil, err
		}
		cluster, _ := v.clusterOffset(offset)
		if cluster == 0 || raw[0] == fat32.EntryEndMark {
			return nil, -defs.ENOENT
		}
		if child == nil {
			continue // free slot or long-name continuation
		}
		if eqFold(child.name, name) {
			return child, 0
		}
	}
}

/// DirentInfo decodes the directory entry whose short entry begins
/// exactly at the chain-relative byte offset (spec.md §4.11
/// "dirent_info(offset) enumerates a directory for getdents-style
/// syscalls"). Callers step offset by fat32.DirEntrySize and skip slots
/// that come back ok==false (long-name continuations or free slots)
/// until end==true.
func (v *VFile_t) DirentInfo(offset int) (name string, firstCluster uint32, size uint32, attr uint8, ok bool, end bool, err defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cluster, raw, e := v.readRawAt(offset)
	if e != 0 {
		return "", 0, 0, 0, false, false, e
	}
	if cluster == 0 || raw[0] == fat32.EntryEndMark {
		return "", 0, 0, 0, false, true, 0
	}
	if raw[0] == fat32.EntryFreeMark || raw[11] == fat32.AttrLongName {
		return "", 0, 0, 0, false, false, 0
	}
	short := fat32.ParseShortDirEntry(raw[:])
	return v.reconstructLongName(offset, short), short.FirstCluster(), short.FileSize, short.Attr, true, false, 0
}

/// GetDataCachePhysaddr exposes the physical frame backing offset's
/// cluster, for vm.MmapFile_i's file-backed mmap path (spec.md §4.11
/// "get_data_cache_physaddr(offset)").
func (v *VFile_t) GetDataCachePhysaddr(offset int) (mem.Pa_t, defs.Err_t) {
	v.mu.Lock()
	cluster, _ := v.clusterOffset(offset)
	v.mu.Unlock()
	if cluster == 0 {
		return 0, -defs.EINVAL
	}
	return v.fm.CachedClusterFrame(cluster)
}

/// CachedPage adapts GetDataCachePhysaddr to vm.MmapFile_i's signature.
func (v *VFile_t) CachedPage(offset int) (mem.Pa_t, defs.Err_t) {
	return v.GetDataCachePhysaddr(offset)
}
