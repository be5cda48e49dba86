package vfs

import (
	"defs"
	"fat32"
)

// freeRun_t tracks the best contiguous run of free-or-past-end slots
// found so far while scanning a directory for room to insert new
// entries (the longest run of 0xE5 holes left by Remove that fits, the
// earliest one on ties, falling back to the logical end of the
// directory).
type freeRun_t struct {
	start int
	len   int
}

/// Create adds a new directory entry named name with attribute attr
/// inside v (which must be a directory), per spec.md §4.11: split the
/// name into 13-UTF16-unit long-name chunks (bare 8.3 names need none),
/// grow the parent's chain if the directory has no room, and -- for
/// regular files only -- allocate a starting cluster immediately
/// (directories stay at first_cluster=0 until their own first write).
func (v *VFile_t) Create(name string, attr uint8) (*VFile_t, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.IsDir() {
		return nil, -defs.ENOTDIR
	}

	shortName, shortNameFits := fitsShortName(name)
	var chunks [][]uint16
	if !shortNameFits {
		var err error
		chunks, err = longNameChunks(name)
		if err != nil {
			return nil, -defs.EINVAL
		}
	}
	needed := len(chunks) + 1 // long-name chunks plus the short entry

	existingShort := map[[11]byte]bool{}
	best := freeRun_t{start: -1}
	var run freeRun_t
	endOffset := -1

	for offset := 0; ; offset += fat32.DirEntrySize {
		cluster, raw, err := v.readRawAt(offset)
		if err != 0 {
			return nil, err
		}
		if cluster == 0 || raw[0] == fat32.EntryEndMark {
			endOffset = offset
			break
		}
		if raw[0] == fat32.EntryFreeMark {
			if run.len == 0 {
				run.start = offset
			}
			run.len++
			if run.len >= needed && (best.start < 0 || run.len > best.len) {
				best = run
			}
			continue
		}
		run = freeRun_t{}
		if raw[11] == fat32.AttrLongName {
			continue
		}
		short := fat32.ParseShortDirEntry(raw[:])
		existingShort[short.Name] = true
		if eqFold(v.reconstructLongName(offset, short), name) {
			return nil, -defs.EEXIST
		}
	}

	if !shortNameFits {
		seq := 1
		shortName = makeShortAlias(name, seq)
		for existingShort[shortName] {
			seq++
			shortName = makeShortAlias(name, seq)
		}
	}

	insertAt := endOffset
	if best.start >= 0 && best.len >= needed {
		insertAt = best.start
	} else if err := v.ensureDirRoom(endOffset, needed); err != 0 {
		return nil, err
	}

	checksum := fat32.ShortNameChecksum(shortName)
	slot := insertAt
	var longSlots []dirSlot_t
	for i, chunk := range chunks {
		seq := uint8(i + 1)
		isLast := i == len(chunks)-1
		var raw [fat32.DirEntrySize]byte
		fat32.EncodeLongNameChunk(raw[:], seq, isLast, checksum, chunk)
		if err := v.writeRawAt(slot, raw); err != 0 {
			return nil, err
		}
		longSlots = append(longSlots, dirSlot_t{offset: slot})
		slot += fat32.DirEntrySize
	}

	short := fat32.ShortDirEntry{Name: shortName, Attr: attr}
	if attr&fat32.AttrDirectory == 0 {
		first, err := v.fm.AllocCluster(1)
		if err != 0 {
			return nil, err
		}
		short.SetFirstCluster(first)
	}
	var shortRaw [fat32.DirEntrySize]byte
	short.Encode(shortRaw[:])
	if err := v.writeRawAt(slot, shortRaw); err != 0 {
		return nil, err
	}

	child := &VFile_t{
		fm:           v.fm,
		name:         name,
		attr:         attr,
		firstCluster: short.FirstCluster(),
		cc:           fat32.NewChainCache(),
		short:        dirSlot_t{offset: slot},
		parentFirst:  v.firstCluster,
		longSlots:    longSlots,
	}
	return child, 0
}

// ensureDirRoom grows v's own cluster chain (or materializes its first
// cluster, if v was itself a lazily-created directory) so that at least
// needed more directory-entry slots exist starting at endOffset.
func (v *VFile_t) ensureDirRoom(endOffset, needed int) defs.Err_t {
	bpc := int(v.fm.BytesPerCluster)
	slotsPerCluster := bpc / fat32.DirEntrySize
	haveInLastCluster := slotsPerCluster - (endOffset/fat32.DirEntrySize)%slotsPerCluster
	if c, _ := v.clusterOffset(endOffset); c == 0 {
		// endOffset lies just past a full chain: no slot exists there yet.
		haveInLastCluster = 0
	}
	if haveInLastCluster >= needed && v.firstCluster != 0 {
		return 0
	}
	shortFall := needed - haveInLastCluster
	extra := uint32((shortFall + slotsPerCluster - 1) / slotsPerCluster)
	if v.firstCluster == 0 {
		extra = uint32((needed + slotsPerCluster - 1) / slotsPerCluster)
	}
	if extra == 0 {
		extra = 1
	}
	first, err := v.fm.AllocCluster(extra)
	if err != 0 {
		return err
	}
	if v.firstCluster == 0 {
		v.firstCluster = first
		if err := v.persistFirstCluster(); err != 0 {
			return err
		}
	} else {
		tail := v.fm.FAT().FinalOf(v.firstCluster)
		if err := v.fm.FAT().SetNext(tail, first); err != 0 {
			return err
		}
	}
	v.cc.ClearAll()
	return 0
}

// persistFirstCluster writes v's (just-materialized) first_cluster back
// into its own short entry in its parent's chain.
func (v *VFile_t) persistFirstCluster() defs.Err_t {
	parent := &VFile_t{fm: v.fm, firstCluster: v.parentFirst, cc: fat32.NewChainCache(), attr: fat32.AttrDirectory}
	cluster, raw, err := parent.readRawAt(v.short.offset)
	if err != 0 {
		return err
	}
	if cluster == 0 {
		panic("persistFirstCluster: parent slot vanished")
	}
	short := fat32.ParseShortDirEntry(raw[:])
	short.SetFirstCluster(v.firstCluster)
	short.Encode(raw[:])
	return parent.writeRawAt(v.short.offset, raw)
}
