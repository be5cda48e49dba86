package vfs

import (
	"defs"
	"fat32"
)

/// Remove marks every directory-entry slot belonging to v (its long-name
/// chunks and its short entry) free, without releasing its cluster chain
/// (spec.md §4.11 "remove() marks all entry slots free").
func (v *VFile_t) Remove() defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	parent := &VFile_t{fm: v.fm, firstCluster: v.parentFirst, cc: fat32.NewChainCache(), attr: fat32.AttrDirectory}
	for _, slot := range v.longSlots {
		if err := markFree(parent, slot.offset); err != 0 {
			return err
		}
	}
	return markFree(parent, v.short.offset)
}

func markFree(parent *VFile_t, offset int) defs.Err_t {
	cluster, raw, err := parent.readRawAt(offset)
	if err != 0 {
		return err
	}
	if cluster == 0 {
		panic("markFree: slot vanished")
	}
	raw[0] = fat32.EntryFreeMark
	return parent.writeRawAt(offset, raw)
}

/// Delete removes v's directory entries and releases its cluster chain
/// (spec.md §4.11 "delete() additionally releases the cluster chain").
func (v *VFile_t) Delete() defs.Err_t {
	if err := v.Remove(); err != 0 {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.firstCluster == 0 {
		return 0
	}
	clusters := v.fm.FAT().AllClusters(v.firstCluster)
	if err := v.fm.DeallocCluster(clusters); err != 0 {
		return err
	}
	v.firstCluster = 0
	v.cc.ClearAll()
	return 0
}
