// Layout parsing for the on-disk FAT32 structures spec.md §4.10 names:
// the BPB, the FAT32 extended boot record (EBR), FSInfo, and short/long
// directory entries. The byte offsets below follow the standard FAT32
// on-disk layout that fat32_manager.rs's FAT32Manager::open reads
// (bpb.first_fat_sector/table_count, ebr.fsinfo_sector/fat_size,
// fsinfo_inner.is_valid) -- the crate's own layout.rs (declared by
// fat32_fs/src/lib.rs) was not part of the retrieved pack, so these
// structures are parsed directly with encoding/binary rather than
// guessed-at Go struct tags, avoiding any host-dependent padding.
package fat32

import "encoding/binary"

const (
	BlockSize = 512

	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID

	DirEntrySize = 32
	LongNameLen  = 13 // UTF-16 code units packed per long-name entry
)

// BPB is the BIOS Parameter Block occupying sector 0 bytes [0, 36).
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	TotalSectors16    uint16
	Media             uint8
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

func parseBPB(sec []byte) BPB {
	return BPB{
		BytesPerSector:    binary.LittleEndian.Uint16(sec[11:13]),
		SectorsPerCluster: sec[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sec[14:16]),
		NumFATs:           sec[16],
		TotalSectors16:    binary.LittleEndian.Uint16(sec[19:21]),
		Media:             sec[21],
		SectorsPerTrack:   binary.LittleEndian.Uint16(sec[24:26]),
		NumHeads:          binary.LittleEndian.Uint16(sec[26:28]),
		HiddenSectors:     binary.LittleEndian.Uint32(sec[28:32]),
		TotalSectors32:    binary.LittleEndian.Uint32(sec[32:36]),
	}
}

func (b BPB) FirstFATSector() uint32 { return uint32(b.ReservedSectors) }

// EBR is the FAT32 extended boot record occupying sector 0 bytes [36, 90).
type EBR struct {
	FATSize32       uint32
	ExtFlags        uint16
	FSVersion       uint16
	RootCluster     uint32
	FSInfoSector    uint16
	BackupBootSec   uint16
	DriveNumber     uint8
	BootSignature   uint8
	VolumeID        uint32
	VolumeLabel     [11]byte
	FSType          [8]byte
}

func parseEBR(sec []byte) EBR {
	e := EBR{
		FATSize32:     binary.LittleEndian.Uint32(sec[36:40]),
		ExtFlags:      binary.LittleEndian.Uint16(sec[40:42]),
		FSVersion:     binary.LittleEndian.Uint16(sec[42:44]),
		RootCluster:   binary.LittleEndian.Uint32(sec[44:48]),
		FSInfoSector:  binary.LittleEndian.Uint16(sec[48:50]),
		BackupBootSec: binary.LittleEndian.Uint16(sec[50:52]),
		DriveNumber:   sec[64],
		BootSignature: sec[66],
		VolumeID:      binary.LittleEndian.Uint32(sec[67:71]),
	}
	copy(e.VolumeLabel[:], sec[71:82])
	copy(e.FSType[:], sec[82:90])
	return e
}

func (e EBR) FATSize() uint32       { return e.FATSize32 }
func (e EBR) FSInfoSec() uint32     { return uint32(e.FSInfoSector) }

const (
	fsInfoLeadSig  = 0x41615252
	fsInfoStrucSig = 0x61417272
	fsInfoTrailSig = 0xAA550000
)

// FSInfo is the allocation hint sector (spec.md §4.10 "parses the BPB,
// EBR, and FSInfo (signature check is required)").
type FSInfo struct {
	sector          uint32
	freeClusters    uint32
	lastAllocHint   uint32
}

func parseFSInfo(sector uint32, sec []byte) (FSInfo, bool) {
	lead := binary.LittleEndian.Uint32(sec[0:4])
	struc := binary.LittleEndian.Uint32(sec[484:488])
	trail := binary.LittleEndian.Uint32(sec[508:512])
	if lead != fsInfoLeadSig || struc != fsInfoStrucSig || trail != fsInfoTrailSig {
		return FSInfo{}, false
	}
	return FSInfo{
		sector:        sector,
		freeClusters:  binary.LittleEndian.Uint32(sec[488:492]),
		lastAllocHint: binary.LittleEndian.Uint32(sec[492:496]),
	}, true
}

func (f FSInfo) encode(sec []byte) {
	binary.LittleEndian.PutUint32(sec[0:4], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(sec[484:488], fsInfoStrucSig)
	binary.LittleEndian.PutUint32(sec[488:492], f.freeClusters)
	binary.LittleEndian.PutUint32(sec[492:496], f.lastAllocHint)
	binary.LittleEndian.PutUint32(sec[508:512], fsInfoTrailSig)
}

// ShortDirEntry is one 32-byte FAT short (8.3) directory entry.
type ShortDirEntry struct {
	Name        [11]byte
	Attr        uint8
	FirstClusHi uint16
	FirstClusLo uint16
	FileSize    uint32
}

func ParseShortDirEntry(b []byte) ShortDirEntry {
	var e ShortDirEntry
	copy(e.Name[:], b[0:11])
	e.Attr = b[11]
	e.FirstClusHi = binary.LittleEndian.Uint16(b[20:22])
	e.FirstClusLo = binary.LittleEndian.Uint16(b[26:28])
	e.FileSize = binary.LittleEndian.Uint32(b[28:32])
	return e
}

func (e ShortDirEntry) Encode(b []byte) {
	copy(b[0:11], e.Name[:])
	b[11] = e.Attr
	binary.LittleEndian.PutUint16(b[20:22], e.FirstClusHi)
	binary.LittleEndian.PutUint16(b[26:28], e.FirstClusLo)
	binary.LittleEndian.PutUint32(b[28:32], e.FileSize)
}

func (e ShortDirEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusHi)<<16 | uint32(e.FirstClusLo)
}

func (e *ShortDirEntry) SetFirstCluster(c uint32) {
	e.FirstClusHi = uint16(c >> 16)
	e.FirstClusLo = uint16(c & 0xFFFF)
}

func (e ShortDirEntry) IsDir() bool { return e.Attr&AttrDirectory != 0 }
func (e ShortDirEntry) Free() bool  { return b0(e.Name) == 0x00 || b0(e.Name) == 0xE5 }

func b0(name [11]byte) byte { return name[0] }

// EntryFreeMark/EntryEndMark mark a slot's first byte as spec.md §4.11's "remove()
// marks all entry slots free".
const (
	EntryFreeMark = 0xE5
	EntryEndMark  = 0x00
)

/// EncodeLongNameChunk packs one chunk (up to 13 UTF-16 code units) of a
/// long name into a 32-byte long-name directory entry at ordinal seq
/// (1-based, OR'd with 0x40 for the last physical entry per the FAT32
/// long-name convention). When units is shorter than 13 -- only possible
/// for the chunk nearest the name's end -- the slot right after the last
/// real character is padded with a single NUL terminator, and every slot
/// after that with 0xFFFF, per spec.md §4.11 "padding the tail chunk with
/// \0 then 0xFF".
func EncodeLongNameChunk(b []byte, seq uint8, isLast bool, checksum uint8, units []uint16) {
	ord := seq
	if isLast {
		ord |= 0x40
	}
	b[0] = ord
	b[11] = AttrLongName
	b[12] = 0
	b[13] = checksum
	b[26] = 0
	b[27] = 0

	var padded [LongNameLen]uint16
	n := min(len(units), LongNameLen)
	copy(padded[:n], units[:n])
	for i := n; i < LongNameLen; i++ {
		if i == n {
			padded[i] = 0x0000
		} else {
			padded[i] = 0xFFFF
		}
	}

	putRange := func(off int, lo, hi int) {
		for i := lo; i < hi; i++ {
			binary.LittleEndian.PutUint16(b[off+2*(i-lo):off+2*(i-lo)+2], padded[i])
		}
	}
	putRange(1, 0, 5)
	putRange(14, 5, 11)
	putRange(28, 11, 13)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func DecodeLongNameChunk(b []byte) (seq uint8, isLast bool, checksum uint8, units []uint16) {
	seq = b[0] &^ 0x40
	isLast = b[0]&0x40 != 0
	checksum = b[13]
	units = make([]uint16, 0, LongNameLen)
	add := func(off, n int) {
		for i := 0; i < n; i++ {
			units = append(units, binary.LittleEndian.Uint16(b[off+2*i:off+2*i+2]))
		}
	}
	add(1, 5)
	add(14, 6)
	add(28, 2)
	return
}

/// ShortNameChecksum is the standard FAT32 8.3-name checksum used to
/// validate/generate long-name entries against their short entry.
func ShortNameChecksum(name [11]byte) uint8 {
	var sum uint8
	for _, c := range name {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}
