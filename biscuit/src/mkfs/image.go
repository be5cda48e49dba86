package main

import (
	"encoding/binary"
	"fmt"

	"fat32"
)

// geometry holds the layout decisions this tool makes when laying out a
// fresh FAT32 volume: fixed 512-byte sectors, 4096-byte (8-sector)
// clusters so every cluster fits in exactly one simulated-RAM frame
// (fat32.Manager.CachedClusterFrame refuses a cluster larger than
// mem.PGSIZE), 32 reserved sectors (boot sector at 0, FSInfo at 1), and
// a FAT region sized to cover every cluster the requested image can
// hold.
type geometry struct {
	totalSectors      uint32
	reservedSectors   uint32
	sectorsPerCluster uint32
	numFATs           uint32
	fatSizeSectors    uint32
	rootSector        uint32
	clusterCount      uint32
}

const (
	fsInfoSector = 1
)

func computeGeometry(imageBytes int64) geometry {
	const bytesPerSector = fat32.BlockSize
	g := geometry{
		totalSectors:      uint32(imageBytes / bytesPerSector),
		reservedSectors:   32,
		sectorsPerCluster: 8,
		numFATs:           2,
	}
	// First pass: size the FAT region against the data region we'd have
	// if the FAT were zero-length, then shrink the data region by the
	// FAT's own footprint and settle on the resulting cluster count --
	// one iteration suffices since the FAT's entry count only ever
	// shrinks on the second pass.
	dataSectors := g.totalSectors - g.reservedSectors
	clusters := dataSectors / g.sectorsPerCluster
	g.fatSizeSectors = fatSectorsFor(clusters)

	dataSectors = g.totalSectors - g.reservedSectors - g.numFATs*g.fatSizeSectors
	g.clusterCount = dataSectors / g.sectorsPerCluster
	g.fatSizeSectors = fatSectorsFor(g.clusterCount)
	g.rootSector = g.reservedSectors + g.numFATs*g.fatSizeSectors
	return g
}

func fatSectorsFor(clusterCount uint32) uint32 {
	entries := clusterCount + 2 // clusters 0 and 1 are reserved slots
	bytes := entries * 4
	return (bytes + fat32.BlockSize - 1) / fat32.BlockSize
}

// writeBootSector lays out sector 0: the BPB, the FAT32 EBR, and the
// 0x55AA boot signature, following the byte offsets fat32/layout.go's
// parseBPB/parseEBR read back.
func writeBootSector(sec []byte, g geometry) {
	for i := range sec {
		sec[i] = 0
	}
	binary.LittleEndian.PutUint16(sec[11:13], fat32.BlockSize)
	sec[13] = byte(g.sectorsPerCluster)
	binary.LittleEndian.PutUint16(sec[14:16], uint16(g.reservedSectors))
	sec[16] = byte(g.numFATs)
	sec[21] = 0xF8 // media: fixed disk
	binary.LittleEndian.PutUint32(sec[32:36], g.totalSectors)

	binary.LittleEndian.PutUint32(sec[36:40], g.fatSizeSectors)
	binary.LittleEndian.PutUint32(sec[44:48], 2) // root directory starts at cluster 2
	binary.LittleEndian.PutUint16(sec[48:50], fsInfoSector)
	sec[66] = 0x29 // boot signature (extended)
	binary.LittleEndian.PutUint32(sec[67:71], 0xB16B00B5)
	copy(sec[71:82], []byte("NO NAME    "))
	copy(sec[82:90], []byte("FAT32   "))

	sec[510] = 0x55
	sec[511] = 0xAA
}

// writeFSInfo lays out the FSInfo sector matching fat32/layout.go's
// parseFSInfo signature checks.
func writeFSInfo(sec []byte, freeClusters, hint uint32) {
	for i := range sec {
		sec[i] = 0
	}
	binary.LittleEndian.PutUint32(sec[0:4], 0x41615252)
	binary.LittleEndian.PutUint32(sec[484:488], 0x61417272)
	binary.LittleEndian.PutUint32(sec[488:492], freeClusters)
	binary.LittleEndian.PutUint32(sec[492:496], hint)
	binary.LittleEndian.PutUint32(sec[508:512], 0xAA550000)
}

// formatImage writes a fresh FAT32 volume to disk: the boot sector and
// FSInfo sector, a zeroed FAT region with the reserved cluster-0/1
// entries and the root directory's (cluster 2) end-of-chain marker
// filled in, and a zeroed root-directory cluster.
func formatImage(disk *fileDisk, g geometry) error {
	sec := make([]byte, fat32.BlockSize)

	writeBootSector(sec, g)
	if err := writeRaw(disk, 0, sec); err != nil {
		return err
	}

	writeFSInfo(sec, g.clusterCount-1, 2)
	if err := writeRaw(disk, fsInfoSector, sec); err != nil {
		return err
	}

	zero := make([]byte, fat32.BlockSize)
	fat1 := g.reservedSectors
	fat2 := fat1 + g.fatSizeSectors
	for i := uint32(0); i < g.fatSizeSectors; i++ {
		if err := writeRaw(disk, int(fat1+i), zero); err != nil {
			return err
		}
		if err := writeRaw(disk, int(fat2+i), zero); err != nil {
			return err
		}
	}
	if err := setFATEntry(disk, fat1, 0, 0x0FFFFFF8); err != nil {
		return err
	}
	if err := setFATEntry(disk, fat1, 1, 0x0FFFFFFF); err != nil {
		return err
	}
	if err := setFATEntry(disk, fat1, 2, fat32.EndCluster); err != nil {
		return err
	}
	if err := setFATEntry(disk, fat2, 0, 0x0FFFFFF8); err != nil {
		return err
	}
	if err := setFATEntry(disk, fat2, 1, 0x0FFFFFFF); err != nil {
		return err
	}
	if err := setFATEntry(disk, fat2, 2, fat32.EndCluster); err != nil {
		return err
	}

	for i := uint32(0); i < g.sectorsPerCluster; i++ {
		if err := writeRaw(disk, int(g.rootSector+i), zero); err != nil {
			return err
		}
	}
	return nil
}

func setFATEntry(disk *fileDisk, fatFirstSec, cluster, val uint32) error {
	const entriesPerSector = fat32.BlockSize / 4
	sec := fatFirstSec + cluster/entriesPerSector
	off := 4 * (cluster % entriesPerSector)
	buf := make([]byte, fat32.BlockSize)
	if err := readRaw(disk, int(sec), buf); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], val)
	return writeRaw(disk, int(sec), buf)
}

func writeRaw(disk *fileDisk, secno int, buf []byte) error {
	if err := disk.WriteSector(secno, buf); err != 0 {
		return fmt.Errorf("mkfs: write sector %d: errno %d", secno, err)
	}
	return nil
}

func readRaw(disk *fileDisk, secno int, buf []byte) error {
	if err := disk.ReadSector(secno, buf); err != 0 {
		return fmt.Errorf("mkfs: read sector %d: errno %d", secno, err)
	}
	return nil
}
