package main

import (
	"os"

	"defs"
	"fat32"
)

// fileDisk implements block.Disk_i over a host file holding a FAT32 image,
// the same seam biscuit/src/mkfs's fileDisk satisfies when it builds one;
// here the kernel only ever reads/writes an image someone already built.
type fileDisk struct {
	f *os.File
}

func openFileDisk(path string) (*fileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &fileDisk{f: f}, nil
}

func (d *fileDisk) ReadSector(secno int, buf []byte) defs.Err_t {
	if _, err := d.f.ReadAt(buf[:fat32.BlockSize], int64(secno)*fat32.BlockSize); err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *fileDisk) WriteSector(secno int, buf []byte) defs.Err_t {
	if _, err := d.f.WriteAt(buf[:fat32.BlockSize], int64(secno)*fat32.BlockSize); err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *fileDisk) Close() error { return d.f.Close() }
