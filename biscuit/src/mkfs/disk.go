package main

import (
	"os"

	"golang.org/x/sys/unix"

	"defs"
	"fat32"
)

// fileDisk implements block.Disk_i over a host file, the host-tool
// equivalent of fsimg.rs's BlockCache addressing FSIMG_BASE+BLOCK_SZ*
// block_id directly in memory: here each sector is instead an lseek+
// read/write against the image file on disk.
type fileDisk struct {
	f *os.File
}

func openFileDisk(path string, size int64) (*fileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	// unix.Ftruncate over os.File.Truncate: the latter is itself a thin
	// wrapper around the same syscall, but going through x/sys/unix keeps
	// this host tool on the same syscall package the rest of the domain
	// stack uses rather than stdlib's os package for raw fd operations.
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		f.Close()
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
