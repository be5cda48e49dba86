// Command mkfs builds a FAT32 disk image and populates it from a host
// skeleton directory tree, the host-side counterpart to this core's
// fat32/vfs packages (spec.md §4.10/§4.11). Grounded on the teacher's
// own biscuit/src/mkfs/mkfs.go, which walks a skeldir via
// filepath.WalkDir and replicates it into a freshly made disk image
// with ufs.MkDisk/ufs.BootFS; this tool follows the same addfiles/
// copydata shape over this core's fat32.Manager/vfs.Mount_t instead.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"block"
	"defs"
	"fat32"
	"vfs"
)

const (
	infoCacheCap = 64
	dataCacheCap = 256
	copyChunk    = 64 * 1024
)

func main() {
	if len(os.Args) < 4 {
		fmt.Printf("usage: mkfs <image size MiB> <output image> <skeleton dir>\n")
		os.Exit(1)
	}
	var sizeMiB int64
	if _, err := fmt.Sscanf(os.Args[1], "%d", &sizeMiB); err != nil || sizeMiB <= 0 {
		fmt.Printf("mkfs: bad image size %q\n", os.Args[1])
		os.Exit(1)
	}
	image := os.Args[2]
	skeldir := os.Args[3]

	g := computeGeometry(sizeMiB * 1024 * 1024)

	disk, err := openFileDisk(image, int64(g.totalSectors)*fat32.BlockSize)
	if err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
	if err := formatImage(disk, g); err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}

	infoCache := block.NewManager(disk, block.ReadOnly, infoCacheCap)
	dataCache := block.NewManager(disk, block.ReadWrite, dataCacheCap)
	fm, errt := fat32.Open(infoCache, dataCache)
	if errt != 0 {
		fmt.Printf("mkfs: open freshly formatted image: errno %d\n", errt)
		os.Exit(1)
	}
	mount := vfs.NewMount(fm)

	addfiles(mount, skeldir)

	if err := dataCache.SyncAll(); err != 0 {
		fmt.Printf("mkfs: sync data cache: errno %d\n", err)
		os.Exit(1)
	}
	if err := fm.SyncFSInfo(); err != 0 {
		fmt.Printf("mkfs: sync fsinfo: errno %d\n", err)
		os.Exit(1)
	}
	if err := disk.Close(); err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
}

// addfiles walks skeldir on the host and replicates its contents into
// mount, directories first so a file's parent always already exists.
func addfiles(mount *vfs.Mount_t, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("mkfs: failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, "/") {
			rel = "/" + rel
		}

		if d.IsDir() {
			if e := mount.Mkdir(rel); e != 0 {
				fmt.Printf("mkfs: failed to create dir %v: errno %d\n", rel, e)
			}
			return nil
		}
		copydata(path, mount, rel)
		return nil
	})
	if err != nil {
		fmt.Printf("mkfs: error walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

// copydata creates rel inside mount and streams src's host bytes into it
// chunk by chunk.
func copydata(src string, mount *vfs.Mount_t, rel string) {
	srcFile, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer srcFile.Close()

	osf, errt := mount.OpenCommonFile(rel, defs.O_CREAT|defs.O_TRUNC|defs.O_WRONLY)
	if errt != 0 {
		panic(fmt.Sprintf("mkfs: create %v: errno %d", rel, errt))
	}
	defer osf.Close()

	buf := make([]byte, copyChunk)
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			uio := newFakeIO(buf[:n])
			if _, errt := osf.Write(uio); errt != 0 {
				panic(fmt.Sprintf("mkfs: write %v: errno %d", rel, errt))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			panic(readErr)
		}
	}
}
