package vfs

import (
	"defs"
	"fat32"
)

/// Mount bundles the pieces OpenCommonFile and friends need: the
/// mounted filesystem's root VFile and the process-wide path index
/// (spec.md §4.11/§4.12).
type Mount_t struct {
	Root  *VFile_t
	Index *PathIndex_t
}

/// NewMount opens fm and builds its root VFile plus an empty path
/// index.
func NewMount(fm *fat32.Manager) *Mount_t {
	root := NewRoot(fm)
	return &Mount_t{Root: root, Index: NewPathIndex()}
}

/// OpenCommonFile resolves an absolute, canonical path to an OSFile_t,
/// per spec.md §4.11's "open_common_file consults this index first,
/// then the parent's index, then walks from the root. OpenFlags::TRUNC
/// removes the old entry and recreates it; APPEND sets the initial file
/// offset to the file size; CREATE creates on miss" (vfile.rs's
/// open_common_file/do_create_common_file).
func (m *Mount_t) OpenCommonFile(path string, flags int) (*OSFile_t, defs.Err_t) {
	vf, err := Resolve(m.Root, m.Index, path)
	if err == -defs.ENOENT {
		if flags&defs.O_CREAT == 0 {
			return nil, -defs.ENOENT
		}
		vf, err = m.createAtPath(path, fat32.AttrArchive)
		if err != 0 {
			return nil, err
		}
		m.Index.Put(path, vf)
		return NewOSFile(vf, flags), 0
	}
	if err != 0 {
		return nil, err
	}
	if flags&defs.O_EXCL != 0 && flags&defs.O_CREAT != 0 {
		return nil, -defs.EEXIST
	}
	if flags&defs.O_DIRECTORY != 0 && !vf.IsDir() {
		return nil, -defs.ENOTDIR
	}
	if flags&defs.O_TRUNC != 0 && !vf.IsDir() {
		if err := vf.Delete(); err != 0 {
			return nil, err
		}
		m.Index.Del(path)
		vf, err = m.createAtPath(path, fat32.AttrArchive)
		if err != 0 {
			return nil, err
		}
		m.Index.Put(path, vf)
	}
	return NewOSFile(vf, flags), 0
}

// createAtPath creates path's final component inside its (already
// existing) parent directory.
func (m *Mount_t) createAtPath(path string, attr uint8) (*VFile_t, defs.Err_t) {
	dir, name := splitDirBase(path)
	parent, err := Resolve(m.Root, m.Index, dir)
	if err != 0 {
		return nil, err
	}
	return parent.Create(name, attr)
}

// splitDirBase splits an absolute, canonical path into its parent
// directory path and final component ("/a/b" -> "/a", "b"; "/a" -> "/",
// "a").
func splitDirBase(path string) (dir, base string) {
	i := lastSlash(path)
	if i <= 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

/// Mkdir creates a directory at path (spec.md §6's mkdirat).
func (m *Mount_t) Mkdir(path string) defs.Err_t {
	if _, err := Resolve(m.Root, m.Index, path); err != -defs.ENOENT {
		if err == 0 {
			return -defs.EEXIST
		}
		return err
	}
	vf, err := m.createAtPath(path, fat32.AttrDirectory)
	if err != 0 {
		return err
	}
	m.Index.Put(path, vf)
	return 0
}

/// Unlink removes the directory entry at path, releasing its cluster
/// chain (spec.md §6's unlinkat).
func (m *Mount_t) Unlink(path string) defs.Err_t {
	vf, err := Resolve(m.Root, m.Index, path)
	if err != 0 {
		return err
	}
	if vf.IsDir() {
		return -defs.EISDIR
	}
	if err := vf.Delete(); err != 0 {
		return err
	}
	m.Index.Del(path)
	return 0
}
