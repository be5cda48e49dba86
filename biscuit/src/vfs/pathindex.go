package vfs

import (
	"sync"

	"defs"
	"hashtable"
)

/// PathIndex_t is the process-wide path index spec.md §4.11 describes:
/// a cache from absolute path string to its resolved VFile, consulted by
/// OpenCommonFile before falling back to a parent-directory walk
/// (package hashtable's lock-striped table, the same collaborator
/// SPEC_FULL.md assigns this role in place of the teacher's network
/// connection table).
type PathIndex_t struct {
	mu sync.Mutex
	ht *hashtable.Hashtable_t
}

/// NewPathIndex builds an empty path index.
func NewPathIndex() *PathIndex_t {
	return &PathIndex_t{ht: hashtable.MkHash(64)}
}

func (p *PathIndex_t) Get(path string) (*VFile_t, bool) {
	v, ok := p.ht.Get(path)
	if !ok {
		return nil, false
	}
	return v.(*VFile_t), true
}

func (p *PathIndex_t) Put(path string, v *VFile_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ht.Get(path); ok {
		p.ht.Del(path)
	}
	p.ht.Set(path, v)
}

func (p *PathIndex_t) Del(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ht.Get(path); ok {
		p.ht.Del(path)
	}
}

// splitPath breaks an absolute, already-canonical "/a/b/c" path into its
// component names ("a","b","c"); "/" itself yields no components.
func splitPath(path string) []string {
	var parts []string
	start := 1 // skip the leading '/'
	for i := 1; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

/// Resolve walks path (an absolute, canonical string) from root,
/// consulting idx for the full path and for each ancestor directory
/// along the way before falling back to a Find on disk (spec.md §4.11
/// "open_common_file consults this index first, then the parent's
/// index, then walks from the root").
func Resolve(root *VFile_t, idx *PathIndex_t, path string) (*VFile_t, defs.Err_t) {
	if path == "/" {
		return root, 0
	}
	if v, ok := idx.Get(path); ok {
		return v, 0
	}
	parts := splitPath(path)
	cur := root
	cursor := ""
	for _, name := range parts {
		if cursor == "" {
			cursor = "/" + name
		} else {
			cursor = cursor + "/" + name
		}
		if v, ok := idx.Get(cursor); ok {
			cur = v
			continue
		}
		child, err := cur.Find(name)
		if err != 0 {
			return nil, err
		}
		idx.Put(cursor, child)
		cur = child
	}
	return cur, 0
}
