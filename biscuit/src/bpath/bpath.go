// Package bpath implements the small amount of path-string surgery the
// kernel needs: joining a relative path onto a cwd and collapsing "." and
// ".." components without ever touching the filesystem. Real component
// resolution (does the directory exist, is it a directory) is the VFS
// layer's job; this package only manipulates the byte string.
package bpath

import "ustr"

/// Canonicalize collapses "." and ".." components of an absolute path and
/// drops repeated/trailing slashes. The result always starts with "/" and
/// never ends with "/" unless it is the root itself.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	parts := Split(p)
	stack := make([]ustr.Ustr, 0, len(parts))
	for _, c := range parts {
		switch {
		case len(c) == 0:
		case c.Isdot():
		case c.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	ret := ustr.Ustr{'/'}
	for i, c := range stack {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}

/// Split breaks a path into its non-empty slash-separated components.
func Split(p ustr.Ustr) []ustr.Ustr {
	var ret []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				ret = append(ret, p[start:i])
			}
			start = i + 1
		}
	}
	return ret
}

/// Dir returns the canonical parent directory of p ("/" for a top-level
/// entry).
func Dir(p ustr.Ustr) ustr.Ustr {
	parts := Split(Canonicalize(p))
	if len(parts) <= 1 {
		return ustr.MkUstrRoot()
	}
	ret := ustr.Ustr{'/'}
	for i, c := range parts[:len(parts)-1] {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}

/// Base returns the final component of p.
func Base(p ustr.Ustr) ustr.Ustr {
	parts := Split(p)
	if len(parts) == 0 {
		return ustr.MkUstrRoot()
	}
	return parts[len(parts)-1]
}
