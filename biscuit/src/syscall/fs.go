package syscall

import (
	"defs"
	"fd"
	"mem"
	"pipe"
	"proc"
	"stat"
	"ustr"
	"vfs"
)

// Mount is the single mounted filesystem every fs-family syscall resolves
// paths against (spec.md §4.10/§4.11), installed once at boot by the
// composition root, mirroring how package mem exposes a single package-
// level Physmem allocator rather than threading one through every call.
var Mount *vfs.Mount_t

const maxPathLen = 4096

// ensureCwd lazily installs a process's root-rooted cwd the first time any
// path-taking syscall needs one. proc.Process_t has no constructor-time
// dependency on vfs (it is tested standalone, with no filesystem mounted),
// so the cwd is wired in here instead, the first time the syscall layer
// that does know about Mount actually needs it.
func ensureCwd(p *proc.Process_t) *fd.Cwd_t {
	if p.Cwd == nil {
		root := vfs.NewOSFile(Mount.Root, defs.O_RDONLY|defs.O_DIRECTORY)
		p.Cwd = fd.MkRootCwd(&fd.Fd_t{Fops: root, Perms: fd.FD_READ})
	}
	return p.Cwd
}

// resolvePath canonicalizes a user-supplied path argument against dirfd.
// Only defs.AT_FDCWD is honored: this core's Fdops_i.Pathi() reports only
// a descriptor's own entry name, not its full path, so there is no way to
// resolve a non-cwd dirfd back to an absolute path without extending that
// interface -- a real dirfd value is therefore reported as unsupported
// rather than silently resolved against the wrong base.
func resolvePath(th *proc.Thread_t, dirfd int64, pathVA mem.Va_t) (string, defs.Err_t) {
	if int(dirfd) != defs.AT_FDCWD {
		return "", -defs.ENOSYS
	}
	raw, err := copyInString(th.Process().AS, pathVA, maxPathLen)
	if err != 0 {
		return "", err
	}
	canon := ensureCwd(th.Process()).Canonicalpath(ustr.Ustr(raw))
	return canon.String(), 0
}

func permsFromFlags(flags int) int {
	p := 0
	switch flags & (defs.O_WRONLY | defs.O_RDWR) {
	case defs.O_RDONLY:
		p = fd.FD_READ
	case defs.O_WRONLY:
		p = fd.FD_WRITE
	default:
		p = fd.FD_READ | fd.FD_WRITE
	}
	if flags&defs.O_CLOEXEC != 0 {
		p |= fd.FD_CLOEXEC
	}
	return p
}

func sysOpenat(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	path, err := resolvePath(th, int64(args[0]), mem.Va_t(args[1]))
	if err != 0 {
		return 0, err
	}
	flags := int(args[2])
	osf, err := Mount.OpenCommonFile(path, flags)
	if err != 0 {
		return 0, err
	}
	fdnum := th.Process().AllocFd(0)
	th.Process().SetFd(fdnum, &fd.Fd_t{Fops: osf, Perms: permsFromFlags(flags)})
	return fdnum, 0
}

func sysClose(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	fdnum := int(args[0])
	f, ok := th.Process().GetFd(fdnum)
	if !ok {
		return 0, -defs.EBADF
	}
	err := f.Fops.Close()
	th.Process().ClearFd(fdnum)
	return 0, err
}

func sysRead(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	f, ok := th.Process().GetFd(int(args[0]))
	if !ok {
		return 0, -defs.EBADF
	}
	if f.Perms&fd.FD_READ == 0 {
		return 0, -defs.EBADF
	}
	uio := newUserIO(th.Process().AS, mem.Va_t(args[1]), int(args[2]))
	return f.Fops.Read(uio)
}

func sysWrite(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	f, ok := th.Process().GetFd(int(args[0]))
	if !ok {
		return 0, -defs.EBADF
	}
	if f.Perms&fd.FD_WRITE == 0 {
		return 0, -defs.EBADF
	}
	uio := newUserIO(th.Process().AS, mem.Va_t(args[1]), int(args[2]))
	n, err := f.Fops.Write(uio)
	if err == -defs.EPIPE {
		th.Process().Sigs.Raise(defs.SIGPIPE)
	}
	return n, err
}

func sysPipe2(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	r, w, err := pipe.New(int(args[1]))
	if err != 0 {
		return 0, err
	}
	p := th.Process()
	rfd := p.AllocFd(0)
	p.SetFd(rfd, &fd.Fd_t{Fops: r, Perms: fd.FD_READ})
	wfd := p.AllocFd(0)
	p.SetFd(wfd, &fd.Fd_t{Fops: w, Perms: fd.FD_WRITE})

	var out [8]byte
	out[0], out[1], out[2], out[3] = byte(rfd), byte(rfd>>8), byte(rfd>>16), byte(rfd>>24)
	out[4], out[5], out[6], out[7] = byte(wfd), byte(wfd>>8), byte(wfd>>16), byte(wfd>>24)
	if err := copyOutBytes(p.AS, mem.Va_t(args[0]), out[:]); err != 0 {
		return 0, err
	}
	return 0, 0
}

func sysDup(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	f, ok := th.Process().GetFd(int(args[0]))
	if !ok {
		return 0, -defs.EBADF
	}
	nf, err := fd.Copyfd(f)
	if err != 0 {
		return 0, err
	}
	newfd := th.Process().AllocFd(0)
	th.Process().SetFd(newfd, nf)
	return newfd, 0
}

func sysFstat(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	f, ok := th.Process().GetFd(int(args[0]))
	if !ok {
		return 0, -defs.EBADF
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return 0, err
	}
	if err := copyOutBytes(th.Process().AS, mem.Va_t(args[1]), st.Bytes()); err != 0 {
		return 0, err
	}
	return 0, 0
}

func sysGetdents(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	f, ok := th.Process().GetFd(int(args[0]))
	if !ok {
		return 0, -defs.EBADF
	}
	uio := newUserIO(th.Process().AS, mem.Va_t(args[1]), int(args[2]))
	return f.Fops.Getdents(uio)
}

func sysChdir(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	path, err := resolvePath(th, int64(defs.AT_FDCWD), mem.Va_t(args[0]))
	if err != 0 {
		return 0, err
	}
	vf, err := vfs.Resolve(Mount.Root, Mount.Index, path)
	if err != 0 {
		return 0, err
	}
	if !vf.IsDir() {
		return 0, -defs.ENOTDIR
	}
	cwd := ensureCwd(th.Process())
	cwd.Lock()
	cwd.Fd = &fd.Fd_t{Fops: vfs.NewOSFile(vf, defs.O_RDONLY|defs.O_DIRECTORY), Perms: fd.FD_READ}
	cwd.Path = ustr.Ustr(path)
	cwd.Unlock()
	return 0, 0
}

func sysGetcwd(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	cwd := ensureCwd(th.Process())
	cwd.Lock()
	path := append(append(ustr.Ustr{}, cwd.Path...), 0)
	cwd.Unlock()
	if len(path) > int(args[1]) {
		return 0, -defs.ERANGE
	}
	if err := copyOutBytes(th.Process().AS, mem.Va_t(args[0]), path); err != 0 {
		return 0, err
	}
	return int(args[0]), 0
}

func sysMkdirat(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	path, err := resolvePath(th, int64(args[0]), mem.Va_t(args[1]))
	if err != 0 {
		return 0, err
	}
	return 0, Mount.Mkdir(path)
}

func sysUnlinkat(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	path, err := resolvePath(th, int64(args[0]), mem.Va_t(args[1]))
	if err != 0 {
		return 0, err
	}
	return 0, Mount.Unlink(path)
}
