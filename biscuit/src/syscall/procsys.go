package syscall

import (
	"mem"
	"proc"
	"stat"
	"ustr"
	"vfs"
	"vm"

	"defs"
)

func sysClone(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	flags := args[0]
	if flags&uint64(defs.CLONE_VM) != 0 || flags&uint64(defs.CLONE_THREAD) != 0 {
		// Thread-creation-flavored clone needs a shared address space and
		// TCB roster this core's single-threaded fork/exec model doesn't
		// have (spec.md §9 "Single-thread exec"); only the fork-like path
		// below is supported.
		return 0, -defs.ENOSYS
	}
	child, _, err := th.Process().Fork()
	if err != 0 {
		return 0, err
	}
	return int(child.Pid), 0
}

// readStringVec reads a NUL-pointer-terminated array of user string
// pointers (argv/envp), grounded on original_source/os/src/syscall/
// process.rs's sys_exec loop over translated_ref(token, args).
func readStringVec(ms *vm.MemorySet_t, arrVA mem.Va_t) ([]string, defs.Err_t) {
	if arrVA == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; i < 256; i++ {
		raw, err := copyInBytes(ms, arrVA+mem.Va_t(i*8), 8)
		if err != 0 {
			return nil, err
		}
		ptr := mem.Va_t(uint64(raw[0]) | uint64(raw[1])<<8 | uint64(raw[2])<<16 | uint64(raw[3])<<24 |
			uint64(raw[4])<<32 | uint64(raw[5])<<40 | uint64(raw[6])<<48 | uint64(raw[7])<<56)
		if ptr == 0 {
			return out, 0
		}
		s, err := copyInString(ms, ptr, maxPathLen)
		if err != 0 {
			return nil, err
		}
		out = append(out, s)
	}
	return out, -defs.EINVAL
}

// sysExecve reads and validates the path/argv/envp vectors the way the
// original's sys_exec does, then replaces the process's address space
// (proc.Process_t.Exec) and rewrites the calling thread's own trap
// context in place so the next return-to-user-mode resumes at the new
// entry point and stack pointer. trap.Dispatcher_i only carries a0 back
// through Handle, so reaching sepc/sp requires going directly at the
// thread's trap-context page the way mem.Dmap already reinterprets
// physical memory as a typed Go value.
func sysExecve(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	ms := th.Process().AS
	path, err := copyInString(ms, mem.Va_t(args[0]), maxPathLen)
	if err != 0 {
		return 0, err
	}
	argv, err := readStringVec(ms, mem.Va_t(args[1]))
	if err != 0 {
		return 0, err
	}
	envp, err := readStringVec(ms, mem.Va_t(args[2]))
	if err != 0 {
		return 0, err
	}

	canon := ensureCwd(th.Process()).Canonicalpath(ustr.Ustr(path))
	osf, err := Mount.OpenCommonFile(canon.String(), defs.O_RDONLY)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	if err := osf.Fstat(&st); err != 0 {
		return 0, err
	}
	img := make([]byte, st.Size())
	if _, err := osf.Read(newFakeIO(img)); err != 0 {
		return 0, err
	}
	osf.Close()

	entry, sp, _, err := th.Process().Exec(img, argv, envp)
	if err != 0 {
		return 0, err
	}
	writeTrapContextEntry(th, uint64(entry), uint64(sp))
	return len(argv), 0
}

func sysExit(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	th.Process().Exit(int(int32(args[0])))
	return 0, 0
}

func sysWait4(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	wantedPid := defs.Pid_t(int32(args[0]))
	nohang := args[2]&uint64(defs.WNOHANG) != 0
	pid, code, err := th.Process().Wait4(wantedPid, nohang)
	if err != 0 {
		return 0, err
	}
	if statusVA := mem.Va_t(args[1]); statusVA != 0 && pid != 0 {
		status := uint32(code&0xff) << 8
		var buf [4]byte
		buf[0], buf[1], buf[2], buf[3] = byte(status), byte(status>>8), byte(status>>16), byte(status>>24)
		if err := copyOutBytes(th.Process().AS, statusVA, buf[:]); err != 0 {
			return 0, err
		}
	}
	return int(pid), 0
}

func sysBrk(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	top, err := th.Process().Brk(mem.Va_t(args[0]))
	return int(top), err
}

// sysMmap resolves args[4]'s fd to the process's open OSFile_t when the
// mapping isn't MAP_ANONYMOUS, so file-backed mappings actually reach
// vm.MemorySet_t.Mmap with a vm.MmapFile_i instead of always going
// through the anonymous, lazily-zero-filled path (spec.md §4.6 "mmap
// records fd and offset").
func sysMmap(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	length := int(args[1])
	prot := int(args[2])
	flags := int(args[3])
	perm := mem.Pa_t(0)
	if prot&defs.PROT_READ != 0 {
		perm |= mem.PTE_R
	}
	if prot&defs.PROT_WRITE != 0 {
		perm |= mem.PTE_W
	}
	if prot&defs.PROT_EXEC != 0 {
		perm |= mem.PTE_X
	}

	var file vm.MmapFile_i
	if flags&defs.MAP_ANONYMOUS == 0 {
		fdesc, ok := th.Process().GetFd(int(args[4]))
		if !ok {
			return 0, -defs.EBADF
		}
		osf, ok := fdesc.Fops.(*vfs.OSFile_t)
		if !ok {
			return 0, -defs.EINVAL
		}
		file = osf
	}

	addr, err := th.Process().Mmap(length, perm, flags, file, int(args[5]))
	return int(addr), err
}

func sysMunmap(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	return 0, th.Process().Munmap(mem.Va_t(args[0]))
}
