package syscall

import (
	"defs"
	"mem"
	"proc"
	"sched"
)

// Sys_t implements trap.Dispatcher_i for one hart, grounded on
// original_source/os/src/syscall/mod.rs's syscall() dispatch match: decode
// the syscall number out of a7, switch on defs.SYS_*, and hand the
// remaining argument registers to the matching family handler.
type Sys_t struct {
	Hartid int
}

func (s *Sys_t) current() *proc.Thread_t {
	r := sched.Processor(s.Hartid).Current()
	if r == nil {
		panic("syscall: no current thread on this hart")
	}
	th, ok := r.(*proc.Thread_t)
	if !ok {
		panic("syscall: current runnable is not a *proc.Thread_t")
	}
	return th
}

/// Syscall implements trap.Dispatcher_i: num/args come straight from the
/// trap context's a7/a0..a5 (trap.TrapContext_t.SyscallArgs).
func (s *Sys_t) Syscall(num uint64, args [6]uint64) int64 {
	th := s.current()
	switch num {
	// fs family (spec.md §6)
	case defs.SYS_OPENAT:
		return ret(sysOpenat(th, args))
	case defs.SYS_CLOSE:
		return ret(sysClose(th, args))
	case defs.SYS_READ:
		return ret(sysRead(th, args))
	case defs.SYS_WRITE:
		return ret(sysWrite(th, args))
	case defs.SYS_PIPE2:
		return ret(sysPipe2(th, args))
	case defs.SYS_DUP:
		return ret(sysDup(th, args))
	case defs.SYS_FSTAT:
		return ret(sysFstat(th, args))
	case defs.SYS_GETDENTS:
		return ret(sysGetdents(th, args))
	case defs.SYS_CHDIR:
		return ret(sysChdir(th, args))
	case defs.SYS_GETCWD:
		return ret(sysGetcwd(th, args))
	case defs.SYS_MKDIRAT:
		return ret(sysMkdirat(th, args))
	case defs.SYS_UNLINKAT:
		return ret(sysUnlinkat(th, args))

	// proc family
	case defs.SYS_CLONE:
		return ret(sysClone(th, args))
	case defs.SYS_EXECVE:
		return ret(sysExecve(th, args))
	case defs.SYS_EXIT, defs.SYS_EXIT_GROUP:
		return ret(sysExit(th, args))
	case defs.SYS_WAIT4:
		return ret(sysWait4(th, args))
	case defs.SYS_GETPID:
		return int64(th.Process().Pid)
	case defs.SYS_GETTID:
		return int64(th.TidT())
	case defs.SYS_BRK:
		return ret(sysBrk(th, args))
	case defs.SYS_MMAP:
		return ret(sysMmap(th, args))
	case defs.SYS_MUNMAP:
		return ret(sysMunmap(th, args))
	case defs.SYS_SET_TID_ADDRESS:
		th.ClearChildTid = mem.Va_t(args[0])
		return int64(th.TidT())

	// signal family
	case defs.SYS_KILL:
		return ret(sysKill(th, args))
	case defs.SYS_TKILL:
		return ret(sysTkill(th, args))
	case defs.SYS_RT_SIGACTION:
		return ret(sysRtSigaction(th, args))
	case defs.SYS_RT_SIGPROCMASK:
		return ret(sysRtSigprocmask(th, args))
	case defs.SYS_RT_SIGRETURN:
		return ret(sysRtSigreturn(th, args))

	// time family
	case defs.SYS_GETTIMEOFDAY:
		return ret(sysGettimeofday(th, args))
	case defs.SYS_NANOSLEEP:
		return ret(sysNanosleep(th, args))

	// sched family
	case defs.SYS_SCHED_YIELD:
		return ret(sysSchedYield(th, args))

	default:
		return int64(-defs.ENOSYS)
	}
}

// ret folds a (value, Err_t) handler result into the single int64 a
// syscall return register carries: success returns value, failure
// returns the negated errno, matching every Linux-ABI syscall convention
// this core's userspace expects.
func ret(v int, err defs.Err_t) int64 {
	if err != 0 {
		return int64(err)
	}
	return int64(v)
}
