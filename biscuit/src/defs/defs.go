// Package defs collects the types and numeric constants shared across every
// kernel package: error codes, process/thread identifiers, signal numbers,
// the syscall table's indices, and the ELF auxiliary-vector tags.
package defs

/// Err_t is the kernel's error type: zero means success, otherwise a
/// negative errno-style value. Nothing in this core propagates a Go
/// `error` across a syscall boundary -- see spec.md §7.
type Err_t int

/// Pid_t identifies a process.
type Pid_t int

/// Tid_t identifies a thread within a process.
type Tid_t int

// Errno values returned (negated) to userspace at the syscall boundary.
const (
	EPERM    Err_t = 1
	ENOENT   Err_t = 2
	ESRCH    Err_t = 3
	EINTR    Err_t = 4
	EIO      Err_t = 5
	ENOEXEC  Err_t = 8
	EBADF    Err_t = 9
	ECHILD   Err_t = 10
	EAGAIN   Err_t = 11
	ENOMEM   Err_t = 12
	EACCES   Err_t = 13
	EFAULT   Err_t = 14
	EEXIST   Err_t = 17
	EXDEV    Err_t = 18
	ENODEV   Err_t = 19
	ENOTDIR  Err_t = 20
	EISDIR   Err_t = 21
	EINVAL   Err_t = 22
	ENFILE   Err_t = 23
	EMFILE   Err_t = 24
	ENOTTY   Err_t = 25
	ENOSPC   Err_t = 28
	ESPIPE   Err_t = 29
	EPIPE    Err_t = 32
	ENAMETOOLONG Err_t = 36
	ENOSYS   Err_t = 38
	ENOTEMPTY Err_t = 39
	ERANGE   Err_t = 34
)

// Signal numbers. The fatal set used by the default-action path in
// spec.md §4.8 is {SIGINT, SIGILL, SIGABRT, SIGFPE, SIGSEGV}.
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGQUIT = 3
	SIGILL  = 4
	SIGABRT = 6
	SIGFPE  = 8
	SIGKILL = 9
	SIGUSR1 = 10
	SIGSEGV = 11
	SIGUSR2 = 12
	SIGPIPE = 13
	SIGALRM = 14
	SIGTERM = 15
	SIGCHLD = 17
	SIGCONT = 18
	SIGSTOP = 19

	NSIG = 64
)

/// FatalSignals is the default-action-terminates set from spec.md §4.8.
var FatalSignals = map[int]bool{
	SIGINT:  true,
	SIGILL:  true,
	SIGABRT: true,
	SIGFPE:  true,
	SIGSEGV: true,
}

// Handler dispositions recognized by the signal-action table (spec.md §4.8).
const (
	SIG_DFL uintptr = 0
	SIG_IGN uintptr = 1
)

// sigaction flags (supplements spec.md per SPEC_FULL.md §4, following
// original_source/os/src/task/siginfo.rs).
const (
	SA_RESTART  = 1 << 28
	SA_SIGINFO  = 1 << 2
	SA_NODEFER  = 1 << 30
)

// Signal mask / sigprocmask "how" values.
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)

// waitpid options (spec.md §4.6).
const (
	WNOHANG = 1
)

// AT_FDCWD is openat/mkdirat/unlinkat's "resolve relative to cwd" dirfd
// sentinel (spec.md §6 fs family).
const AT_FDCWD = -100

// open flags (spec.md §4.11).
const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREAT  = 0x040
	O_EXCL   = 0x080
	O_TRUNC  = 0x200
	O_APPEND = 0x400
	O_NONBLOCK = 0x800
	O_DIRECTORY = 0x10000
	O_CLOEXEC = 0x80000
)

// mmap prot/flags (spec.md §4.6).
const (
	PROT_NONE  = 0x0
	PROT_READ  = 0x1
	PROT_WRITE = 0x2
	PROT_EXEC  = 0x4

	MAP_SHARED    = 0x01
	MAP_PRIVATE   = 0x02
	MAP_FIXED     = 0x10
	MAP_ANONYMOUS = 0x20
)

// clone flags relevant to fork()'s thread-creation path.
const (
	CLONE_VM      = 0x00000100
	CLONE_THREAD  = 0x00010000
	CLONE_SIGHAND = 0x00000800
)

/// Syscall numbers. Families mirror the table in spec.md §6.
const (
	SYS_GETCWD    = 17
	SYS_DUP       = 23
	SYS_MKDIRAT   = 34
	SYS_UNLINKAT  = 35
	SYS_CHDIR     = 49
	SYS_OPENAT    = 56
	SYS_CLOSE     = 57
	SYS_PIPE2     = 59
	SYS_GETDENTS  = 61
	SYS_READ      = 63
	SYS_WRITE     = 64
	SYS_FSTAT     = 80
	SYS_EXIT      = 93
	SYS_EXIT_GROUP = 94
	SYS_SET_TID_ADDRESS = 96
	SYS_NANOSLEEP = 101
	SYS_SCHED_YIELD = 124
	SYS_KILL      = 129
	SYS_TKILL     = 130
	SYS_RT_SIGACTION   = 134
	SYS_RT_SIGPROCMASK = 135
	SYS_RT_SIGRETURN   = 139
	SYS_GETTIMEOFDAY = 169
	SYS_GETPID    = 172
	SYS_GETTID    = 178
	SYS_BRK       = 214
	SYS_CLONE     = 220
	SYS_EXECVE    = 221
	SYS_MMAP      = 222
	SYS_MUNMAP    = 215
	SYS_WAIT4     = 260
)

// ELF auxiliary-vector tags written onto the initial user stack
// (spec.md §4.3/§4.6).
const (
	AT_NULL     = 0
	AT_PHDR     = 3
	AT_PHENT    = 4
	AT_PHNUM    = 5
	AT_PAGESZ   = 6
	AT_BASE     = 7
	AT_FLAGS    = 8
	AT_ENTRY    = 9
	AT_UID      = 11
	AT_EUID     = 12
	AT_GID      = 13
	AT_EGID     = 14
	AT_PLATFORM = 15
	AT_HWCAP    = 16
	AT_CLKTCK   = 17
	AT_SECURE   = 23
	AT_RANDOM   = 25
	AT_NOTELF   = 10
)
