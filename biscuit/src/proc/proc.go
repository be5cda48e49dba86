// Package proc implements the process/thread control blocks of spec.md
// §4.6: Process_t (PCB) owns one address space, an fd table, and a set of
// threads; Thread_t (TCB) is one schedulable unit within a process.
//
// Grounded on original_source/os/src/task/{process.rs,task.rs}:
// ProcessControlBlock/TaskControlBlock split, a single mutex guarding each
// PCB's mutable fields (the Rust uses spin::Mutex; this core uses
// sync.Mutex the way the teacher's fd.Cwd_t embeds one), fork/exec/mmap
// semantics translated 1:1 from process.rs's fork/exec/mmap/munmap, with
// no copy-on-write (spec.md's explicit Non-goal) and no multi-threaded
// fork support (spec.md §4.6 "fork duplicates only the calling thread").
package proc

import (
	"sync"

	"accnt"
	"defs"
	"fd"
	"mem"
	"sched"
	"tinfo"
	"trap"
	"vm"
)

/// Thread_t is one schedulable unit (spec.md §3 "Thread").
type Thread_t struct {
	tid      defs.Tid_t
	Pid      defs.Pid_t
	mu       sync.Mutex
	status   sched.Status_t
	ExitCode int

	KstackTop mem.Va_t
	TrapCxVA  mem.Va_t
	TrapCxPA  mem.Pa_t

	// ClearChildTid is the address set_tid_address installs; a real clone
	// tears this down on thread exit by zeroing it and waking any futex
	// waiter. This core never creates additional threads within a process
	// (spec.md's single-thread Non-goal), so nothing currently clears it,
	// but set_tid_address still records it for a caller that reads it back.
	ClearChildTid mem.Va_t

	note *tinfo.Tnote_t
	proc *Process_t
}

/// Note returns the thread's kill/doom bookkeeping record (spec.md §4.6's
/// kill path, original_source's TaskControlBlockInner.kill flag).
func (t *Thread_t) Note() *tinfo.Tnote_t { return t.note }

/// Kill marks the thread doomed, for the SIGKILL/fatal-signal delivery
/// path to observe before the thread next returns to user mode.
func (t *Thread_t) Kill() {
	t.note.Lock()
	defer t.note.Unlock()
	t.note.Killed = true
	t.note.Isdoomed = true
}

/// Tid satisfies sched.Runnable_i.
func (t *Thread_t) Tid() int { return int(t.tid) }

/// TidT returns the thread id as the domain type defs.Tid_t.
func (t *Thread_t) TidT() defs.Tid_t { return t.tid }

func (t *Thread_t) Status() sched.Status_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Thread_t) SetStatus(s sched.Status_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

/// Process returns the owning process.
func (t *Thread_t) Process() *Process_t { return t.proc }

/// Process_t is one process control block (spec.md §3 "Process").
type Process_t struct {
	Pid defs.Pid_t

	mu       sync.Mutex
	zombie   bool
	AS       *vm.MemorySet_t
	parent   *Process_t
	children []*Process_t
	exitCode int

	FdTable []*fd.Fd_t
	Cwd     *fd.Cwd_t
	Sigs    *trap.SigInfo_t

	// Accnt tracks this process's own usage; Rusage accumulates the usage
	// of reaped children, the split wait4(2)'s RUSAGE_SELF/RUSAGE_CHILDREN
	// distinction needs (spec.md §4.6 "wait4", accnt.Accnt_t's Add/Fetch).
	Accnt  accnt.Accnt_t
	Rusage accnt.Accnt_t

	threads map[defs.Tid_t]*Thread_t

	waitCh  chan struct{}
	birthNs int
}

var (
	procTableMu  sync.Mutex
	procTable    = map[defs.Pid_t]*Process_t{}
	threadTable  = map[defs.Tid_t]*Thread_t{}
	nextPid      defs.Pid_t = 1
	nextTid      defs.Tid_t = 1
)

/// LookupThread returns the thread with the given tid, if still alive
/// (the tkill/tgkill family's target resolution, spec.md §6).
func LookupThread(tid defs.Tid_t) (*Thread_t, bool) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	t, ok := threadTable[tid]
	return t, ok
}

func allocPid() defs.Pid_t {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	p := nextPid
	nextPid++
	return p
}

func allocTid() defs.Tid_t {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	t := nextTid
	nextTid++
	return t
}

/// Lookup returns the process with the given pid, if still alive.
func Lookup(pid defs.Pid_t) (*Process_t, bool) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	p, ok := procTable[pid]
	return p, ok
}

func register(p *Process_t) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	procTable[p.Pid] = p
}

func unregister(pid defs.Pid_t) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	delete(procTable, pid)
}

/// NewProcess builds the first process from an ELF image -- the "init"
/// construction mode of spec.md §4.6 (original_source's
/// ProcessControlBlock::new). stdio provides the inherited fd 0/1/2.
func NewProcess(elfImg []byte, stdio [3]*fd.Fd_t) (*Process_t, defs.Tid_t, mem.Va_t, mem.Va_t, []vm.AuxEntry_t, defs.Err_t) {
	as, entry, sp, auxv, err := vm.NewFromElf(elfImg)
	if err != 0 {
		return nil, 0, 0, 0, nil, err
	}

	p := &Process_t{
		AS:      as,
		FdTable: []*fd.Fd_t{stdio[0], stdio[1], stdio[2]},
		Sigs:    trap.NewSigInfo(),
		threads: make(map[defs.Tid_t]*Thread_t),
		waitCh:  make(chan struct{}, 1),
	}
	p.birthNs = p.Accnt.Now()
	p.Pid = allocPid()
	register(p)

	th := p.newThread()
	th.TrapCxVA = vm.TrapContextVA(0)
	trapCxPa, err := as.MapTrapContext(th.TrapCxVA)
	if err != 0 {
		unregister(p.Pid)
		return nil, 0, 0, 0, nil, err
	}
	th.TrapCxPA = trapCxPa
	// KstackTop is filled in by the caller once it allocates this thread's
	// kernel stack (spec.md §4.6); proc has no opinion on kernel-stack
	// placement.
	th.SetStatus(sched.Runnable)
	sched.Ready.Push(th)
	return p, th.TidT(), entry, sp, auxv, 0
}

func (p *Process_t) newThread() *Thread_t {
	note := &tinfo.Tnote_t{Alive: true}
	th := &Thread_t{tid: allocTid(), Pid: p.Pid, proc: p, status: sched.Runnable, note: note}
	tinfo.SetCurrent(th.tid, note)
	p.mu.Lock()
	p.threads[th.tid] = th
	p.mu.Unlock()
	procTableMu.Lock()
	threadTable[th.tid] = th
	procTableMu.Unlock()
	return th
}

/// Signal raises sig against every thread of p (kill(2)'s process-directed
/// semantics, spec.md §4.8); SIGKILL additionally dooms each thread
/// immediately rather than waiting for the next trap-return's signal
/// check, matching the fatal-signal fast path original_source's
/// task/process.rs kill handling takes.
func (p *Process_t) Signal(sig int) {
	p.Sigs.Raise(sig)
	if sig == defs.SIGKILL {
		p.mu.Lock()
		threads := make([]*Thread_t, 0, len(p.threads))
		for _, th := range p.threads {
			threads = append(threads, th)
		}
		p.mu.Unlock()
		for _, th := range threads {
			th.Kill()
		}
	}
}

/// AllocFd finds the lowest free descriptor number at or above minfd
/// (spec.md §4.6 "alloc_fd", original_source's ProcessControlBlockInner::alloc_fd).
func (p *Process_t) AllocFd(minfd int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := minfd
	for {
		for i >= len(p.FdTable) {
			p.FdTable = append(p.FdTable, nil)
		}
		if p.FdTable[i] == nil {
			return i
		}
		i++
	}
}

/// GetFd returns the Fd_t installed at fdnum, if any.
func (p *Process_t) GetFd(fdnum int) (*fd.Fd_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fdnum < 0 || fdnum >= len(p.FdTable) || p.FdTable[fdnum] == nil {
		return nil, false
	}
	return p.FdTable[fdnum], true
}

/// SetFd installs f at fdnum, growing the table if needed.
func (p *Process_t) SetFd(fdnum int, f *fd.Fd_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fdnum >= len(p.FdTable) {
		p.FdTable = append(p.FdTable, nil)
	}
	p.FdTable[fdnum] = f
}

/// ClearFd removes the descriptor at fdnum without closing it.
func (p *Process_t) ClearFd(fdnum int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fdnum >= 0 && fdnum < len(p.FdTable) {
		p.FdTable[fdnum] = nil
	}
}

/// ThreadCount reports the number of live threads -- fork/exec only
/// support single-threaded processes (spec.md §4.6 Non-goal).
func (p *Process_t) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

/// MainThread returns one of the process's threads (its only thread in
/// the single-threaded case), or false if it has none.
func (p *Process_t) MainThread() (*Thread_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, th := range p.threads {
		return th, true
	}
	return nil, false
}

/// Fork duplicates the calling (single) thread's process: address space is
/// byte-for-byte copied (vm.ForkFrom, no COW), fd table is shallow-copied
/// by reopening each entry, cwd is shared by value (spec.md §4.6 "fork").
func (p *Process_t) Fork() (*Process_t, defs.Tid_t, defs.Err_t) {
	p.mu.Lock()
	if len(p.threads) != 1 {
		p.mu.Unlock()
		return nil, 0, -defs.EINVAL
	}
	fdtab := make([]*fd.Fd_t, len(p.FdTable))
	for i, f := range p.FdTable {
		if f == nil {
			continue
		}
		nf, err := fd.Copyfd(f)
		if err != 0 {
			p.mu.Unlock()
			return nil, 0, err
		}
		fdtab[i] = nf
	}
	cwd := p.Cwd
	p.mu.Unlock()

	childAS, ok := vm.ForkFrom(p.AS)
	if !ok {
		return nil, 0, -defs.ENOMEM
	}

	child := &Process_t{
		AS:      childAS,
		parent:  p,
		FdTable: fdtab,
		Cwd:     cwd,
		Sigs:    trap.NewSigInfo(),
		threads: make(map[defs.Tid_t]*Thread_t),
		waitCh:  make(chan struct{}, 1),
	}
	child.birthNs = child.Accnt.Now()
	child.Pid = allocPid()
	register(child)

	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()

	th := child.newThread()
	th.TrapCxVA = vm.TrapContextVA(0)
	trapCxPa, err := childAS.MapTrapContext(th.TrapCxVA)
	if err != 0 {
		unregister(child.Pid)
		return nil, 0, err
	}
	th.TrapCxPA = trapCxPa
	th.SetStatus(sched.Runnable)
	sched.Ready.Push(th)
	return child, th.TidT(), 0
}

/// Exec replaces the calling process's address space in place (spec.md
/// §4.6 "exec"): only supported for single-threaded processes, matching
/// original_source's "Only support processes with a single thread".
func (p *Process_t) Exec(elfImg []byte, argv, envp []string) (mem.Va_t, mem.Va_t, []vm.AuxEntry_t, defs.Err_t) {
	p.mu.Lock()
	if len(p.threads) != 1 {
		p.mu.Unlock()
		// spec.md §9 "Single-thread exec": a multi-threaded process
		// calling exec is a caller bug, not a recoverable error -- there
		// is no other-threads-killed-first step for this core to fall
		// back on.
		panic("proc: exec on a multi-threaded process")
	}
	var th *Thread_t
	for _, t := range p.threads {
		th = t
	}
	p.mu.Unlock()

	as, entry, sp, auxv, err := vm.NewFromElf(elfImg)
	if err != 0 {
		return 0, 0, nil, err
	}
	trapCxPa, err := as.MapTrapContext(th.TrapCxVA)
	if err != 0 {
		return 0, 0, nil, err
	}

	p.mu.Lock()
	p.AS = as
	p.mu.Unlock()
	th.TrapCxPA = trapCxPa
	return entry, sp, auxv, 0
}

/// Brk implements sbrk/brk: grows or shrinks the heap boundary (spec.md
/// §4.6 "brk"). No frames are touched here; they materialize lazily on
/// first access through vm.MemorySet_t.CheckLazy.
func (p *Process_t) Brk(newTop mem.Va_t) (mem.Va_t, defs.Err_t) {
	if newTop == 0 {
		p.mu.Lock()
		cur := p.AS.HeapTop
		p.mu.Unlock()
		return cur, 0
	}
	if err := p.AS.GrowHeap(newTop); err != 0 {
		return 0, err
	}
	return newTop, 0
}

/// Mmap creates a new mmap region at the process's bump-allocated mmap
/// top (spec.md §4.6 "mmap", original_source's ProcessControlBlock::mmap
/// asserting start == mmap_area_top -- this core's vm.MemorySet_t.Mmap
/// does the same bump allocation internally).
func (p *Process_t) Mmap(length int, perm mem.Pa_t, flags int, file vm.MmapFile_i, off int) (mem.Va_t, defs.Err_t) {
	return p.AS.Mmap(0, length, perm, flags, file, off)
}

/// Munmap releases the mmap region starting at addr.
func (p *Process_t) Munmap(addr mem.Va_t) defs.Err_t {
	vpn := int(mem.VPN(addr))
	if !p.AS.RemoveMmapAreaWithStartVpn(vpn) {
		return -defs.EINVAL
	}
	return 0
}

/// Exit marks the process a zombie, records its exit code, reparents its
/// children to pid 1, and wakes anyone wait()-ing on it (spec.md §4.6
/// "exit/wait4").
func (p *Process_t) Exit(code int) {
	p.Accnt.Finish(p.birthNs)
	p.mu.Lock()
	p.zombie = true
	p.exitCode = code
	kids := p.children
	p.children = nil
	parent := p.parent
	p.mu.Unlock()

	if initp, ok := Lookup(1); ok && initp != p {
		for _, c := range kids {
			c.mu.Lock()
			c.parent = initp
			c.mu.Unlock()
			initp.mu.Lock()
			initp.children = append(initp.children, c)
			initp.mu.Unlock()
		}
	}

	if parent != nil {
		select {
		case parent.waitCh <- struct{}{}:
		default:
		}
	}
}

/// Wait4 blocks until a zombie child matching pid (or any child, if
/// pid<=0) is found, reaps it, and returns its pid and exit code (spec.md
/// §4.6 "wait4"). wantedPid<=0 matches any child. When nohang is set
/// (WNOHANG) it returns (0, 0, -2) immediately instead of blocking if no
/// matching child has exited yet; it returns (0, 0, -1) when p has no
/// child matching wantedPid.
func (p *Process_t) Wait4(wantedPid defs.Pid_t, nohang bool) (defs.Pid_t, int, defs.Err_t) {
	for {
		p.mu.Lock()
		if len(p.children) == 0 {
			p.mu.Unlock()
			return 0, 0, -1
		}
		matched := false
		for i, c := range p.children {
			if wantedPid > 0 && c.Pid != wantedPid {
				continue
			}
			matched = true
			c.mu.Lock()
			zombie := c.zombie
			code := c.exitCode
			c.mu.Unlock()
			if zombie {
				p.children = append(p.children[:i], p.children[i+1:]...)
				p.mu.Unlock()
				p.Rusage.Add(&c.Accnt)
				unregister(c.Pid)
				return c.Pid, code, 0
			}
		}
		p.mu.Unlock()
		// wantedPid names no child at all -- no amount of waiting will
		// ever produce a match, so report it immediately rather than
		// blocking on waitCh forever.
		if !matched {
			return 0, 0, -1
		}
		if nohang {
			return 0, 0, -2
		}
		<-p.waitCh
	}
}
