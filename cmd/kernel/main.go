// Command kernel is the composition root: it wires the frame allocator,
// the mounted FAT32 filesystem, the sbi collaborators, and the scheduler
// into a single boot sequence, the Go-idiomatic-only stand-in for the
// teacher's real-hardware boot path (spec.md §1 explicitly keeps actual
// SBI/ecall/assembly trap entry out of scope).
//
// Grounded on original_source/os/src/main.rs's rust_main: mm::init(),
// trap::init(), enabling the first timer interrupt, task::add_initproc(),
// then task::run_tasks() looping forever. This core has no bare-metal
// entry point or real scause register to read a trap cause from, so each
// scheduling quantum below delivers exactly the one cause this build can
// honestly manufacture without a RISC-V instruction interpreter: the timer
// interrupt sbi.Timer_i already tracks, fed through the same trap.Handle a
// real trap gate would call. A user ecall/page-fault cause would need
// something to execute the scheduled thread's instructions and produce
// one, which is out of scope (see DESIGN.md).
package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	"block"
	"caller"
	"defs"
	"fat32"
	"fd"
	"mem"
	"proc"
	"sbi"
	"sched"
	"trap"
	"vfs"

	// ksyscall is this core's own kernel-syscall module (its go.mod names
	// it ksyscall to avoid colliding with the standard library's syscall
	// package); it declares itself "package syscall", so importing it by
	// its module path still gives the syscall.* selector used below.
	"ksyscall"
)

const (
	infoCacheCap = 64
	dataCacheCap = 256
	ramPages     = 16384 // 64MiB of simulated physical memory
	kstackPages  = 4
	quanta       = 8 // scheduling rounds the boot sequence runs before exiting
)

// panicDump prints the boot sequence's panic message followed by the call
// chain that reached it, the same diagnostic original_source's panic
// handler prints via its own backtrace helper (spec.md §7).
func panicDump() {
	if r := recover(); r != nil {
		fmt.Printf("kernel: panic: %v\n", r)
		caller.Callerdump(2)
		panic(r)
	}
}

func main() {
	defer panicDump()
	image := flag.String("image", "", "path to a FAT32 image built by mkfs")
	initPath := flag.String("init", "/init", "path of the init binary inside the image")
	debugSnap := flag.String("debugsnap", "", "write a pprof counter snapshot to this path on exit")
	flag.Parse()
	if *image == "" {
		fmt.Println("kernel: -image is required")
		os.Exit(1)
	}

	mem.Init(ramPages, 0, 0)

	mount, disk, infoCache, dataCache, err := mountImage(*image)
	if err != 0 {
		fmt.Printf("kernel: mount %v: errno %d\n", *image, err)
		os.Exit(1)
	}
	defer disk.Close()
	syscall.Mount = mount
	if *debugSnap != "" {
		defer func() {
			f, oerr := os.Create(*debugSnap)
			if oerr != nil {
				fmt.Printf("kernel: debug snapshot: %v\n", oerr)
				return
			}
			defer f.Close()
			if werr := writeDebugSnapshot(f, infoCache, dataCache); werr != nil {
				fmt.Printf("kernel: debug snapshot: %v\n", werr)
			}
		}()
	}

	console := sbi.NewConsole(os.Stdout, os.Stdin)
	timer := sbi.NewTimer()
	_ = sbi.NewHSM() // hart 0 is always started; no secondary harts booted

	elfImg, err := readFile(mount, *initPath)
	if err != 0 {
		fmt.Printf("kernel: read init binary %v: errno %d\n", *initPath, err)
		os.Exit(1)
	}

	p, tid, entry, sp, _, err := proc.NewProcess(elfImg, stdioTriple(console))
	if err != 0 {
		fmt.Printf("kernel: start init: errno %d\n", err)
		os.Exit(1)
	}
	th, ok := proc.LookupThread(tid)
	if !ok {
		fmt.Println("kernel: init thread vanished immediately after creation")
		os.Exit(1)
	}
	th.KstackTop = allocKstack()
	writeInitialTrapContext(th, uint64(entry), uint64(sp), p.AS.Token())

	fmt.Printf("kernel: booted pid %d tid %d, entry=%#x sp=%#x\n", p.Pid, tid, entry, sp)

	timer.SetTimer(1)
	runScheduler(0, timer)
}

// mountImage opens an existing FAT32 image and wires it into the two block
// caches the fat32 manager expects, the same pipeline biscuit/src/mkfs
// assembles on the image-writing side.
func mountImage(path string) (*vfs.Mount_t, *fileDisk, *block.Manager_t, *block.Manager_t, defs.Err_t) {
	disk, oerr := openFileDisk(path)
	if oerr != nil {
		return nil, nil, nil, nil, -defs.EIO
	}
	infoCache := block.NewManager(disk, block.ReadOnly, infoCacheCap)
	dataCache := block.NewManager(disk, block.ReadWrite, dataCacheCap)
	fm, err := fat32.Open(infoCache, dataCache)
	if err != 0 {
		disk.Close()
		return nil, nil, nil, nil, err
	}
	return vfs.NewMount(fm), disk, infoCache, dataCache, 0
}

// readFile slurps an entire mounted file into a host byte slice, used only
// for the one-shot init-binary load at boot (ordinary reads go through the
// syscall layer's user-memory-aware path instead).
func readFile(mount *vfs.Mount_t, path string) ([]byte, defs.Err_t) {
	osf, err := mount.OpenCommonFile(path, defs.O_RDONLY)
	if err != 0 {
		return nil, err
	}
	defer osf.Close()

	var out []byte
	chunk := make([]byte, 64*1024)
	for {
		uio := newFakeIO(chunk)
		n, err := osf.Read(uio)
		if err != 0 {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
	}
	return out, 0
}

func stdioTriple(console sbi.Console_i) [3]*fd.Fd_t {
	in := &fd.Fd_t{Fops: vfs.NewStdin(console), Perms: fd.FD_READ}
	out := &fd.Fd_t{Fops: vfs.NewStdout(console), Perms: fd.FD_WRITE}
	errf := &fd.Fd_t{Fops: vfs.NewStdout(console), Perms: fd.FD_WRITE}
	return [3]*fd.Fd_t{in, out, errf}
}

// allocKstack reserves kstackPages of simulated physical memory for a
// thread's kernel stack. Kernel memory is identity-mapped in this core
// (vm.MemorySet_t.InsertIdentityArea), so a physical frame's address
// doubles as its kernel virtual address -- there is no separate kernel
// page table to thread it through.
func allocKstack() mem.Va_t {
	var top mem.Pa_t
	for i := 0; i < kstackPages; i++ {
		ft, ok := mem.Physmem.Alloc()
		if !ok {
			panic("kernel: out of simulated physical memory for a kernel stack")
		}
		if ft.Pa() > top {
			top = ft.Pa()
		}
	}
	return mem.Va_t(top) + mem.Va_t(mem.PGSIZE)
}

// writeInitialTrapContext builds AppInitContext's register file and stores
// it at th's mapped trap-context frame, the same Dmap-as-typed-value move
// package syscall's writeTrapContextEntry performs for execve.
func writeInitialTrapContext(th *proc.Thread_t, entry, sp, satp uint64) {
	cx := trap.AppInitContext(entry, sp, satp, uint64(th.KstackTop), 0, 0)
	page := mem.Dmap8(th.TrapCxPA)
	*(*trap.TrapContext_t)(unsafe.Pointer(&page[0])) = cx
}

// kernelSwitcher implements sched.Switcher_i. A real hart resumes the next
// thread by restoring its trap context and sret-ing to user mode; this
// build has no assembly trap-return stub to call (spec.md §1 keeps real
// ecall/sret handling out of scope), so SwitchTo only logs the handoff --
// the hook a hardware target or an instruction-level simulator would
// override to actually resume execution.
type kernelSwitcher struct{}

func (kernelSwitcher) SwitchTo(next sched.Runnable_i) {
	fmt.Printf("kernel: scheduled tid %d\n", next.Tid())
}

func statusOf(r sched.Runnable_i) sched.Status_t {
	return r.(*proc.Thread_t).Status()
}

func fastAccessOf(r sched.Runnable_i) sched.FastAccess_t {
	th := r.(*proc.Thread_t)
	return sched.FastAccess_t{
		Tid:       th.Tid(),
		TrapCxVA:  th.TrapCxVA,
		TrapCxPA:  th.TrapCxPA,
		UserToken: th.Process().AS.Token(),
	}
}

// runScheduler mirrors original_source's task::run_tasks: each round picks
// the next ready thread and delivers one trap the way a real trap gate
// would after resuming it. quanta bounds the demonstration since nothing
// in this build ever marks a thread Blocked or Zombie on its own (that
// requires a user ecall this core cannot manufacture without an
// instruction interpreter, see the package comment).
func runScheduler(hartid int, timer interface{ SetTimer(uint64) }) {
	disp := &syscall.Sys_t{Hartid: hartid}
	sw := kernelSwitcher{}
	for round := 0; round < quanta; round++ {
		if !sched.Resched(hartid, statusOf, fastAccessOf, sw) {
			fmt.Println("kernel: ready queue empty, halting hart 0")
			return
		}
		th := sched.Processor(hartid).Current().(*proc.Thread_t)
		page := mem.Dmap8(th.TrapCxPA)
		cx := (*trap.TrapContext_t)(unsafe.Pointer(&page[0]))

		res := trap.Handle(trap.CauseTimerInterrupt, 0, cx, th.Process().AS, th.Process().Sigs, disp)
		if res.TimerFired {
			timer.SetTimer(uint64(round + 1))
		}
		if res.Killed {
			fmt.Printf("kernel: tid %d killed by signal %d\n", th.Tid(), res.KilledBySig)
			sched.Processor(hartid).TakeCurrent()
			continue
		}
		sched.Processor(hartid).TakeCurrent()
		if th.Status() == sched.Runnable {
			sched.Ready.Push(th)
		}
	}
	fmt.Println("kernel: boot demonstration complete")
}
