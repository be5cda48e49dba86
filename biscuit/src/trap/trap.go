// Package trap implements the trap gate described in spec.md §4.7/§4.8:
// classifying a trap by its scause/stval, routing user ecalls to the
// syscall dispatcher, routing faults to the address space's lazy-fault
// handler, and delivering pending signals before returning to user mode.
//
// Grounded on original_source/os/src/trap/mod.rs's trap_handler: the
// match over Trap::Exception(UserEnvCall)/StoreFault/.../IllegalInstruction
// and Trap::Interrupt(SupervisorTimer), followed by
// perform_signals_of_current() and trap_return(). This core has no real
// scause register to read, so Cause_t/Classify stand in for the
// riscv::register::scause crate the original depends on, and Handle
// takes an explicit Cause_t instead of reading hardware state.
package trap

import (
	"defs"
	"mem"
	"vm"
)

/// Cause_t mirrors the riscv scause categories the original trap handler
/// switches on (spec.md §4.7).
type Cause_t int

const (
	CauseSyscall Cause_t = iota
	CauseStoreFault
	CauseStorePageFault
	CauseInstructionFault
	CauseInstructionPageFault
	CauseLoadFault
	CauseLoadPageFault
	CauseIllegalInstruction
	CauseTimerInterrupt
	CauseUnknown
)

func (c Cause_t) isMemoryFault() bool {
	switch c {
	case CauseStoreFault, CauseStorePageFault, CauseInstructionFault,
		CauseInstructionPageFault, CauseLoadFault, CauseLoadPageFault:
		return true
	}
	return false
}

/// TrapContext_t is the per-thread saved register file (spec.md §3 "Trap
/// context"), stored at the thread's dedicated trap-context page
/// (vm.TrapContextVA). Field set follows original_source's
/// trap::context::TrapContext: general registers, sepc, and the kernel
/// bookkeeping needed to re-enter the kernel (kernel satp, kernel sp, the
/// trap handler's address, and the hart id).
type TrapContext_t struct {
	X    [32]uint64 // general-purpose registers x0..x31
	Sepc uint64

	KernelSatp   uint64
	KernelSp     uint64
	TrapHandler  uint64
	HartID       int
}

/// AppInitContext builds the initial TrapContext_t for a freshly exec'd or
/// forked thread (original_source's TrapContext::app_init_context).
func AppInitContext(entry, userSp uint64, kernelSatp uint64, kernelSp uint64, trapHandler uint64, hartid int) TrapContext_t {
	var cx TrapContext_t
	cx.Sepc = entry
	cx.X[2] = userSp // sp
	cx.KernelSatp = kernelSatp
	cx.KernelSp = kernelSp
	cx.TrapHandler = trapHandler
	cx.HartID = hartid
	return cx
}

/// SyscallArgs returns the syscall number (a7) and its six argument
/// registers (a0..a5), matching the original's cx.x[17] and
/// [x[10]..x[15]].
func (cx *TrapContext_t) SyscallArgs() (num uint64, args [6]uint64) {
	num = cx.X[17]
	copy(args[:], cx.X[10:16])
	return
}

/// SetReturn writes a syscall's return value into a0.
func (cx *TrapContext_t) SetReturn(v uint64) { cx.X[10] = v }

/// Dispatcher_i is implemented by the syscall package; trap depends only
/// on this interface to avoid trap<->syscall import cycle.
type Dispatcher_i interface {
	Syscall(num uint64, args [6]uint64) int64
}

/// Result_t reports what Handle decided, for the caller's trap_return-
/// equivalent bookkeeping and for tests.
type Result_t struct {
	Killed        bool
	KilledBySig   int
	TimerFired    bool
	IllegalInsn   bool
}

/// Handle implements one iteration of trap_handler (spec.md §4.7): on a
/// syscall it advances sepc past the ecall instruction and dispatches; on
/// a memory fault it calls the address space's lazy-fault path and raises
/// SIGSEGV on failure; on an illegal instruction it raises SIGILL; on a
/// timer interrupt it reports TimerFired so the caller reschedules.
func Handle(cause Cause_t, stval mem.Va_t, cx *TrapContext_t, as *vm.MemorySet_t, sigs *SigInfo_t, disp Dispatcher_i) Result_t {
	switch {
	case cause == CauseSyscall:
		cx.Sepc += 4
		num, args := cx.SyscallArgs()
		ret := disp.Syscall(num, args)
		cx.SetReturn(uint64(ret))

	case cause.isMemoryFault():
		if err := as.CheckLazy(stval); err != 0 {
			sigs.Raise(defs.SIGSEGV)
		}

	case cause == CauseIllegalInstruction:
		sigs.Raise(defs.SIGILL)

	case cause == CauseTimerInterrupt:
		return Result_t{TimerFired: true}

	default:
		panic("trap: unsupported cause")
	}

	return performSignals(sigs)
}

// performSignals implements perform_signals_of_current for the default
// dispositions only: it takes the oldest pending signal whose action is
// SIG_DFL or SIG_IGN and reports a kill if that signal is fatal. Signals
// with a user handler installed stay pending; no handler is ever run and
// the trap context is never redirected to one.
func performSignals(sigs *SigInfo_t) Result_t {
	sig, ok := sigs.NextDefault()
	if !ok {
		return Result_t{}
	}
	if defs.FatalSignals[sig] {
		return Result_t{Killed: true, KilledBySig: sig}
	}
	return Result_t{}
}
