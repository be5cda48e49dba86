package trap

import (
	"testing"

	"defs"
	"mem"
	"vm"
)

type fakeDispatcher struct {
	calls []uint64
	ret   int64
}

func (f *fakeDispatcher) Syscall(num uint64, args [6]uint64) int64 {
	f.calls = append(f.calls, num)
	return f.ret
}

func freshAS(t *testing.T) *vm.MemorySet_t {
	t.Helper()
	mem.Init(512, 0, 0)
	as, ok := vm.NewEmpty()
	if !ok {
		t.Fatalf("could not build test address space")
	}
	return as
}

func TestSyscallAdvancesSepcAndDispatches(t *testing.T) {
	as := freshAS(t)
	cx := &TrapContext_t{Sepc: 0x1000}
	cx.X[17] = 64 // e.g. SYS_WRITE-ish
	cx.X[10] = 1
	disp := &fakeDispatcher{ret: 42}
	sigs := NewSigInfo()

	Handle(CauseSyscall, 0, cx, as, sigs, disp)

	if cx.Sepc != 0x1004 {
		t.Fatalf("expected sepc advanced by 4, got %#x", cx.Sepc)
	}
	if cx.X[10] != 42 {
		t.Fatalf("expected return value 42 in a0, got %d", cx.X[10])
	}
	if len(disp.calls) != 1 || disp.calls[0] != 64 {
		t.Fatalf("unexpected dispatch calls: %v", disp.calls)
	}
}

func TestPageFaultOnUnmappedRaisesSigsegv(t *testing.T) {
	as := freshAS(t)
	cx := &TrapContext_t{}
	sigs := NewSigInfo()
	res := Handle(CauseLoadPageFault, 0, cx, as, sigs, &fakeDispatcher{})
	if !res.Killed || res.KilledBySig != defs.SIGSEGV {
		t.Fatalf("expected SIGSEGV kill, got %+v", res)
	}
}

func TestIllegalInstructionRaisesSigill(t *testing.T) {
	as := freshAS(t)
	cx := &TrapContext_t{}
	sigs := NewSigInfo()
	res := Handle(CauseIllegalInstruction, 0, cx, as, sigs, &fakeDispatcher{})
	if !res.Killed || res.KilledBySig != defs.SIGILL {
		t.Fatalf("expected SIGILL kill, got %+v", res)
	}
}

func TestTimerInterruptReportsWithoutDispatch(t *testing.T) {
	as := freshAS(t)
	cx := &TrapContext_t{}
	sigs := NewSigInfo()
	disp := &fakeDispatcher{}
	res := Handle(CauseTimerInterrupt, 0, cx, as, sigs, disp)
	if !res.TimerFired {
		t.Fatalf("expected TimerFired")
	}
	if len(disp.calls) != 0 {
		t.Fatalf("timer interrupt should not dispatch a syscall")
	}
}

func TestSignalMaskBlocksNonFatalRaise(t *testing.T) {
	sigs := NewSigInfo()
	sigs.SetMask(defs.SIG_BLOCK, 1<<uint(defs.SIGUSR1))
	sigs.Raise(defs.SIGUSR1)
	if _, ok := sigs.NextDefault(); ok {
		t.Fatalf("blocked signal should not become pending")
	}
}

func TestSignalIgnoredIsDropped(t *testing.T) {
	sigs := NewSigInfo()
	sigs.SetAction(defs.SIGTERM, SigAction_t{Handler: uint64(defs.SIG_IGN)})
	sigs.Raise(defs.SIGTERM)
	if _, ok := sigs.NextDefault(); ok {
		t.Fatalf("ignored signal should not surface as a default-action kill")
	}
}

func TestSignalDefaultFatalDelivered(t *testing.T) {
	sigs := NewSigInfo()
	sigs.Raise(defs.SIGINT)
	sig, ok := sigs.NextDefault()
	if !ok || sig != defs.SIGINT {
		t.Fatalf("expected SIGINT to surface, got sig=%d ok=%v", sig, ok)
	}
}
