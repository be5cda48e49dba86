package syscall

import (
	"mem"
	"proc"
	"trap"

	"defs"
)

func sysKill(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	pid := defs.Pid_t(int32(args[0]))
	sig := int(args[1])
	if !trap.Valid(sig) {
		return 0, -defs.EINVAL
	}
	target, ok := proc.Lookup(pid)
	if !ok {
		return 0, -defs.ESRCH
	}
	target.Signal(sig)
	return 0, 0
}

func sysTkill(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	tid := defs.Tid_t(int32(args[0]))
	sig := int(args[1])
	if !trap.Valid(sig) {
		return 0, -defs.EINVAL
	}
	target, ok := proc.LookupThread(tid)
	if !ok {
		return 0, -defs.ESRCH
	}
	target.Process().Sigs.Raise(sig)
	if sig == defs.SIGKILL {
		target.Kill()
	}
	return 0, 0
}

// sigactionSize is the fixed on-the-wire layout this core's rt_sigaction
// uses: four little-endian uint64 fields (handler, restorer, mask, flags),
// matching trap.SigAction_t's field order.
const sigactionSize = 32

func decodeSigaction(b []byte) trap.SigAction_t {
	u64 := func(i int) uint64 {
		v := uint64(0)
		for j := 0; j < 8; j++ {
			v |= uint64(b[i+j]) << (8 * j)
		}
		return v
	}
	return trap.SigAction_t{Handler: u64(0), Restorer: u64(8), Mask: u64(16), Flags: u64(24)}
}

func encodeSigaction(a trap.SigAction_t) []byte {
	b := make([]byte, sigactionSize)
	put := func(i int, v uint64) {
		for j := 0; j < 8; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	put(0, a.Handler)
	put(8, a.Restorer)
	put(16, a.Mask)
	put(24, a.Flags)
	return b
}

func sysRtSigaction(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	sig := int(args[0])
	ms := th.Process().AS

	var old trap.SigAction_t
	var err defs.Err_t
	if actVA := mem.Va_t(args[1]); actVA != 0 {
		raw, e := copyInBytes(ms, actVA, sigactionSize)
		if e != 0 {
			return 0, e
		}
		old, err = th.Process().Sigs.SetAction(sig, decodeSigaction(raw))
	} else {
		old = th.Process().Sigs.Action(sig)
	}
	if err != 0 {
		return 0, err
	}
	if oldactVA := mem.Va_t(args[2]); oldactVA != 0 {
		if e := copyOutBytes(ms, oldactVA, encodeSigaction(old)); e != 0 {
			return 0, e
		}
	}
	return 0, 0
}

func sysRtSigprocmask(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	how := int(args[0])
	ms := th.Process().AS
	var newmask uint64
	if setVA := mem.Va_t(args[1]); setVA != 0 {
		raw, err := copyInBytes(ms, setVA, 8)
		if err != 0 {
			return 0, err
		}
		for i := 0; i < 8; i++ {
			newmask |= uint64(raw[i]) << (8 * i)
		}
	} else {
		how = defs.SIG_BLOCK
		newmask = 0
	}
	old, err := th.Process().Sigs.SetMask(how, newmask)
	if err != 0 {
		return 0, err
	}
	if oldsetVA := mem.Va_t(args[2]); oldsetVA != 0 {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(old >> (8 * i))
		}
		if err := copyOutBytes(ms, oldsetVA, buf[:]); err != 0 {
			return 0, err
		}
	}
	return 0, 0
}

// sysRtSigreturn is the sigreturn trampoline's syscall half. This core
// never diverts a thread into a user handler: trap's performSignals acts
// only on SIG_DFL/SIG_IGN signals (trap.SigInfo_t.NextDefault) and
// leaves signals with an installed handler pending, so no pre-signal
// trap context is ever saved and sigreturn restores nothing; it returns
// 0.
func sysRtSigreturn(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	return 0, 0
}
