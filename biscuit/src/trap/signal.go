package trap

import (
	"sync"

	"defs"
)

// SigInfo_t/SigAction_t are grounded on
// original_source/os/src/task/signal.rs's SigInfo/SigAction: a pending
// signal queue plus a table of installed dispositions, extended per
// SPEC_FULL.md's supplemented feature list with sa_flags/sa_restorer/mask
// fields the distilled spec.md omitted but the original's syscall layer
// (syscall/signal.rs) exposes to userspace.

/// SigAction_t is one installed signal disposition (rt_sigaction's
/// sigaction struct).
type SigAction_t struct {
	Handler   uint64 // user handler address, or defs.SIG_DFL/SIG_IGN
	Restorer  uint64 // sigreturn trampoline address
	Mask      uint64 // signals blocked while the handler runs
	Flags     uint64 // SA_RESTART, SA_SIGINFO, SA_NODEFER, ...
}

/// SigInfo_t is one process's signal state: the set of installed
/// dispositions, the currently blocked mask, and the FIFO queue of
/// pending signal numbers (original_source uses a VecDeque; delivery
/// order here is oldest-raised-first, same as a VecDeque pop_front).
type SigInfo_t struct {
	mu      sync.Mutex
	actions map[int]SigAction_t
	blocked uint64
	pending []int
}

/// NewSigInfo builds an empty signal state (original_source's SigInfo::new).
func NewSigInfo() *SigInfo_t {
	return &SigInfo_t{actions: make(map[int]SigAction_t)}
}

/// Valid reports whether signum is a valid signal number (original_source's
/// is_signal_valid: 1 <= signum < 64).
func Valid(signum int) bool { return signum >= 1 && signum < defs.NSIG }

/// SetAction installs a disposition for signum, returning the previous one.
func (s *SigInfo_t) SetAction(signum int, act SigAction_t) (SigAction_t, defs.Err_t) {
	if !Valid(signum) {
		return SigAction_t{}, -defs.EINVAL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.actions[signum]
	s.actions[signum] = act
	return old, 0
}

/// Action returns the installed disposition for signum, defaulting to
/// SIG_DFL if none was installed.
func (s *SigInfo_t) Action(signum int) SigAction_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.actions[signum]; ok {
		return a
	}
	return SigAction_t{Handler: uint64(defs.SIG_DFL)}
}

/// SetMask replaces the blocked-signal mask per how/newmask, matching
/// rt_sigprocmask semantics, and returns the previous mask.
func (s *SigInfo_t) SetMask(how int, newmask uint64) (uint64, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.blocked
	switch how {
	case defs.SIG_BLOCK:
		s.blocked |= newmask
	case defs.SIG_UNBLOCK:
		s.blocked &^= newmask
	case defs.SIG_SETMASK:
		s.blocked = newmask
	default:
		return 0, -defs.EINVAL
	}
	return old, 0
}

/// Raise enqueues signum as pending (current_add_signal in the original),
/// unless it is currently blocked and not one of the signals that cannot
/// be blocked.
func (s *SigInfo_t) Raise(signum int) {
	if !Valid(signum) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked&(1<<uint(signum)) != 0 && !defs.FatalSignals[signum] {
		return
	}
	for _, p := range s.pending {
		if p == signum {
			return // already pending; signals in this core do not queue multiply
		}
	}
	s.pending = append(s.pending, signum)
}

/// Next dequeues the oldest pending signal along with its installed
/// action, if any.
func (s *SigInfo_t) Next() (int, SigAction_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, SigAction_t{}, false
	}
	sig := s.pending[0]
	s.pending = s.pending[1:]
	act := s.actions[sig]
	return sig, act, true
}

/// NextDefault dequeues the oldest pending signal whose disposition is
/// SIG_DFL (no user handler installed) -- the case Handle's
/// performSignals resolves itself; an oldest pending SIG_IGN signal is
/// dropped and reported as none. Signals with an installed handler are
/// skipped and stay pending; no trap or syscall path dequeues them.
func (s *SigInfo_t) NextDefault() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sig := range s.pending {
		act, has := s.actions[sig]
		if has && act.Handler != uint64(defs.SIG_DFL) && act.Handler != uint64(defs.SIG_IGN) {
			continue
		}
		if has && act.Handler == uint64(defs.SIG_IGN) {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return 0, false
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		return sig, true
	}
	return 0, false
}
