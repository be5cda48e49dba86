// Package sched implements the FIFO ready queue and per-hart scheduling
// record described in spec.md §4.5: one Processor_t per hart holding a
// fast-access struct (current tid, trap-context VA/PA, user satp token)
// plus an idle slot, fed by a single global FIFO ready queue.
//
// Grounded on the teacher's task/processor split as distilled by
// original_source/os/src/task/{processor.rs,manager.rs}: PROCESSORS[hartid]
// with a RefCell<ProcessorInner>, a __FA fast-access array read by
// current_tid/current_trap_cx/current_user_token, and a FIFO
// fetch_task/add_task ready queue. Go has no cooperative-coroutine context
// switch primitive the way a freestanding kernel's __switch assembly stub
// does, so Resched here only performs the bookkeeping half of
// a switch (ready-queue rotation, fast-access update) and asks the caller
// for the actual resume via a Switcher_i callback -- the same seam pattern
// vm uses for file-backed mmap (MmapFile_i).
package sched

import (
	"sync"

	"mem"
	"stats"
)

/// Status_t is a thread's scheduling state (spec.md §3 "Thread").
type Status_t int

const (
	Runnable Status_t = iota
	Running
	Blocked
	Zombie
)

/// Runnable_i is the minimal view sched needs of a thread control block;
/// package proc's TCB implements it so sched never imports proc.
type Runnable_i interface {
	Tid() int
}

/// FastAccess_t mirrors the teacher's FastAccessStruct (spec.md §4.5): the
/// handful of fields the trap gate and syscall layer need without going
/// through the full TCB, refreshed every reschedule.
type FastAccess_t struct {
	Tid       int
	TrapCxVA  mem.Va_t
	TrapCxPA  mem.Pa_t
	UserToken uint64
}

// readyq is the single global FIFO ready queue (spec.md §4.5 "FIFO ready
// queue shared by all harts").
type readyq struct {
	mu sync.Mutex
	q  []Runnable_i
}

var Ready = &readyq{}

// Debug holds the scheduler's stats.Stats2String-compatible debug counter
// block (spec.md §4.5's ready queue has no /proc to publish through, so
// this is the whole of its runtime visibility): one bump per Resched call
// that actually hands the hart to a thread, and one per call that finds
// the ready queue empty and idles it instead.
var Debug struct {
	Reschedules stats.Counter_t
	Idles       stats.Counter_t
}

/// DebugString renders Debug the way stats.Stats2String formats any
/// counter-only struct.
func DebugString() string {
	return stats.Stats2String(Debug)
}

/// Push enqueues a runnable thread at the back of the ready queue.
func (r *readyq) Push(t Runnable_i) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q = append(r.q, t)
}

/// Pop dequeues the thread at the front of the ready queue, if any.
func (r *readyq) Pop() (Runnable_i, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.q) == 0 {
		return nil, false
	}
	t := r.q[0]
	r.q = r.q[1:]
	return t, true
}

/// Len reports the number of threads currently ready to run.
func (r *readyq) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.q)
}

/// Remove drops t from the ready queue if present, for the case where a
/// thread that was just marked Blocked/Zombie is still sitting in the
/// queue from a stale enqueue.
func (r *readyq) Remove(tid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.q {
		if t.Tid() == tid {
			r.q = append(r.q[:i], r.q[i+1:]...)
			return true
		}
	}
	return false
}

// MaxHarts bounds the simulated SMP width (spec.md §4.5).
const MaxHarts = 8

/// Processor_t is one hart's scheduling state: the thread it is currently
/// running (nil when idle) and the fast-access record the trap gate reads.
type Processor_t struct {
	mu      sync.Mutex
	current Runnable_i
	fa      FastAccess_t
}

var processors [MaxHarts]*Processor_t

func init() {
	for i := range processors {
		processors[i] = &Processor_t{}
	}
}

/// Processor returns the Processor_t for hart id hartid.
func Processor(hartid int) *Processor_t { return processors[hartid] }

/// TakeCurrent clears and returns the hart's current thread (used when
/// rescheduling away from it).
func (p *Processor_t) TakeCurrent() Runnable_i {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.current
	p.current = nil
	return t
}

/// Current returns the hart's current thread without clearing it.
func (p *Processor_t) Current() Runnable_i {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

/// SetCurrent installs t as the hart's running thread and refreshes its
/// fast-access record (spec.md §4.5 "__save_info_to_fast_access").
func (p *Processor_t) SetCurrent(t Runnable_i, fa FastAccess_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = t
	p.fa = fa
}

/// FastAccess returns a copy of the hart's fast-access record.
func (p *Processor_t) FastAccess() FastAccess_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fa
}

// Convenience wrappers mirroring the teacher's free-standing
// current_tid/current_trap_cx/current_user_token accessors.

/// CurrentTid returns the tid running on hartid, or -1 if the hart is idle.
func CurrentTid(hartid int) int {
	fa := Processor(hartid).FastAccess()
	if Processor(hartid).Current() == nil {
		return -1
	}
	return fa.Tid
}

/// CurrentUserToken returns the satp value for the thread running on hartid.
func CurrentUserToken(hartid int) uint64 {
	return Processor(hartid).FastAccess().UserToken
}

/// CurrentTrapCx returns the (VA, PA) of the trap-context page for the
/// thread running on hartid.
func CurrentTrapCx(hartid int) (mem.Va_t, mem.Pa_t) {
	fa := Processor(hartid).FastAccess()
	return fa.TrapCxVA, fa.TrapCxPA
}

/// Switcher_i performs the machine-dependent half of a context switch --
/// saving the outgoing thread's registers and restoring the incoming
/// thread's -- which this package cannot express portably in Go.
type Switcher_i interface {
	SwitchTo(next Runnable_i)
}

/// Resched implements one iteration of the teacher's run_tasks loop
/// (spec.md §4.5): if the hart's current thread is still Runnable it goes
/// to the back of the ready queue, then the next ready thread (if any)
/// becomes current and sw.SwitchTo is invoked to actually resume it. It
/// reports whether a thread was scheduled (false means the hart goes
/// idle).
func Resched(hartid int, statusOf func(Runnable_i) Status_t, fa func(Runnable_i) FastAccess_t, sw Switcher_i) bool {
	p := Processor(hartid)
	if last := p.TakeCurrent(); last != nil {
		if statusOf(last) == Runnable {
			Ready.Push(last)
		}
	}
	next, ok := Ready.Pop()
	if !ok {
		Debug.Idles.Inc()
		return false
	}
	p.SetCurrent(next, fa(next))
	sw.SwitchTo(next)
	Debug.Reschedules.Inc()
	return true
}
