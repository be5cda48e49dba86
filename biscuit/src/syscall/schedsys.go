package syscall

import (
	"proc"

	"defs"
)

// sysSchedYield is a success no-op: package sched's Resched (the
// bookkeeping half of a context switch -- see sched.go's doc comment)
// runs once per trap return in the composition root's main loop
// regardless of whether the just-trapped syscall was sched_yield, since
// this core has no on-demand cooperative switch primitive to invoke from
// inside a single syscall dispatch. A real yield therefore already
// happens by the time this syscall's caller next runs; there is nothing
// further for the dispatcher itself to do.
func sysSchedYield(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	return 0, 0
}
