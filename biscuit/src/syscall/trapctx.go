package syscall

import (
	"unsafe"

	"mem"
	"proc"
	"trap"
)

// writeTrapContextEntry rewrites the calling thread's saved pc (sepc) and
// stack pointer (x[2]) in place, for execve's "resume at the new image's
// entry point" requirement. trap.Handle only threads a0 back from
// Dispatcher_i.Syscall, so reaching the rest of the saved register file
// means going at its backing physical page directly -- the same
// reinterpret-physical-memory-as-a-typed-value move package mem's own
// Dmap performs for Pg_t.
func writeTrapContextEntry(th *proc.Thread_t, entry, sp uint64) {
	page := mem.Dmap8(th.TrapCxPA)
	cx := (*trap.TrapContext_t)(unsafe.Pointer(&page[0]))
	cx.Sepc = entry
	cx.X[2] = sp
}
