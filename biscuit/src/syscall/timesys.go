package syscall

import (
	"time"

	"mem"
	"proc"
	"sched"

	"defs"
)

// gettimeofday/nanosleep read wall-clock time from the host's own clock
// rather than a simulated RISC-V CLINT mtime register, the same "hosted"
// stance vfs.OSFile_t already takes for atime/mtime (time.Now().UnixNano()).

func sysGettimeofday(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	tvVA := mem.Va_t(args[0])
	if tvVA == 0 {
		return 0, 0
	}
	now := time.Now()
	sec := uint64(now.Unix())
	usec := uint64(now.Nanosecond() / 1000)
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sec >> (8 * i))
		buf[8+i] = byte(usec >> (8 * i))
	}
	if err := copyOutBytes(th.Process().AS, tvVA, buf[:]); err != 0 {
		return 0, err
	}
	return 0, 0
}

func sysNanosleep(th *proc.Thread_t, args [6]uint64) (int, defs.Err_t) {
	raw, err := copyInBytes(th.Process().AS, mem.Va_t(args[0]), 16)
	if err != 0 {
		return 0, err
	}
	u64 := func(i int) uint64 {
		v := uint64(0)
		for j := 0; j < 8; j++ {
			v |= uint64(raw[i+j]) << (8 * j)
		}
		return v
	}
	sec := u64(0)
	nsec := u64(8)
	d := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond

	th.SetStatus(sched.Blocked)
	time.Sleep(d)
	th.SetStatus(sched.Runnable)

	if th.Note().Doomed() {
		return 0, -defs.EINTR
	}
	return 0, 0
}
