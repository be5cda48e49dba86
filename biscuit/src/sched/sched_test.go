package sched

import "testing"

type fakeTask struct {
	tid    int
	status Status_t
}

func (f *fakeTask) Tid() int { return f.tid }

type recordingSwitcher struct {
	switchedTo []int
}

func (r *recordingSwitcher) SwitchTo(next Runnable_i) {
	r.switchedTo = append(r.switchedTo, next.Tid())
}

func TestReadyQueueFIFO(t *testing.T) {
	q := &readyq{}
	q.Push(&fakeTask{tid: 1})
	q.Push(&fakeTask{tid: 2})
	q.Push(&fakeTask{tid: 3})

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok || got.Tid() != want {
			t.Fatalf("expected tid %d, got %v ok=%v", want, got, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestReadyQueueRemove(t *testing.T) {
	q := &readyq{}
	q.Push(&fakeTask{tid: 1})
	q.Push(&fakeTask{tid: 2})
	if !q.Remove(1) {
		t.Fatalf("remove should have found tid 1")
	}
	if q.Remove(1) {
		t.Fatalf("tid 1 should already be gone")
	}
	if got, _ := q.Pop(); got.Tid() != 2 {
		t.Fatalf("expected tid 2 remaining")
	}
}

func TestReschedRotatesRunnableBackToQueue(t *testing.T) {
	Ready.q = nil // isolate from other tests sharing the package-global queue
	hartid := 0
	a := &fakeTask{tid: 10, status: Runnable}
	b := &fakeTask{tid: 11, status: Runnable}
	Ready.Push(a)
	Ready.Push(b)

	statusOf := func(r Runnable_i) Status_t { return r.(*fakeTask).status }
	faOf := func(r Runnable_i) FastAccess_t { return FastAccess_t{Tid: r.Tid()} }
	sw := &recordingSwitcher{}

	if !Resched(hartid, statusOf, faOf, sw) {
		t.Fatalf("expected a thread to be scheduled")
	}
	if Processor(hartid).Current().Tid() != 10 {
		t.Fatalf("expected tid 10 to become current")
	}

	// second resched: tid 10 goes back to the ready queue (still Runnable),
	// tid 11 becomes current.
	if !Resched(hartid, statusOf, faOf, sw) {
		t.Fatalf("expected a thread to be scheduled")
	}
	if Processor(hartid).Current().Tid() != 11 {
		t.Fatalf("expected tid 11 to become current")
	}
	if Ready.Len() != 1 {
		t.Fatalf("expected tid 10 requeued, ready len = %d", Ready.Len())
	}

	if got := sw.switchedTo; len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Fatalf("unexpected switch order: %v", got)
	}
}

func TestReschedBlockedThreadNotRequeued(t *testing.T) {
	Ready.q = nil
	hartid := 1
	a := &fakeTask{tid: 20, status: Runnable}
	Ready.Push(a)
	statusOf := func(r Runnable_i) Status_t { return r.(*fakeTask).status }
	faOf := func(r Runnable_i) FastAccess_t { return FastAccess_t{Tid: r.Tid()} }
	sw := &recordingSwitcher{}
	Resched(hartid, statusOf, faOf, sw)

	a.status = Blocked
	if Resched(hartid, statusOf, faOf, sw) {
		t.Fatalf("expected hart to go idle with no other ready threads")
	}
	if Ready.Len() != 0 {
		t.Fatalf("blocked thread should not be requeued")
	}
}

func TestNoCurrentThreadOnIdleHart(t *testing.T) {
	if tid := CurrentTid(5); tid != -1 {
		t.Fatalf("expected -1 for idle hart, got %d", tid)
	}
}
