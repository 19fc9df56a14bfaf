package parkx

import (
	"sync/atomic"

	"github.com/llxisdsh/parkx/internal/opt"
)

// ParkTable is a Futex implemented in user space.
//
// Parked goroutines are kept in per-address FIFO queues. The value check in
// Wait and every queue mutation run inside one per-address critical section,
// so a waker that changes the word and then calls WakeOne either sees the
// waiter queued or the waiter sees the new value.
//
// A goroutine parked here blocks on a runtime semaphore and does not hold an
// OS thread. The zero value is ready to use.
type ParkTable struct {
	_ noCopy
	m parkMap
}

type parkQueue struct {
	head *parkWaiter
	tail *parkWaiter
	n    int
}

type parkWaiter struct {
	next *parkWaiter
	sema opt.Sema
}

func (q *parkQueue) push(w *parkWaiter) {
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	q.n++
}

func (q *parkQueue) pop() *parkWaiter {
	w := q.head
	if w == nil {
		return nil
	}
	q.head = w.next
	if q.head == nil {
		q.tail = nil
	}
	w.next = nil
	q.n--
	return w
}

// Wait parks the caller on addr if *addr == expected.
// Wakeups from this table are never spurious, but callers must not rely on it.
func (t *ParkTable) Wait(addr *atomic.Uint32, expected uint32) {
	var w *parkWaiter
	t.m.compute(addr, func(q *parkQueue) *parkQueue {
		if addr.Load() != expected {
			return q
		}
		w = &parkWaiter{}
		if q == nil {
			q = &parkQueue{}
		}
		q.push(w)
		return q
	})
	if w != nil {
		w.sema.Acquire()
	}
}

// WakeOne wakes the longest-parked goroutine on addr, if any.
func (t *ParkTable) WakeOne(addr *atomic.Uint32) {
	var w *parkWaiter
	t.m.compute(addr, func(q *parkQueue) *parkQueue {
		if q == nil {
			return nil
		}
		w = q.pop()
		if q.head == nil {
			return nil
		}
		return q
	})
	if w != nil {
		w.sema.Release()
	}
}

// WakeAll wakes every goroutine parked on addr.
func (t *ParkTable) WakeAll(addr *atomic.Uint32) {
	var woken *parkQueue
	t.m.compute(addr, func(q *parkQueue) *parkQueue {
		woken = q
		return nil
	})
	if woken == nil {
		return
	}
	for w := woken.pop(); w != nil; w = woken.pop() {
		w.sema.Release()
	}
}

// Parked returns the number of goroutines currently parked on addr.
// The result is a snapshot and may be stale by the time it is used.
func (t *ParkTable) Parked(addr *atomic.Uint32) int {
	var n int
	t.m.compute(addr, func(q *parkQueue) *parkQueue {
		if q != nil {
			n = q.n
		}
		return q
	})
	return n
}
