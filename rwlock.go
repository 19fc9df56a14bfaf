package parkx

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/parkx/internal/opt"
)

const (
	// rwWriteLocked is the state of a write-locked RWLock. Any smaller state
	// is the number of readers holding it.
	rwWriteLocked uint32 = math.MaxUint32
	// rwReaderLimit is the largest reader count; one more reader would make
	// the count collide with rwWriteLocked.
	rwReaderLimit = rwWriteLocked - 1
)

// RWLock is a reader-writer lock that owns the value it protects.
//
// Any number of ReadGuards may coexist; a WriteGuard excludes every other
// guard. Readers park on the state word while a writer holds the lock.
// Writers park on a separate writer-wake counter that only the last reader
// leaving and a writer unlocking advance, so a parked writer is not woken
// by readers that come and go while others still hold the lock.
//
// Readers are not blocked by waiting writers, so a writer can wait as long
// as readers keep overlapping. The lock is not recursive.
// The zero value is an unlocked lock holding the zero T.
type RWLock[T any] struct {
	_     noCopy
	state atomic.Uint32
	_     [opt.CacheLineSize_ - unsafe.Sizeof(atomic.Uint32{})]byte
	// writerWake is advanced and woken whenever a parked writer should retry.
	writerWake atomic.Uint32
	fx         Futex
	value      T
}

// NewRWLock returns an unlocked lock protecting v.
func NewRWLock[T any](v T, opts ...Option) *RWLock[T] {
	o := buildOptions(opts)
	return &RWLock[T]{fx: o.futex, value: v}
}

// Read blocks until shared access is granted.
//
// It panics if the number of concurrent readers would reach the write-locked
// sentinel.
func (rw *RWLock[T]) Read() ReadGuard[T] {
	fx := futexOr(rw.fx)
	s := rw.state.Load()
	for {
		if s < rwWriteLocked {
			if s == rwReaderLimit {
				panic("parkx: too many RWLock readers")
			}
			if rw.state.CompareAndSwap(s, s+1) {
				return ReadGuard[T]{rw: rw}
			}
			s = rw.state.Load()
			continue
		}
		fx.Wait(&rw.state, rwWriteLocked)
		s = rw.state.Load()
	}
}

// TryRead acquires shared access only if no writer holds the lock.
func (rw *RWLock[T]) TryRead() (ReadGuard[T], bool) {
	for {
		s := rw.state.Load()
		if s >= rwReaderLimit {
			return ReadGuard[T]{}, false
		}
		if rw.state.CompareAndSwap(s, s+1) {
			return ReadGuard[T]{rw: rw}, true
		}
	}
}

// Write blocks until exclusive access is granted.
func (rw *RWLock[T]) Write() WriteGuard[T] {
	fx := futexOr(rw.fx)
	for !rw.state.CompareAndSwap(0, rwWriteLocked) {
		w := rw.writerWake.Load()
		// Park only if the lock is still held; a release between the failed
		// CAS and this load has already advanced writerWake past w.
		if rw.state.Load() != 0 {
			fx.Wait(&rw.writerWake, w)
		}
	}
	return WriteGuard[T]{rw: rw}
}

// TryWrite acquires exclusive access only if the lock is free.
func (rw *RWLock[T]) TryWrite() (WriteGuard[T], bool) {
	if rw.state.CompareAndSwap(0, rwWriteLocked) {
		return WriteGuard[T]{rw: rw}, true
	}
	return WriteGuard[T]{}, false
}

func (rw *RWLock[T]) readUnlock() {
	if rw.state.Add(^uint32(0)) == 0 {
		// Last reader out: a writer may be parked.
		rw.writerWake.Add(1)
		futexOr(rw.fx).WakeOne(&rw.writerWake)
	}
}

func (rw *RWLock[T]) writeUnlock() {
	fx := futexOr(rw.fx)
	rw.state.Store(0)
	rw.writerWake.Add(1)
	fx.WakeOne(&rw.writerWake)
	fx.WakeAll(&rw.state)
}

// ReadGuard grants shared access to an RWLock's value until Unlock.
type ReadGuard[T any] struct {
	rw *RWLock[T]
}

// Value returns a pointer to the protected value. Other readers may hold it
// concurrently, so it must not be mutated or retained past Unlock.
func (g *ReadGuard[T]) Value() *T {
	if g.rw == nil {
		panic("parkx: use of released ReadGuard")
	}
	return &g.rw.value
}

// Unlock releases shared access.
func (g *ReadGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("parkx: unlock of released ReadGuard")
	}
	g.rw = nil
	rw.readUnlock()
}

// WriteGuard grants exclusive access to an RWLock's value until Unlock.
type WriteGuard[T any] struct {
	rw *RWLock[T]
}

// Value returns a pointer to the protected value. It must not be retained
// past Unlock.
func (g *WriteGuard[T]) Value() *T {
	if g.rw == nil {
		panic("parkx: use of released WriteGuard")
	}
	return &g.rw.value
}

// Unlock releases exclusive access and wakes parked readers and one parked
// writer.
func (g *WriteGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("parkx: unlock of released WriteGuard")
	}
	g.rw = nil
	rw.writeUnlock()
}
