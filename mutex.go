package parkx

import (
	"sync/atomic"
)

const (
	mutexUnlocked  uint32 = iota
	mutexLocked           // locked, no goroutine parked
	mutexContended        // locked, goroutines may be parked
)

// Mutex is a mutual exclusion lock that owns the value it protects.
//
// Lock returns a MutexGuard, the only way to reach the value. Releasing the
// guard unlocks the mutex:
//
//	g := m.Lock()
//	defer g.Unlock()
//	*g.Value()++
//
// An uncontended Lock/Unlock pair is one CAS and one swap and never touches
// the Futex. Unlock only wakes a waiter when the state says one may exist.
//
// The lock is not recursive: calling Lock while holding the guard deadlocks.
// The zero value is an unlocked mutex holding the zero T.
type Mutex[T any] struct {
	_     noCopy
	state atomic.Uint32
	fx    Futex
	value T
}

// NewMutex returns an unlocked mutex protecting v.
func NewMutex[T any](v T, opts ...Option) *Mutex[T] {
	o := buildOptions(opts)
	return &Mutex[T]{fx: o.futex, value: v}
}

// Lock blocks until the mutex is acquired.
func (m *Mutex[T]) Lock() MutexGuard[T] {
	m.lock()
	return MutexGuard[T]{m: m}
}

// TryLock acquires the mutex only if it is free.
func (m *Mutex[T]) TryLock() (MutexGuard[T], bool) {
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return MutexGuard[T]{m: m}, true
	}
	return MutexGuard[T]{}, false
}

// Do runs fn with the lock held.
func (m *Mutex[T]) Do(fn func(v *T)) {
	g := m.Lock()
	defer g.Unlock()
	fn(g.Value())
}

func (m *Mutex[T]) lock() {
	if !m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		m.lockSlow()
	}
}

func (m *Mutex[T]) lockSlow() {
	// Spin while the holder runs without waiters; it is likely to release
	// soon and parking costs more.
	var spins int
	for m.state.Load() == mutexLocked && trySpin(&spins) {
	}
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return
	}

	// Mark contended before parking so the holder's unlock wakes us. Once
	// marked, a goroutine that acquires the lock here keeps the contended
	// state, which may cost one unnecessary wake later.
	fx := futexOr(m.fx)
	for m.state.Swap(mutexContended) != mutexUnlocked {
		fx.Wait(&m.state, mutexContended)
	}
}

func (m *Mutex[T]) unlock() {
	if m.state.Swap(mutexUnlocked) == mutexContended {
		futexOr(m.fx).WakeOne(&m.state)
	}
}

// MutexGuard grants exclusive access to a Mutex's value until Unlock.
//
// A guard must be released exactly once; use defer. Releasing a guard twice,
// or using it after release, panics.
type MutexGuard[T any] struct {
	m *Mutex[T]
}

// Value returns a pointer to the protected value. It must not be retained
// past Unlock.
func (g *MutexGuard[T]) Value() *T {
	if g.m == nil {
		panic("parkx: use of released MutexGuard")
	}
	return &g.m.value
}

// Unlock releases the mutex.
func (g *MutexGuard[T]) Unlock() {
	m := g.m
	if m == nil {
		panic("parkx: unlock of released MutexGuard")
	}
	g.m = nil
	m.unlock()
}

// Guard is a held lock that a CondVar can release while waiting and
// reacquire before returning. *MutexGuard implements it.
type Guard interface {
	unlockForWait()
	relock()
}

func (g *MutexGuard[T]) unlockForWait() {
	if g.m == nil {
		panic("parkx: wait on released MutexGuard")
	}
	g.m.unlock()
}

func (g *MutexGuard[T]) relock() {
	g.m.lock()
}
