package parkx

import (
	"sync/atomic"
)

// CondVar is a condition variable used together with a MutexGuard.
//
// Wait may return without a matching notify, so callers always wait in a
// loop around their predicate:
//
//	g := m.Lock()
//	for !ready(g.Value()) {
//		cv.Wait(&g)
//	}
//	defer g.Unlock()
//
// NotifyOne and NotifyAll cost a single atomic load when nobody waits.
// The zero value is ready to use.
type CondVar struct {
	_ noCopy
	// counter advances on every notify that finds waiters. Waiters park on it
	// with the value they saw before unlocking, so a notify that lands
	// between the unlock and the park makes the park return immediately.
	counter atomic.Uint32
	waiters atomic.Int64
	fx      Futex
}

// NewCondVar returns a condition variable.
func NewCondVar(opts ...Option) *CondVar {
	o := buildOptions(opts)
	return &CondVar{fx: o.futex}
}

// Wait unlocks g, parks until notified (or spuriously woken), then relocks g
// before returning. g must be held by the caller.
func (c *CondVar) Wait(g Guard) {
	c.waiters.Add(1)
	gen := c.counter.Load()

	g.unlockForWait()
	futexOr(c.fx).Wait(&c.counter, gen)

	c.waiters.Add(-1)
	g.relock()
}

// NotifyOne wakes one waiting goroutine, if any.
func (c *CondVar) NotifyOne() {
	if c.waiters.Load() > 0 {
		c.counter.Add(1)
		futexOr(c.fx).WakeOne(&c.counter)
	}
}

// NotifyAll wakes every waiting goroutine.
func (c *CondVar) NotifyAll() {
	if c.waiters.Load() > 0 {
		c.counter.Add(1)
		futexOr(c.fx).WakeAll(&c.counter)
	}
}

// Waiters returns the number of goroutines inside Wait.
func (c *CondVar) Waiters() int {
	return int(c.waiters.Load())
}

// WaitWhile waits on c until cond reports false for the guarded value.
// cond is evaluated with the lock held.
func WaitWhile[T any](c *CondVar, g *MutexGuard[T], cond func(v *T) bool) {
	for cond(g.Value()) {
		c.Wait(g)
	}
}
