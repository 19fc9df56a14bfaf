package parkx

import (
	"sync/atomic"

	"github.com/llxisdsh/parkx/internal/opt"
)

// Parker parks and unparks a single owning goroutine.
//
// It holds at most one wakeup token: Unpark stores the token (waking the
// owner if it is parked) and Park consumes it, blocking until one is
// available. Unparking twice before a Park leaves one token, not two.
//
// Only the owning goroutine may call Park. Any goroutine may call Unpark.
// The zero value is ready to use.
type Parker struct {
	_     noCopy
	state atomic.Int32
	sema  opt.Sema
}

const (
	parkParked   int32 = -1
	parkEmpty    int32 = 0
	parkNotified int32 = 1
)

// Park blocks until a token is available and consumes it.
func (p *Parker) Park() {
	// Notified(1) -> Empty(0): token consumed, no blocking.
	// Empty(0) -> Parked(-1): block until Unpark.
	if p.state.Add(-1) == parkEmpty {
		return
	}
	p.sema.Acquire()
	// Unpark set Notified before releasing the semaphore.
	p.state.Swap(parkEmpty)
}

// Unpark makes a token available, waking the owner if it is parked.
func (p *Parker) Unpark() {
	if p.state.Swap(parkNotified) == parkParked {
		p.sema.Release()
	}
}
