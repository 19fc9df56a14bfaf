// Package parkx provides blocking synchronization primitives built directly
// on atomic state words and a futex-style wait/wake facility.
//
// The primitives are:
//   - Channel: a reusable rendezvous slot for one value at a time.
//   - Sender/Receiver: a single-use split channel (see NewOneshot).
//   - Mutex: an exclusive lock owning its protected value.
//   - CondVar: a condition variable paired with a MutexGuard.
//   - RWLock: a reader-writer lock owning its protected value.
//
// Every primitive is zero-value usable and parks goroutines through a Futex.
// None of them support recursion, poisoning, timeouts or cancellation.
package parkx

import (
	"errors"
	"sync/atomic"

	"github.com/llxisdsh/parkx/internal/opt"
)

// Futex is the wait/wake facility the primitives park on.
//
// Wait blocks the caller only if *addr still equals expected at the moment of
// the check; the check and the parking are atomic with respect to WakeOne and
// WakeAll on the same address. Wait may return spuriously, so callers always
// re-check their condition.
//
// WakeOne and WakeAll wake one or every goroutine parked on addr. They are
// no-ops when nobody is parked.
type Futex interface {
	Wait(addr *atomic.Uint32, expected uint32)
	WakeOne(addr *atomic.Uint32)
	WakeAll(addr *atomic.Uint32)
}

// ErrFutexUnsupported is returned by NewOSFutex on platforms without a
// kernel futex.
var ErrFutexUnsupported = errors.New("parkx: kernel futex not supported on this platform")

var defaultFutex = newDefaultFutex()

func newDefaultFutex() Futex {
	if opt.PreferOSFutex_ {
		if f, err := NewOSFutex(); err == nil {
			return f
		}
	}
	return &ParkTable{}
}

// DefaultFutex returns the backend used by primitives constructed without
// WithFutex, including zero values.
func DefaultFutex() Futex {
	return defaultFutex
}

//go:nosplit
func futexOr(f Futex) Futex {
	if f != nil {
		return f
	}
	return defaultFutex
}

// Option configures a primitive at construction.
type Option func(*options)

type options struct {
	futex Futex
}

// WithFutex makes the primitive park on f instead of DefaultFutex.
func WithFutex(f Futex) Option {
	return func(o *options) {
		o.futex = f
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
