//go:build linux

package parkx

import (
	"math"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWait        = 0
	futexWake        = 1
	futexPrivateFlag = 128
)

// OSFutex parks on the kernel futex of the word itself.
//
// A goroutine parked here occupies an OS thread for the duration of the wait,
// which suits a small number of long-lived waiters. Prefer ParkTable when many
// goroutines may block at once.
type OSFutex struct{}

// NewOSFutex returns the kernel futex backend.
func NewOSFutex() (Futex, error) {
	return OSFutex{}, nil
}

// Wait issues FUTEX_WAIT. EAGAIN (value changed) and EINTR are reported to
// the caller as a spurious return.
func (OSFutex) Wait(addr *atomic.Uint32, expected uint32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait|futexPrivateFlag,
		uintptr(expected),
		0, 0, 0,
	)
}

// WakeOne issues FUTEX_WAKE for one waiter.
func (OSFutex) WakeOne(addr *atomic.Uint32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake|futexPrivateFlag,
		1,
		0, 0, 0,
	)
}

// WakeAll issues FUTEX_WAKE for every waiter.
func (OSFutex) WakeAll(addr *atomic.Uint32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake|futexPrivateFlag,
		math.MaxInt32,
		0, 0, 0,
	)
}
