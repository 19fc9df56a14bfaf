//go:build !linux

package parkx

// NewOSFutex reports ErrFutexUnsupported outside Linux.
func NewOSFutex() (Futex, error) {
	return nil, ErrFutexUnsupported
}
