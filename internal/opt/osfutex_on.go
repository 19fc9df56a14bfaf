//go:build parkx_osfutex

package opt

// PreferOSFutex_ selects the kernel futex as the default wait/wake backend
// where the platform provides one.
// Use: go build -tags=parkx_osfutex
const PreferOSFutex_ = true
