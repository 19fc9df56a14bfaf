//go:build !parkx_osfutex

package opt

const PreferOSFutex_ = false
