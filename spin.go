package parkx

import (
	"time"
	_ "unsafe" // for linkname
)

// noCopy makes go vet's copylocks check flag copies of the primitives, which
// would split a state word from the goroutines parked on it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// trySpin spins once if the scheduler says spinning can pay off (multicore,
// idle Ps, few rounds so far). A false result means park instead.
func trySpin(spins *int) bool {
	if !runtime_canSpin(*spins) {
		return false
	}
	*spins++
	runtime_doSpin()
	return true
}

// backoffSleep is the pause once spinning stops paying off; it matches the
// sleep in folly's Sleeper.
const backoffSleep = 500 * time.Microsecond

// delay waits out a Channel mid-write or mid-read. Those states last a few
// instructions and are never parked on.
func delay(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	time.Sleep(backoffSleep)
}

//go:linkname runtime_canSpin sync.runtime_canSpin
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
func runtime_doSpin()
