//go:build !race

package parkx

import (
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

// parkMap maps a futex word to the queue of goroutines parked on it.
//
// pb's bucket locks synchronize through plain loads on TSO targets, which
// the race detector cannot see; race builds use park_map_race.go instead.
type parkMap struct {
	m pb.MapOf[*atomic.Uint32, *parkQueue]
}

type parkEntry = pb.EntryOf[*atomic.Uint32, *parkQueue]

// compute runs fn on the queue for addr (nil if there is none) while no
// other compute on addr can run. A nil result removes the queue.
func (p *parkMap) compute(addr *atomic.Uint32, fn func(q *parkQueue) *parkQueue) {
	p.m.ProcessEntry(
		addr,
		func(l *parkEntry) (*parkEntry, *parkQueue, bool) {
			var old *parkQueue
			if l != nil {
				old = l.Value
			}
			q := fn(old)
			switch {
			case q == old:
				return l, q, false
			case q == nil:
				return nil, nil, true
			default:
				return &parkEntry{Value: q}, q, true
			}
		},
	)
}
