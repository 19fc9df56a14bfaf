//go:build race

package parkx

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

const parkShards = 64

// parkMap maps a futex word to the queue of goroutines parked on it.
// Race builds shard plain maps behind sync.Mutex so every queue access is
// visible to the race detector.
type parkMap struct {
	once   sync.Once
	shards []parkShard
}

type parkShard struct {
	mu sync.Mutex
	m  map[*atomic.Uint32]*parkQueue
}

func (p *parkMap) shard(addr *atomic.Uint32) *parkShard {
	p.once.Do(func() {
		p.shards = make([]parkShard, parkShards)
		for i := range p.shards {
			p.shards[i].m = make(map[*atomic.Uint32]*parkQueue)
		}
	})
	// Words are at least 4-byte aligned.
	return &p.shards[(uintptr(unsafe.Pointer(addr))>>2)%parkShards]
}

// compute runs fn on the queue for addr (nil if there is none) while no
// other compute on addr can run. A nil result removes the queue.
func (p *parkMap) compute(addr *atomic.Uint32, fn func(q *parkQueue) *parkQueue) {
	s := p.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.m[addr]
	switch q := fn(old); {
	case q == old:
	case q == nil:
		delete(s.m, addr)
	default:
		s.m[addr] = q
	}
}
