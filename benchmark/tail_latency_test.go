package benchmark

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/llxisdsh/parkx"
	"github.com/puzpuzpuz/xsync/v4"
)

// ============================================================================
// Global Configuration
// ============================================================================

// Test parameters - adjust for stability vs speed tradeoff
const (
	defaultOpsPerWorker = 50000 // Operations per worker
	warmupRounds        = 3     // Warmup iterations before measurement
	measureRounds       = 5     // Measurement rounds to average
	writeEvery          = 5     // one write per writeEvery operations
)

// ============================================================================
// Lock Adapters
// ============================================================================

// CellInterface is an int guarded by some lock.
type CellInterface interface {
	Add(delta int)
	Get() int
}

type parkxMutexCell struct{ m *parkx.Mutex[int] }

func (c *parkxMutexCell) Add(d int) { c.m.Do(func(v *int) { *v += d }) }
func (c *parkxMutexCell) Get() int {
	g := c.m.Lock()
	defer g.Unlock()
	return *g.Value()
}

type parkxRWLockCell struct{ rw *parkx.RWLock[int] }

func (c *parkxRWLockCell) Add(d int) {
	g := c.rw.Write()
	*g.Value() += d
	g.Unlock()
}
func (c *parkxRWLockCell) Get() int {
	g := c.rw.Read()
	defer g.Unlock()
	return *g.Value()
}

type syncMutexCell struct {
	mu sync.Mutex
	v  int
}

func (c *syncMutexCell) Add(d int) {
	c.mu.Lock()
	c.v += d
	c.mu.Unlock()
}
func (c *syncMutexCell) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

type syncRWMutexCell struct {
	mu sync.RWMutex
	v  int
}

func (c *syncRWMutexCell) Add(d int) {
	c.mu.Lock()
	c.v += d
	c.mu.Unlock()
}
func (c *syncRWMutexCell) Get() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

type xsyncRBMutexCell struct {
	mu *xsync.RBMutex
	v  int
}

func (c *xsyncRBMutexCell) Add(d int) {
	c.mu.Lock()
	c.v += d
	c.mu.Unlock()
}
func (c *xsyncRBMutexCell) Get() int {
	t := c.mu.RLock()
	defer c.mu.RUnlock(t)
	return c.v
}

func lockImpls() []struct {
	name string
	make func() CellInterface
} {
	table := &parkx.ParkTable{}
	impls := []struct {
		name string
		make func() CellInterface
	}{
		{"sync.Mutex", func() CellInterface { return &syncMutexCell{} }},
		{"sync.RWMutex", func() CellInterface { return &syncRWMutexCell{} }},
		{"xsync.RBMutex", func() CellInterface { return &xsyncRBMutexCell{mu: xsync.NewRBMutex()} }},
		{"parkx.Mutex", func() CellInterface {
			return &parkxMutexCell{parkx.NewMutex(0, parkx.WithFutex(table))}
		}},
		{"parkx.RWLock", func() CellInterface {
			return &parkxRWLockCell{parkx.NewRWLock(0, parkx.WithFutex(table))}
		}},
	}
	if fx, err := parkx.NewOSFutex(); err == nil {
		impls = append(impls,
			struct {
				name string
				make func() CellInterface
			}{"parkx.Mutex/os", func() CellInterface {
				return &parkxMutexCell{parkx.NewMutex(0, parkx.WithFutex(fx))}
			}},
			struct {
				name string
				make func() CellInterface
			}{"parkx.RWLock/os", func() CellInterface {
				return &parkxRWLockCell{parkx.NewRWLock(0, parkx.WithFutex(fx))}
			}},
		)
	}
	return impls
}

// ============================================================================
// Latency Result
// ============================================================================

type latencyResult struct {
	name       string
	throughput float64
	avg        time.Duration
	p50        time.Duration
	p99        time.Duration
	p999       time.Duration
	max        time.Duration
	slowRate   float64 // % of ops > 1ms
}

// us formats duration as microseconds with 2 decimal places
func us(d time.Duration) string {
	return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/float64(time.Microsecond))
}

func runLatencyTest(workers, opsPerWorker int, c CellInterface) latencyResult {
	total := workers * opsPerWorker
	samples := make([]int64, total)
	var sampleIdx atomic.Int64
	var slowOps atomic.Int64
	var writes atomic.Int64

	runtime.GC()

	var wg sync.WaitGroup
	start := time.Now()

	for w := range workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range opsPerWorker {
				opStart := time.Now()
				if (workerID+i)%writeEvery == 0 {
					c.Add(1)
					writes.Add(1)
				} else {
					_ = c.Get()
				}
				lat := time.Since(opStart).Nanoseconds()

				if lat > int64(time.Millisecond) {
					slowOps.Add(1)
				}
				idx := sampleIdx.Add(1) - 1
				if idx < int64(total) {
					samples[idx] = lat
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if got, want := c.Get(), int(writes.Load()); got != want {
		panic(fmt.Sprintf("lost updates: %d, want %d", got, want))
	}

	slices.Sort(samples)

	var sum int64
	for _, v := range samples {
		sum += v
	}

	return latencyResult{
		throughput: float64(total) / elapsed.Seconds(),
		avg:        time.Duration(sum / int64(len(samples))),
		p50:        time.Duration(samples[len(samples)/2]),
		p99:        time.Duration(samples[int(float64(len(samples))*0.99)]),
		p999:       time.Duration(samples[int(float64(len(samples)-1)*0.999)]),
		max:        time.Duration(samples[len(samples)-1]),
		slowRate:   float64(slowOps.Load()) / float64(total) * 100,
	}
}

// runWithWarmup runs warmup rounds then measurement rounds and returns averaged result
func runWithWarmup(workers, ops int, makeCell func() CellInterface) latencyResult {
	for range warmupRounds {
		_ = runLatencyTest(workers, ops/10, makeCell())
	}
	runtime.GC()
	time.Sleep(10 * time.Millisecond)

	var results []latencyResult
	for range measureRounds {
		results = append(results, runLatencyTest(workers, ops, makeCell()))
		runtime.GC()
	}

	var avgResult latencyResult
	for _, r := range results {
		avgResult.throughput += r.throughput
		avgResult.avg += r.avg
		avgResult.p50 += r.p50
		avgResult.p99 += r.p99
		avgResult.p999 += r.p999
		avgResult.max += r.max
		avgResult.slowRate += r.slowRate
	}
	n := float64(len(results))
	avgResult.throughput /= n
	avgResult.avg /= time.Duration(n)
	avgResult.p50 /= time.Duration(n)
	avgResult.p99 /= time.Duration(n)
	avgResult.p999 /= time.Duration(n)
	avgResult.max /= time.Duration(n)
	avgResult.slowRate /= n

	return avgResult
}

// ============================================================================
// Main Test
// ============================================================================

func TestLatencySummary(t *testing.T) {
	if testing.Short() {
		t.Skip("latency summary is slow")
	}
	numCPU := runtime.GOMAXPROCS(0)
	workers := numCPU * 2
	ops := defaultOpsPerWorker

	t.Logf("=== Lock Tail Latency Benchmark ===")
	t.Logf("CPUs: %d, Workers: %d, Ops/Worker: %d, Writes: 1/%d", numCPU, workers, ops, writeEvery)
	t.Logf("Warmup: %d rounds, Measure: %d rounds\n", warmupRounds, measureRounds)

	var results []*latencyResult
	for _, impl := range lockImpls() {
		t.Logf("Testing %s...", impl.name)
		r := runWithWarmup(workers, ops, impl.make)
		r.name = impl.name
		results = append(results, &r)
	}

	slices.SortFunc(results, func(a, b *latencyResult) int {
		if a.p999 < b.p999 {
			return -1
		}
		if a.p999 > b.p999 {
			return 1
		}
		return 0
	})

	t.Log("\n=== Results (sorted by p999) ===")
	t.Logf("%-4s | %-16s | %12s | %10s | %10s | %10s | %8s",
		"Rank", "Implementation", "Throughput", "p99", "p999", "max", "slow%")
	t.Logf("-----|------------------|--------------|------------|------------|------------|----------")
	for i, r := range results {
		t.Logf("%-4d | %-16s | %10.0f/s | %10s | %10s | %10s | %6.4f%%",
			i+1, r.name, r.throughput, us(r.p99), us(r.p999), us(r.max), r.slowRate)
	}

	t.Logf("\n✓ Best p999: %s (%s)", results[0].name, us(results[0].p999))

	best := results[0]
	for _, r := range results {
		if r.throughput > best.throughput {
			best = r
		}
	}
	t.Logf("✓ Best throughput: %s (%.0f/s)", best.name, best.throughput)
}

// ============================================================================
// Quick Test (for fast iteration)
// ============================================================================

func TestLatencyQuick(t *testing.T) {
	numCPU := runtime.GOMAXPROCS(0)
	workers := numCPU
	ops := 10000

	t.Logf("Quick test: %d workers, %d ops", workers, ops)
	t.Logf("%-16s | %12s | %10s | %10s",
		"Implementation", "Throughput", "p999", "max")
	t.Logf("-----------------|--------------|------------|------------")

	for _, impl := range lockImpls() {
		r := runLatencyTest(workers, ops, impl.make())
		t.Logf("%-16s | %10.0f/s | %10s | %10s",
			impl.name, r.throughput, us(r.p999), us(r.max))
	}
}
