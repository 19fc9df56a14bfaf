package parkx

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestRWLock_Basic(t *testing.T) {
	var rw RWLock[int]
	w := rw.Write()
	*w.Value() = 1
	w.Unlock()

	r := rw.Read()
	if v := *r.Value(); v != 1 {
		t.Errorf("value = %d, want 1", v)
	}
	r.Unlock()

	if s := rw.state.Load(); s != 0 {
		t.Errorf("state = %d after release, want 0", s)
	}
}

func TestRWLock_ReadersCoexist(t *testing.T) {
	rw := NewRWLock("shared")
	const n = 16
	guards := make([]ReadGuard[string], 0, n)
	finishes(t, time.Second, func() {
		for range n {
			guards = append(guards, rw.Read())
		}
	})
	if s := rw.state.Load(); s != n {
		t.Errorf("reader count = %d, want %d", s, n)
	}
	if _, ok := rw.TryWrite(); ok {
		t.Fatal("TryWrite succeeded while readers hold the lock")
	}
	for i := range guards {
		guards[i].Unlock()
	}
	w, ok := rw.TryWrite()
	if !ok {
		t.Fatal("TryWrite failed on a free lock")
	}
	if _, ok := rw.TryRead(); ok {
		t.Fatal("TryRead succeeded while a writer holds the lock")
	}
	w.Unlock()
}

func TestRWLock_ReadersConcurrentWithEachOther(t *testing.T) {
	var rw RWLock[int]
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	var inside atomic.Int32
	release := make(chan struct{})
	for range n {
		go func() {
			defer wg.Done()
			r := rw.Read()
			inside.Add(1)
			<-release
			r.Unlock()
		}()
	}
	eventually(t, time.Second, func() bool { return inside.Load() == n },
		"readers did not hold the lock at the same time")
	close(release)
	finishes(t, time.Second, wg.Wait)
}

func TestRWLock_WriterWaitsForReaders(t *testing.T) {
	for name, fx := range futexBackends(t) {
		t.Run(name, func(t *testing.T) {
			rw := NewRWLock(0, WithFutex(fx))
			r1 := rw.Read()
			r2 := rw.Read()

			var acquired atomic.Bool
			done := make(chan struct{})
			go func() {
				w := rw.Write()
				acquired.Store(true)
				*w.Value() = 9
				w.Unlock()
				close(done)
			}()

			time.Sleep(50 * time.Millisecond)
			r1.Unlock()
			time.Sleep(50 * time.Millisecond)
			if acquired.Load() {
				t.Fatal("writer acquired while a reader still holds the lock")
			}
			r2.Unlock()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("writer not woken by the last reader")
			}
		})
	}
}

func TestRWLock_OnlyLastReaderWakesWriter(t *testing.T) {
	fx := &countingFutex{Futex: &ParkTable{}}
	rw := NewRWLock(0, WithFutex(fx))
	const n = 5
	guards := make([]ReadGuard[int], n)
	for i := range guards {
		guards[i] = rw.Read()
	}
	for i := range n - 1 {
		guards[i].Unlock()
	}
	if o := fx.wakeOnes.Load(); o != 0 {
		t.Errorf("non-last readers issued %d wakes", o)
	}
	before := rw.writerWake.Load()
	guards[n-1].Unlock()
	if o := fx.wakeOnes.Load(); o != 1 {
		t.Errorf("last reader issued %d wakes, want 1", o)
	}
	if after := rw.writerWake.Load(); after != before+1 {
		t.Errorf("writerWake = %d, want %d", after, before+1)
	}
}

func TestRWLock_WriterUnlockWakesReaders(t *testing.T) {
	for name, fx := range futexBackends(t) {
		t.Run(name, func(t *testing.T) {
			rw := NewRWLock(0, WithFutex(fx))
			w := rw.Write()

			const n = 6
			var wg sync.WaitGroup
			wg.Add(n)
			var seen atomic.Int32
			for range n {
				go func() {
					defer wg.Done()
					r := rw.Read()
					if *r.Value() == 77 {
						seen.Add(1)
					}
					r.Unlock()
				}()
			}
			time.Sleep(50 * time.Millisecond)
			*w.Value() = 77
			w.Unlock()
			finishes(t, time.Second, wg.Wait)
			if s := seen.Load(); s != n {
				t.Errorf("%d readers saw the written value, want %d", s, n)
			}
		})
	}
}

func TestRWLock_ReaderOverflowPanics(t *testing.T) {
	var rw RWLock[int]
	rw.state.Store(rwReaderLimit)
	defer func() {
		if recover() == nil {
			t.Error("Read at the reader limit did not panic")
		}
		if s := rw.state.Load(); s != rwReaderLimit {
			t.Errorf("state = %d after overflow, want unchanged", s)
		}
	}()
	_ = rw.Read()
}

func TestRWLock_TryReadAtLimit(t *testing.T) {
	var rw RWLock[int]
	rw.state.Store(rwReaderLimit)
	if _, ok := rw.TryRead(); ok {
		t.Error("TryRead succeeded at the reader limit")
	}
}

func TestRWLockGuard_DoubleUnlockPanics(t *testing.T) {
	var rw RWLock[int]
	t.Run("read", func(t *testing.T) {
		r := rw.Read()
		r.Unlock()
		defer func() {
			if recover() == nil {
				t.Error("second read Unlock did not panic")
			}
		}()
		r.Unlock()
	})
	t.Run("write", func(t *testing.T) {
		w := rw.Write()
		w.Unlock()
		defer func() {
			if recover() == nil {
				t.Error("second write Unlock did not panic")
			}
		}()
		w.Unlock()
	})
}

func TestRWLock_ReadersAndWriters(t *testing.T) {
	type pair struct {
		a, b int
	}
	for name, fx := range futexBackends(t) {
		t.Run(name, func(t *testing.T) {
			rw := NewRWLock(pair{}, WithFutex(fx))
			var readers, writers atomic.Int32

			loops := stressLoops(2000)
			readerN := runtime.GOMAXPROCS(0)
			const writerN = 2

			var eg errgroup.Group
			for range readerN {
				eg.Go(func() error {
					for range loops {
						r := rw.Read()
						if n := readers.Add(1); n <= 0 {
							t.Errorf("invalid reader count %d", n)
						}
						if writers.Load() != 0 {
							t.Errorf("reader observed active writer")
						}
						if p := r.Value(); p.a != p.b {
							t.Errorf("reader saw torn value %+v", *p)
						}
						readers.Add(-1)
						r.Unlock()
					}
					return nil
				})
			}
			for range writerN {
				eg.Go(func() error {
					for range loops {
						w := rw.Write()
						if writers.Add(1) != 1 {
							t.Errorf("multiple writers active")
						}
						if readers.Load() != 0 {
							t.Errorf("writer observed active readers")
						}
						p := w.Value()
						p.a++
						p.b++
						writers.Add(-1)
						w.Unlock()
					}
					return nil
				})
			}
			finishes(t, 60*time.Second, func() { _ = eg.Wait() })

			r := rw.Read()
			defer r.Unlock()
			if want := writerN * loops; r.Value().a != want {
				t.Errorf("writes = %d, want %d", r.Value().a, want)
			}
		})
	}
}
