// Package stress runs randomized concurrent workloads against the parkx
// primitives and checks their safety invariants and liveness.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/parkx"
)

var (
	// ErrInvariant is returned when a workload observes a broken safety
	// property (two exclusive holders, a torn value, a lost message).
	ErrInvariant = errors.New("invariant violated")

	// ErrStalled is returned when a workload does not finish within the
	// profile timeout, which usually means a goroutine missed a wakeup.
	// The stalled goroutines cannot be cancelled and are left parked.
	ErrStalled = errors.New("workload stalled")
)

// Result summarizes one completed workload.
type Result struct {
	Workload string
	Ops      int
	Elapsed  time.Duration
}

type workload func(ctx context.Context, env *env) (int, error)

var workloads = map[string]workload{
	WorkloadMutex:   runMutex,
	WorkloadRWLock:  runRWLock,
	WorkloadCondVar: runCondVar,
	WorkloadChannel: runChannel,
	WorkloadOneshot: runOneshot,
}

type env struct {
	p  Profile
	fx parkx.Futex
}

// jitter randomly yields or spins to shake out interleavings.
func (e *env) jitter(r *rand.Rand) {
	switch r.IntN(8) {
	case 0:
		runtime.Gosched()
	case 1:
		for range r.IntN(64) {
			_ = r.Uint32()
		}
	}
}

func (e *env) rng(stream int) *rand.Rand {
	return rand.New(rand.NewPCG(e.p.Seed, uint64(stream)))
}

// Run executes every workload in p in order and stops at the first failure.
func Run(ctx context.Context, p Profile, logger *slog.Logger) ([]Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fx, err := p.Futex()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", p.Backend, err)
	}
	e := &env{p: p, fx: fx}

	results := make([]Result, 0, len(p.Workloads))
	for _, name := range p.Workloads {
		logger.Debug("starting workload",
			slog.String("workload", name),
			slog.String("backend", p.Backend),
			slog.Int("goroutines", p.Goroutines),
			slog.Int("iterations", p.Iterations),
		)
		res, err := runOne(ctx, e, name, workloads[name])
		if err != nil {
			logger.Error("workload failed", slog.String("workload", name), slog.Any("error", err))
			return results, fmt.Errorf("%s: %w", name, err)
		}
		logger.Info("workload passed",
			slog.String("workload", name),
			slog.Int("ops", res.Ops),
			slog.Duration("elapsed", res.Elapsed),
		)
		results = append(results, res)
	}
	return results, nil
}

// runOne runs w with the profile timeout as a liveness watchdog.
func runOne(ctx context.Context, e *env, name string, w workload) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.p.Timeout)
	defer cancel()

	type outcome struct {
		ops int
		err error
	}
	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		ops, err := w(ctx, e)
		done <- outcome{ops, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{}, o.err
		}
		return Result{Workload: name, Ops: o.ops, Elapsed: time.Since(start)}, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %v", ErrStalled, e.p.Timeout)
		}
		return Result{}, ctx.Err()
	}
}

func runMutex(ctx context.Context, e *env) (int, error) {
	type pair struct {
		a, b int
	}
	m := parkx.NewMutex(pair{}, parkx.WithFutex(e.fx))
	var inside atomic.Int32

	eg, ctx := errgroup.WithContext(ctx)
	for i := range e.p.Goroutines {
		eg.Go(func() error {
			r := e.rng(i)
			for range e.p.Iterations {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g := m.Lock()
				if n := inside.Add(1); n != 1 {
					g.Unlock()
					return fmt.Errorf("%w: %d holders of the mutex", ErrInvariant, n)
				}
				p := g.Value()
				if p.a != p.b {
					g.Unlock()
					return fmt.Errorf("%w: torn value %+v", ErrInvariant, *p)
				}
				p.a++
				e.jitter(r)
				p.b++
				inside.Add(-1)
				g.Unlock()
				e.jitter(r)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	want := e.p.Goroutines * e.p.Iterations
	g := m.Lock()
	defer g.Unlock()
	if got := g.Value().a; got != want {
		return 0, fmt.Errorf("%w: counter %d, want %d", ErrInvariant, got, want)
	}
	return want, nil
}

func runRWLock(ctx context.Context, e *env) (int, error) {
	type pair struct {
		a, b int
	}
	rw := parkx.NewRWLock(pair{}, parkx.WithFutex(e.fx))
	var readers, writers atomic.Int32
	var writes atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	for i := range e.p.Goroutines {
		eg.Go(func() error {
			r := e.rng(i)
			for range e.p.Iterations {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if r.IntN(4) == 0 {
					w := rw.Write()
					if n := writers.Add(1); n != 1 || readers.Load() != 0 {
						w.Unlock()
						return fmt.Errorf("%w: writer shares the lock (writers=%d readers=%d)",
							ErrInvariant, n, readers.Load())
					}
					p := w.Value()
					p.a++
					e.jitter(r)
					p.b++
					writes.Add(1)
					writers.Add(-1)
					w.Unlock()
				} else {
					g := rw.Read()
					readers.Add(1)
					if writers.Load() != 0 {
						g.Unlock()
						return fmt.Errorf("%w: reader observed an active writer", ErrInvariant)
					}
					if p := g.Value(); p.a != p.b {
						g.Unlock()
						return fmt.Errorf("%w: reader saw torn value %+v", ErrInvariant, *p)
					}
					e.jitter(r)
					readers.Add(-1)
					g.Unlock()
				}
				e.jitter(r)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	g := rw.Read()
	defer g.Unlock()
	if got, want := int64(g.Value().a), writes.Load(); got != want {
		return 0, fmt.Errorf("%w: %d writes applied, want %d", ErrInvariant, got, want)
	}
	return e.p.Goroutines * e.p.Iterations, nil
}

// runCondVar passes tokens through a bounded queue: Goroutines-1 producers,
// one consumer, one mutex and two condition variables.
func runCondVar(_ context.Context, e *env) (int, error) {
	type queue struct {
		items []int
	}
	const capacity = 4
	m := parkx.NewMutex(queue{}, parkx.WithFutex(e.fx))
	notEmpty := parkx.NewCondVar(parkx.WithFutex(e.fx))
	notFull := parkx.NewCondVar(parkx.WithFutex(e.fx))
	producers := e.p.Goroutines - 1
	total := producers * e.p.Iterations

	var eg errgroup.Group
	for i := range producers {
		eg.Go(func() error {
			r := e.rng(i)
			for j := range e.p.Iterations {
				g := m.Lock()
				parkx.WaitWhile(notFull, &g, func(q *queue) bool { return len(q.items) == capacity })
				g.Value().items = append(g.Value().items, i*e.p.Iterations+j)
				notEmpty.NotifyOne()
				g.Unlock()
				e.jitter(r)
			}
			return nil
		})
	}

	var sum int64
	eg.Go(func() error {
		r := e.rng(producers)
		for range total {
			g := m.Lock()
			parkx.WaitWhile(notEmpty, &g, func(q *queue) bool { return len(q.items) == 0 })
			q := g.Value()
			sum += int64(q.items[0])
			q.items = q.items[1:]
			notFull.NotifyOne()
			g.Unlock()
			e.jitter(r)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	n := int64(total)
	if want := n * (n - 1) / 2; sum != want {
		return 0, fmt.Errorf("%w: token sum %d, want %d", ErrInvariant, sum, want)
	}
	return total, nil
}

// runChannel bounces a counter between pairs of goroutines over two Channels.
func runChannel(ctx context.Context, e *env) (int, error) {
	pairs := e.p.Goroutines / 2

	eg, ctx := errgroup.WithContext(ctx)
	for i := range pairs {
		ping := parkx.NewChannel[int](parkx.WithFutex(e.fx))
		pong := parkx.NewChannel[int](parkx.WithFutex(e.fx))

		eg.Go(func() error {
			r := e.rng(2 * i)
			for want := range e.p.Iterations {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := ping.Send(want); err != nil {
					return fmt.Errorf("%w: %w", ErrInvariant, err)
				}
				e.jitter(r)
				got, err := pong.Recv()
				if err != nil {
					return err
				}
				if got != want+1 {
					return fmt.Errorf("%w: pong %d, want %d", ErrInvariant, got, want+1)
				}
			}
			return ping.Close()
		})
		eg.Go(func() error {
			r := e.rng(2*i + 1)
			for {
				v, err := ping.Recv()
				if errors.Is(err, parkx.ErrClosed) {
					return pong.Close()
				}
				if err != nil {
					return err
				}
				e.jitter(r)
				if err := pong.Send(v + 1); err != nil {
					return fmt.Errorf("%w: %w", ErrInvariant, err)
				}
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return pairs * e.p.Iterations, nil
}

// runOneshot creates a fresh Sender/Receiver pair per iteration.
func runOneshot(ctx context.Context, e *env) (int, error) {
	eg, ctx := errgroup.WithContext(ctx)
	for i := range e.p.Goroutines {
		eg.Go(func() error {
			r := e.rng(i)
			for want := range e.p.Iterations {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				tx, rx := parkx.NewOneshot[int]()
				go func() {
					if want%3 == 0 {
						runtime.Gosched()
					}
					_ = tx.Send(want)
				}()
				e.jitter(r)
				got, err := rx.Recv()
				if err != nil {
					return err
				}
				if got != want {
					return fmt.Errorf("%w: oneshot delivered %d, want %d", ErrInvariant, got, want)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return e.p.Goroutines * e.p.Iterations, nil
}
