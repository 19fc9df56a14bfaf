package parkx

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
)

var (
	// ErrProtocolViolation is returned when a channel operation is called out
	// of the empty -> ready -> consumed sequence. It signals a programming
	// error; retrying the same call does not help.
	ErrProtocolViolation = errors.New("parkx: channel protocol violation")

	// ErrClosed is returned by channel operations after Close.
	ErrClosed = errors.New("parkx: channel closed")
)

// ChannelState is the externally observable state of a Channel.
type ChannelState uint32

const (
	ChannelEmpty ChannelState = iota
	ChannelWriting
	ChannelReady
	ChannelReading
	ChannelClosed
)

// chanClosing is held by Close while it drains the slot. It is reported as
// ChannelClosed.
const chanClosing = uint32(ChannelClosed) + 1

func (s ChannelState) String() string {
	switch s {
	case ChannelEmpty:
		return "empty"
	case ChannelWriting:
		return "writing"
	case ChannelReady:
		return "ready"
	case ChannelReading:
		return "reading"
	case ChannelClosed:
		return "closed"
	default:
		return fmt.Sprintf("ChannelState(%d)", uint32(s))
	}
}

// slot holds at most one value.
type slot[T any] struct {
	value T
	full  bool
}

func (s *slot[T]) put(v T) {
	s.value = v
	s.full = true
}

// dropPending runs when a Channel is collected with a value still in it.
func dropPending[T any](s *slot[T]) {
	if v, ok := s.take(); ok {
		_ = drop(v)
	}
}

// take empties the slot and returns what it held.
// The stored value is zeroed so the slot no longer retains it.
func (s *slot[T]) take() (v T, ok bool) {
	if !s.full {
		return v, false
	}
	v, s.value = s.value, v
	s.full = false
	return v, true
}

// Channel hands one value at a time from a sender to a receiver.
//
// State machine:
//
//	Empty --Send--> Writing --> Ready --Receive--> Reading --> Empty
//	Empty|Ready --Close--> Closed
//
// Send publishes the value with the transition to Ready; a Receive that
// observes Ready sees every write the sender made before Send. Calling Send
// on a channel that is not Empty, or Receive on one that is not Ready,
// returns ErrProtocolViolation and leaves the channel untouched.
//
// A value still pending when the channel becomes unreachable is dropped by
// the garbage collector as if Close had been called, with the error from its
// Close discarded. Call Close to observe that error.
//
// The zero value is an empty channel using DefaultFutex.
type Channel[T any] struct {
	_       noCopy
	state   atomic.Uint32
	waiters atomic.Int32
	fx      Futex
	// Allocated by the first Send so a cleanup can own it. Only the
	// goroutine holding Writing, Reading or closing touches it.
	slot *slot[T]
}

// NewChannel returns an empty channel.
func NewChannel[T any](opts ...Option) *Channel[T] {
	o := buildOptions(opts)
	return &Channel[T]{fx: o.futex}
}

// Send stores v and marks the channel ready.
func (c *Channel[T]) Send(v T) error {
	if !c.state.CompareAndSwap(uint32(ChannelEmpty), uint32(ChannelWriting)) {
		return c.stateError("send")
	}
	if c.slot == nil {
		c.slot = &slot[T]{}
		runtime.AddCleanup(c, dropPending[T], c.slot)
	}
	c.slot.put(v)
	c.state.Store(uint32(ChannelReady))
	if c.waiters.Load() > 0 {
		futexOr(c.fx).WakeAll(&c.state)
	}
	return nil
}

// Receive takes the value out of a ready channel without blocking.
func (c *Channel[T]) Receive() (T, error) {
	if !c.state.CompareAndSwap(uint32(ChannelReady), uint32(ChannelReading)) {
		var zero T
		return zero, c.stateError("receive")
	}
	v, _ := c.slot.take()
	c.state.Store(uint32(ChannelEmpty))
	return v, nil
}

// Recv blocks until a value is ready and takes it. It returns ErrClosed if
// the channel is, or becomes, closed while waiting.
func (c *Channel[T]) Recv() (T, error) {
	fx := futexOr(c.fx)
	c.waiters.Add(1)
	defer c.waiters.Add(-1)
	for {
		s := c.state.Load()
		switch ChannelState(s) {
		case ChannelReady:
			v, err := c.Receive()
			if err == nil {
				return v, nil
			}
			// Another receiver won; wait for the next value.
		case ChannelClosed:
			var zero T
			return zero, ErrClosed
		default:
			fx.Wait(&c.state, s)
		}
	}
}

// IsReady reports whether a value is waiting to be received.
// It never blocks.
func (c *Channel[T]) IsReady() bool {
	return ChannelState(c.state.Load()) == ChannelReady
}

// State returns the current state.
func (c *Channel[T]) State() ChannelState {
	s := c.state.Load()
	if s == chanClosing {
		return ChannelClosed
	}
	return ChannelState(s)
}

// Close closes the channel. A value that was sent but never received is
// dropped; if it implements io.Closer its Close is called and the error
// returned. Parked receivers are woken and see ErrClosed.
//
// Close is idempotent.
func (c *Channel[T]) Close() error {
	var spins int
	for {
		s := ChannelState(c.state.Load())
		switch s {
		case ChannelClosed:
			return nil
		case ChannelEmpty, ChannelReady:
			if !c.state.CompareAndSwap(uint32(s), chanClosing) {
				continue
			}
			var v T
			var ok bool
			if c.slot != nil {
				v, ok = c.slot.take()
			}
			c.state.Store(uint32(ChannelClosed))
			futexOr(c.fx).WakeAll(&c.state)
			if ok {
				return drop(v)
			}
			return nil
		default:
			// A Send, Receive or another Close is mid-transition; it
			// finishes without blocking.
			delay(&spins)
		}
	}
}

func (c *Channel[T]) stateError(op string) error {
	s := c.State()
	if s == ChannelClosed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%w: %s on %s channel", ErrProtocolViolation, op, s)
}

func drop[T any](v T) error {
	if cl, ok := any(v).(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
