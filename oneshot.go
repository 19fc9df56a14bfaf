package parkx

import (
	"fmt"
	"sync/atomic"
)

type oneshot[T any] struct {
	ch     Channel[T]
	parker Parker
}

// Sender is the sending half of a single-use channel created by NewOneshot.
type Sender[T any] struct {
	c    *oneshot[T]
	used atomic.Bool
}

// Receiver is the receiving half of a single-use channel created by
// NewOneshot. It must be used by one goroutine: Recv parks that goroutine.
type Receiver[T any] struct {
	c    *oneshot[T]
	used atomic.Bool
}

// NewOneshot returns the two halves of a channel that carries exactly one
// value. Each half performs its operation once; using a half again returns
// ErrProtocolViolation.
//
//	tx, rx := parkx.NewOneshot[string]()
//	go func() { _ = tx.Send("hello, world") }()
//	msg, err := rx.Recv()
func NewOneshot[T any]() (*Sender[T], *Receiver[T]) {
	c := &oneshot[T]{}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// Send hands v to the receiver and unparks it.
func (s *Sender[T]) Send(v T) error {
	if s.used.Swap(true) {
		return fmt.Errorf("%w: sender already used", ErrProtocolViolation)
	}
	if err := s.c.ch.Send(v); err != nil {
		return err
	}
	s.c.parker.Unpark()
	return nil
}

// IsReady reports whether the value has been sent and not yet received.
func (r *Receiver[T]) IsReady() bool {
	return r.c.ch.IsReady()
}

// Receive takes the value without blocking. A failed attempt (value not yet
// sent) does not use up the receiver.
func (r *Receiver[T]) Receive() (T, error) {
	var zero T
	if r.used.Load() {
		return zero, fmt.Errorf("%w: receiver already used", ErrProtocolViolation)
	}
	v, err := r.c.ch.Receive()
	if err != nil {
		return zero, err
	}
	r.used.Store(true)
	return v, nil
}

// Recv parks the calling goroutine until the value is sent, then takes it.
func (r *Receiver[T]) Recv() (T, error) {
	if r.used.Load() {
		var zero T
		return zero, fmt.Errorf("%w: receiver already used", ErrProtocolViolation)
	}
	for !r.c.ch.IsReady() {
		if r.c.ch.State() == ChannelClosed {
			var zero T
			return zero, ErrClosed
		}
		r.c.parker.Park()
	}
	return r.Receive()
}

// Close drops a value that was sent but never received (see Channel.Close)
// and unparks a receiver blocked in Recv.
func (r *Receiver[T]) Close() error {
	err := r.c.ch.Close()
	r.c.parker.Unpark()
	return err
}
