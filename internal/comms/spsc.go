package comms

import (
	"fmt"
	"sync/atomic"

	"mnemos/internal/waitq"
)

// Ring is a bounded single-producer single-consumer ring. Cursors only ever
// advance, so head == tail means empty and tail-head == capacity means full.
// Each side has exactly one task; cloning a handle is a contract violation,
// so neither handle offers one.
//
// Construct with NewRing; use the returned handles.
type Ring[T any] struct {
	buf    []T
	head   atomic.Uint64 // next slot to read, advanced by the receiver
	tail   atomic.Uint64 // next slot to write, advanced by the sender
	closed atomic.Bool

	sendWait waitq.Cell
	recvWait waitq.Cell
}

// NewRing creates a ring of the given capacity and returns its two handles.
// Capacity must be at least one.
func NewRing[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		panic(fmt.Sprintf("comms: ring capacity must be at least 1, got %d", capacity))
	}
	r := &Ring[T]{buf: make([]T, capacity)}
	return &Sender[T]{r: r}, &Receiver[T]{r: r}
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of queued values. Diagnostic; stale immediately.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

func (r *Ring[T]) close() {
	if r.closed.Swap(true) {
		return
	}
	// The receiver still drains, so its cell stays open; the sender side is
	// done for good.
	r.sendWait.Close()
	r.recvWait.Wake()
}

// Sender is the ring's single producing handle.
type Sender[T any] struct {
	r *Ring[T]
}

// TrySend enqueues v without suspending. Returns ErrFull when the ring is
// full and ErrClosed once the ring is closed.
func (s *Sender[T]) TrySend(v T) error {
	r := s.r
	if r.closed.Load() {
		return ErrClosed
	}
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		return ErrFull
	}
	r.buf[tail%uint64(len(r.buf))] = v
	r.tail.Store(tail + 1)
	r.recvWait.Wake()
	return nil
}

// Send returns a future that suspends until v is enqueued or the ring
// closes.
func (s *Sender[T]) Send(v T) *RingSend[T] {
	return &RingSend[T]{s: s, val: v}
}

// Close closes the ring. Queued values stay receivable.
func (s *Sender[T]) Close() { s.r.close() }

// Receiver is the ring's single consuming handle.
type Receiver[T any] struct {
	r *Ring[T]
}

// TryRecv dequeues without suspending. Returns ErrEmpty when nothing is
// queued, and ErrClosed only after the ring has drained.
func (rc *Receiver[T]) TryRecv() (T, error) {
	r := rc.r
	head := r.head.Load()
	if head == r.tail.Load() {
		var zero T
		if r.closed.Load() {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}
	i := head % uint64(len(r.buf))
	v := r.buf[i]
	var zero T
	r.buf[i] = zero
	r.head.Store(head + 1)
	r.sendWait.Wake()
	return v, nil
}

// Recv returns a future that suspends until a value arrives or the ring
// closes and drains.
func (rc *Receiver[T]) Recv() *RingRecv[T] {
	return &RingRecv[T]{rc: rc}
}

// Close closes the ring from the receiving side. A parked sender is
// released with the closed condition.
func (rc *Receiver[T]) Close() { rc.r.close() }

// RingSend is a pending ring send. Poll with the owning task's waker.
type RingSend[T any] struct {
	s    *Sender[T]
	val  T
	sent bool
}

// Poll attempts the send. Same contract as SendFuture.Poll.
func (f *RingSend[T]) Poll(wk waitq.Waker) (bool, error) {
	if f.sent {
		return true, nil
	}
	switch err := f.s.TrySend(f.val); err {
	case nil:
		f.sent = true
		return true, nil
	case ErrClosed:
		return true, ErrClosed
	}
	if err := f.s.r.sendWait.Register(wk); err != nil {
		return true, ErrClosed
	}
	return false, nil
}

// Cancel clears the sender-side registration.
func (f *RingSend[T]) Cancel() { f.s.r.sendWait.Unregister() }

// RingRecv is a pending ring receive. Poll with the owning task's waker.
type RingRecv[T any] struct {
	rc *Receiver[T]
}

// Poll attempts the receive. Same contract as RecvFuture.Poll.
func (f *RingRecv[T]) Poll(wk waitq.Waker) (T, bool, error) {
	v, err := f.rc.TryRecv()
	switch err {
	case nil:
		return v, true, nil
	case ErrClosed:
		var zero T
		return zero, true, ErrClosed
	}
	if err := f.rc.r.recvWait.Register(wk); err != nil {
		var zero T
		return zero, true, ErrClosed
	}
	var zero T
	return zero, false, nil
}

// Cancel clears the receiver-side registration.
func (f *RingRecv[T]) Cancel() { f.rc.r.recvWait.Unregister() }
