package comms

import (
	"fmt"
	"sync/atomic"

	"mnemos/internal/waitq"
)

// mpscCell is one slot of the bounded queue. The sequence number encodes the
// slot's state relative to the cursors: seq == pos means free for the
// producer claiming position pos, seq == pos+1 means the value is visible to
// the consumer.
type mpscCell[T any] struct {
	seq atomic.Uint64
	val T
}

// Chan is a bounded multi-producer single-consumer queue. Producers claim a
// slot with a compare-and-swap on the enqueue cursor and then publish the
// value by bumping the slot's sequence number; delivery order is claim
// order, not the order send futures were created in. The consumer side is
// strictly single-task.
//
// Construct with NewChan; use the returned handles, not the Chan directly.
type Chan[T any] struct {
	cells   []mpscCell[T]
	enqueue atomic.Uint64
	dequeue atomic.Uint64

	closed    atomic.Bool
	producers atomic.Int32

	sendWait waitq.Queue
	recvWait waitq.Cell
}

// NewChan creates a channel with the given capacity and returns its first
// producer and its only consumer. Capacity must be at least one.
func NewChan[T any](capacity int) (*Producer[T], *Consumer[T]) {
	if capacity < 1 {
		panic(fmt.Sprintf("comms: channel capacity must be at least 1, got %d", capacity))
	}
	ch := &Chan[T]{cells: make([]mpscCell[T], capacity)}
	for i := range ch.cells {
		ch.cells[i].seq.Store(uint64(i))
	}
	ch.producers.Store(1)
	return &Producer[T]{ch: ch}, &Consumer[T]{ch: ch}
}

// Cap returns the channel capacity.
func (ch *Chan[T]) Cap() int { return len(ch.cells) }

// Len returns the number of queued messages. Diagnostic; stale immediately.
func (ch *Chan[T]) Len() int {
	return int(ch.enqueue.Load() - ch.dequeue.Load())
}

func (ch *Chan[T]) trySend(v T) error {
	if ch.closed.Load() {
		return ErrClosed
	}
	n := uint64(len(ch.cells))
	for {
		pos := ch.enqueue.Load()
		cell := &ch.cells[pos%n]
		switch diff := int64(cell.seq.Load()) - int64(pos); {
		case diff == 0:
			if !ch.enqueue.CompareAndSwap(pos, pos+1) {
				continue // lost the claim race, retry
			}
			cell.val = v
			cell.seq.Store(pos + 1)
			ch.recvWait.Wake()
			return nil
		case diff < 0:
			return ErrFull
		default:
			// Another producer claimed pos already; reload the cursor.
		}
	}
}

func (ch *Chan[T]) tryRecv() (T, error) {
	n := uint64(len(ch.cells))
	for {
		pos := ch.dequeue.Load()
		cell := &ch.cells[pos%n]
		switch diff := int64(cell.seq.Load()) - int64(pos+1); {
		case diff == 0:
			// Single consumer: no rival for this slot, a plain bump works,
			// but the cursor stays atomic so Len is safe anywhere.
			ch.dequeue.Store(pos + 1)
			v := cell.val
			var zero T
			cell.val = zero
			cell.seq.Store(pos + n)
			ch.sendWait.WakeOne()
			return v, nil
		case diff < 0:
			var zero T
			if ch.closed.Load() {
				// Closed and drained.
				return zero, ErrClosed
			}
			return zero, ErrEmpty
		default:
			// A producer claimed the slot but has not published yet; treat
			// as empty rather than spin on the publish.
			var zero T
			return zero, ErrEmpty
		}
	}
}

// close makes the channel terminal. Queued messages stay receivable;
// producer waiters are released with the closed condition and the consumer
// is woken so it can drain.
func (ch *Chan[T]) close() {
	if ch.closed.Swap(true) {
		return
	}
	ch.sendWait.Close()
	ch.recvWait.Wake()
}

// Producer is a clonable sending handle. The channel closes when every
// producer has been closed.
type Producer[T any] struct {
	ch     *Chan[T]
	closed atomic.Bool
}

// Clone adds an independent producer handle.
func (p *Producer[T]) Clone() *Producer[T] {
	if p.closed.Load() {
		panic("comms: clone of closed producer")
	}
	if p.ch.producers.Add(1) <= 1 {
		panic("comms: clone raced with channel close")
	}
	return &Producer[T]{ch: p.ch}
}

// Close releases this handle. When the last producer closes, the channel
// closes. Idempotent per handle.
func (p *Producer[T]) Close() {
	if p.closed.Swap(true) {
		return
	}
	if p.ch.producers.Add(-1) == 0 {
		p.ch.close()
	}
}

// TrySend enqueues v without suspending. Returns ErrFull when no slot is
// free and ErrClosed once the channel is closed.
func (p *Producer[T]) TrySend(v T) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.ch.trySend(v)
}

// Send returns a future that suspends until v is enqueued or the channel
// closes.
func (p *Producer[T]) Send(v T) *SendFuture[T] {
	return &SendFuture[T]{p: p, val: v}
}

// Consumer is the single receiving handle.
type Consumer[T any] struct {
	ch *Chan[T]
}

// TryRecv dequeues without suspending. Returns ErrEmpty when nothing is
// queued, and ErrClosed only after the queue has drained.
func (c *Consumer[T]) TryRecv() (T, error) {
	return c.ch.tryRecv()
}

// Recv returns a future that suspends until a message arrives or the
// channel closes and drains.
func (c *Consumer[T]) Recv() *RecvFuture[T] {
	return &RecvFuture[T]{c: c}
}

// Len returns the number of queued messages. Diagnostic; stale immediately.
func (c *Consumer[T]) Len() int { return c.ch.Len() }

// Close closes the channel from the consumer side. Parked senders are
// released with the closed condition.
func (c *Consumer[T]) Close() {
	c.ch.close()
}

// SendFuture is a pending send. Poll with the owning task's waker.
type SendFuture[T any] struct {
	p    *Producer[T]
	val  T
	w    waitq.Waiter
	sent bool
}

// Poll attempts the send. (true, nil) once the value is enqueued,
// (true, ErrClosed) if the channel closed first, (false, nil) while
// pending.
func (f *SendFuture[T]) Poll(wk waitq.Waker) (bool, error) {
	if f.sent {
		return true, nil
	}
	switch err := f.p.TrySend(f.val); err {
	case nil:
		f.w.Cancel()
		f.sent = true
		return true, nil
	case ErrClosed:
		f.w.Cancel()
		return true, ErrClosed
	}
	// Only touch the waker while unlinked; a linked waiter may be read by
	// a concurrent wake.
	if !f.w.Linked() {
		f.w.SetWaker(wk)
		if err := f.p.ch.sendWait.Wait(&f.w); err != nil {
			return true, ErrClosed
		}
	}
	return false, nil
}

// Cancel unlinks the future from the send wait queue. A completed send
// stays completed.
func (f *SendFuture[T]) Cancel() { f.w.Cancel() }

// RecvFuture is a pending receive. Poll with the owning task's waker.
type RecvFuture[T any] struct {
	c *Consumer[T]
}

// Poll attempts the receive. (v, true, nil) on delivery,
// (zero, true, ErrClosed) once the channel is closed and drained,
// (zero, false, nil) while pending.
func (f *RecvFuture[T]) Poll(wk waitq.Waker) (T, bool, error) {
	v, err := f.c.TryRecv()
	switch err {
	case nil:
		return v, true, nil
	case ErrClosed:
		var zero T
		return zero, true, ErrClosed
	}
	if err := f.c.ch.recvWait.Register(wk); err != nil {
		var zero T
		return zero, true, ErrClosed
	}
	var zero T
	return zero, false, nil
}

// Cancel clears the consumer-side registration.
func (f *RecvFuture[T]) Cancel() { f.c.ch.recvWait.Unregister() }
