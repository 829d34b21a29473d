// Package waitq provides the wait primitives used by every suspension point
// in the kernel: an intrusive FIFO queue of waiters and a single-slot cell.
//
// A Waiter is embedded in the suspended future's own state and is linked
// into at most one queue at a time. Waking pops from the front and invokes
// the stored waker; cancelling a suspended future unlinks its waiter
// synchronously, so a queue never references dead state. All operations are
// bounded critical sections and never suspend, which makes them safe to call
// from interrupt-like wake paths.
package waitq

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Wait when the queue has been closed.
var ErrClosed = errors.New("waitq: closed")

// Waker marks a suspended task runnable again. Implementations must be safe
// to call from any goroutine and must not block.
type Waker interface {
	Wake()
}

// Waiter is one suspended operation. The zero value is ready to use; set the
// waker before the first Wait. A Waiter must not be copied while linked.
type Waiter struct {
	next, prev *Waiter
	// owner is atomic so Cancel and Linked can read it without the queue
	// lock while a concurrent pop clears it under the lock.
	owner  atomic.Pointer[Queue]
	waker  Waker
	woken  bool
	closed bool
}

// SetWaker records the waker invoked when this waiter is popped. It must be
// called while the waiter is unlinked (before Wait, or after a wake).
func (w *Waiter) SetWaker(wk Waker) { w.waker = wk }

// Linked reports whether the waiter is currently parked on a queue. Owned
// by the polling task; a waiter that reads true may still be popped by a
// concurrent wake.
func (w *Waiter) Linked() bool { return w.owner.Load() != nil }

// Woken reports whether the waiter has been popped and woken since the last
// Wait. It is cleared by the next Wait.
func (w *Waiter) Woken() bool { return w.woken }

// Closed reports whether the waiter was released by a queue close rather
// than a wake.
func (w *Waiter) Closed() bool { return w.closed }

// Queue is an intrusive FIFO of waiters guarded by a non-suspending lock.
// Push and pop are O(1); wake order is registration order.
type Queue struct {
	mu     sync.Mutex
	head   *Waiter
	tail   *Waiter
	closed bool
}

// Wait links w at the tail of the queue. It is a no-op if w is already
// parked on this queue, and a logic error (panic) if w is linked elsewhere.
// Returns ErrClosed, without linking, once the queue is closed.
func (q *Queue) Wait(w *Waiter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if other := w.owner.Load(); other == q {
		return nil
	} else if other != nil {
		panic(fmt.Sprintf("waitq: waiter already linked on another queue (%p)", other))
	}
	if q.closed {
		w.closed = true
		return ErrClosed
	}
	w.woken = false
	w.closed = false
	w.owner.Store(q)
	w.prev = q.tail
	w.next = nil
	if q.tail != nil {
		q.tail.next = w
	} else {
		q.head = w
	}
	q.tail = w
	return nil
}

// Cancel unlinks w from whatever queue it is parked on. It is idempotent and
// safe to call concurrently with wakes: a waiter that was already popped is
// left alone, so it is never woken twice and never double-unlinked.
func (w *Waiter) Cancel() {
	q := w.owner.Load()
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.owner.Load() != q {
		// Raced with a wake; the pop already unlinked us.
		return
	}
	q.unlink(w)
}

// unlink removes w from the list. Caller holds q.mu; w.owner must be q.
func (q *Queue) unlink(w *Waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		q.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		q.tail = w.prev
	}
	w.next = nil
	w.prev = nil
	w.owner.Store(nil)
}

// WakeOne pops the head waiter and invokes its waker. Returns false if the
// queue was empty. The waker runs outside the queue lock.
func (q *Queue) WakeOne() bool {
	q.mu.Lock()
	w := q.head
	if w == nil {
		q.mu.Unlock()
		return false
	}
	q.unlink(w)
	w.woken = true
	wk := w.waker
	q.mu.Unlock()
	if wk != nil {
		wk.Wake()
	}
	return true
}

// WakeAll pops and wakes every waiter, returning the count popped. Waiters
// without a waker are still unlinked, marked woken, and counted.
func (q *Queue) WakeAll() int {
	q.mu.Lock()
	n := 0
	var wakers []Waker
	for w := q.head; w != nil; {
		next := w.next
		q.unlink(w)
		w.woken = true
		n++
		if w.waker != nil {
			wakers = append(wakers, w.waker)
		}
		w = next
	}
	q.mu.Unlock()
	for _, wk := range wakers {
		wk.Wake()
	}
	return n
}

// Close marks the queue closed and releases every parked waiter with the
// closed flag set. Later Wait calls fail with ErrClosed. Returns the number
// of waiters released.
func (q *Queue) Close() int {
	q.mu.Lock()
	q.closed = true
	n := 0
	var wakers []Waker
	for w := q.head; w != nil; {
		next := w.next
		q.unlink(w)
		w.woken = true
		w.closed = true
		n++
		if w.waker != nil {
			wakers = append(wakers, w.waker)
		}
		w = next
	}
	q.mu.Unlock()
	for _, wk := range wakers {
		wk.Wake()
	}
	return n
}

// Len reports the number of currently linked waiters. Intended for tests and
// diagnostics; the value is stale the moment the lock is released.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for w := q.head; w != nil; w = w.next {
		n++
	}
	return n
}
