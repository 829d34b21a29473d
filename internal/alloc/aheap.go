package alloc

import (
	"fmt"
	"sync/atomic"

	"mnemos/internal/waitq"
)

const (
	heapIdle uint32 = iota
	heapLocked
)

// AsyncHeap wraps the free-list heap with the kernel's asynchronous
// allocation discipline:
//
//   - Allocation requests that cannot be satisfied immediately park on the
//     OOM wait queue and are retried when memory is freed. Exhaustion is a
//     scheduling event, never an error.
//   - After any failed allocation, further allocations are inhibited until
//     the next free. This keeps waiters FIFO: a large request at the head
//     of the queue is not starved by small requests that would still fit.
//   - A release that cannot take the heap lock (a drop racing allocator
//     work) pushes its extent onto a lock-free multi-producer stack, which
//     is drained at the start of every allocation attempt and by Reclaim.
//     No freed extent is ever lost.
type AsyncHeap struct {
	arena []byte
	state atomic.Uint32
	heap  *heap // guarded by state

	oomWait  waitq.Queue
	inhibit  atomic.Bool
	anyFrees atomic.Bool
	deferred atomic.Pointer[deferredFree]

	allocated atomic.Int64
	highWater atomic.Int64
	allocs    atomic.Uint64
	ooms      atomic.Uint64
	frees     atomic.Uint64
	deferrals atomic.Uint64
}

// deferredFree is a pending release carried on the lock-free stack.
type deferredFree struct {
	off, size int
	next      *deferredFree
}

// New creates an async heap managing a fresh arena of the given size.
func New(size int) *AsyncHeap {
	if size <= 0 {
		panic(fmt.Sprintf("alloc: arena size must be positive, got %d", size))
	}
	return &AsyncHeap{
		arena: make([]byte, size),
		heap:  newHeap(size),
	}
}

// Size returns the total arena size in bytes.
func (h *AsyncHeap) Size() int { return len(h.arena) }

// FreeBytes returns the bytes no longer allocated. Extents parked on the
// deferred-free stack are included; they cannot be handed out again until
// Reclaim merges them back into the arena.
func (h *AsyncHeap) FreeBytes() int {
	return len(h.arena) - int(h.allocated.Load())
}

func (h *AsyncHeap) tryLock() bool {
	return h.state.CompareAndSwap(heapIdle, heapLocked)
}

func (h *AsyncHeap) unlock() {
	h.state.Store(heapIdle)
}

func checkLayout(size, align int) {
	if size <= 0 {
		panic(fmt.Sprintf("alloc: zero or negative allocation size %d", size))
	}
	if align <= 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("alloc: alignment %d is not a power of two", align))
	}
}

// TryAllocate attempts a synchronous allocation. It fails when the heap is
// inhibited, the lock is contended, or the arena has no fitting extent.
// Intended for init-time setup and for the allocation future's poll; tasks
// should use Allocate.
func (h *AsyncHeap) TryAllocate(size, align int) (*Buf, bool) {
	checkLayout(size, align)
	if h.inhibit.Load() {
		return nil, false
	}
	if !h.tryLock() {
		return nil, false
	}
	h.drainDeferredLocked()
	off, ok := h.heap.allocate(size, align)
	h.unlock()

	if !ok {
		// Out of memory: inhibit until the next free so waiters stay FIFO.
		h.inhibit.Store(true)
		h.ooms.Add(1)
		return nil, false
	}

	h.allocs.Add(1)
	live := h.allocated.Add(int64(size))
	if hw := h.highWater.Load(); live > hw {
		h.highWater.CompareAndSwap(hw, live)
	}
	return &Buf{h: h, off: off, size: size}, true
}

// Allocate returns a future that resolves to an owned buffer of exactly
// size bytes at the given alignment. The future stays pending across
// spurious wakes; it never fails.
func (h *AsyncHeap) Allocate(size, align int) *AllocFuture {
	checkLayout(size, align)
	return &AllocFuture{h: h, size: size, align: align}
}

// release returns an extent to the arena, taking the deferred path when the
// heap lock is unavailable. Direct frees wake one OOM waiter; the rest are
// caught by Reclaim.
func (h *AsyncHeap) release(off, size int) {
	h.frees.Add(1)
	h.allocated.Add(int64(-size))

	if h.tryLock() {
		h.heap.release(off, size)
		h.unlock()
		h.anyFrees.Store(true)
		h.inhibit.Store(false)
		h.oomWait.WakeOne()
		return
	}

	h.deferrals.Add(1)
	n := &deferredFree{off: off, size: size}
	for {
		head := h.deferred.Load()
		n.next = head
		if h.deferred.CompareAndSwap(head, n) {
			break
		}
	}
	h.anyFrees.Store(true)
}

// drainDeferredLocked moves every pending deferred free into the free list.
// Caller holds the heap lock.
func (h *AsyncHeap) drainDeferredLocked() {
	n := h.deferred.Swap(nil)
	for n != nil {
		h.heap.release(n.off, n.size)
		n = n.next
	}
}

// Reclaim drains the deferred-free stack and, if anything has been freed
// since the last call, clears the inhibit flag and wakes every parked
// allocation so it can retry. The kernel calls this once per tick.
func (h *AsyncHeap) Reclaim() {
	if h.tryLock() {
		h.drainDeferredLocked()
		h.unlock()
	}
	if h.anyFrees.Swap(false) {
		h.inhibit.Store(false)
		h.oomWait.WakeAll()
	}
}

// AllocFuture is a pending allocation. Poll it with the owning task's
// waker; Cancel unlinks it from the OOM queue if it is parked there.
type AllocFuture struct {
	h     *AsyncHeap
	size  int
	align int
	w     waitq.Waiter
	buf   *Buf
}

// Poll attempts the allocation, parking on the OOM queue on failure.
// Returns the buffer and true once the allocation succeeds.
func (f *AllocFuture) Poll(wk waitq.Waker) (*Buf, bool) {
	if f.buf != nil {
		return f.buf, true
	}
	if b, ok := f.h.TryAllocate(f.size, f.align); ok {
		f.w.Cancel()
		f.buf = b
		return b, true
	}
	// Only touch the waker while unlinked; a linked waiter may be read by
	// a concurrent wake.
	if !f.w.Linked() {
		f.w.SetWaker(wk)
		_ = f.h.oomWait.Wait(&f.w)
	}
	return nil, false
}

// Cancel releases the future's waiter registration. Safe to call in any
// state; a resolved future keeps its buffer.
func (f *AllocFuture) Cancel() { f.w.Cancel() }
