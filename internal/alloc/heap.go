// Package alloc provides the kernel's constrained-memory allocator: a
// synchronous first-fit free list over a fixed byte arena, fronted by an
// asynchronous layer that turns exhaustion into a suspension point instead
// of a failure.
package alloc

// span is one contiguous free extent. The free list is kept sorted by
// offset so adjacent extents coalesce on release.
type span struct {
	off, size int
	next      *span
}

// heap is the synchronous free-list allocator. It is not safe for
// concurrent use; AsyncHeap serializes access through its try-lock.
type heap struct {
	size      int
	free      *span
	freeBytes int
}

func newHeap(size int) *heap {
	return &heap{
		size:      size,
		free:      &span{off: 0, size: size},
		freeBytes: size,
	}
}

// allocate carves an aligned extent of exactly size bytes out of the first
// span that can hold it. The returned offset is aligned; the caller must
// release the same (off, size) pair. Alignment padding stays on the free
// list.
func (h *heap) allocate(size, align int) (int, bool) {
	prev := (*span)(nil)
	for s := h.free; s != nil; prev, s = s, s.next {
		aligned := (s.off + align - 1) &^ (align - 1)
		pad := aligned - s.off
		if pad+size > s.size {
			continue
		}

		tail := s.size - pad - size
		switch {
		case pad == 0 && tail == 0:
			// Exact fit: drop the span.
			if prev == nil {
				h.free = s.next
			} else {
				prev.next = s.next
			}
		case pad == 0:
			s.off += size
			s.size = tail
		case tail == 0:
			s.size = pad
		default:
			// Split around the carved extent.
			after := &span{off: aligned + size, size: tail, next: s.next}
			s.size = pad
			s.next = after
		}
		h.freeBytes -= size
		return aligned, true
	}
	return 0, false
}

// release returns an extent to the free list, coalescing with neighbors.
func (h *heap) release(off, size int) {
	h.freeBytes += size

	prev := (*span)(nil)
	s := h.free
	for s != nil && s.off < off {
		prev, s = s, s.next
	}

	n := &span{off: off, size: size, next: s}
	if prev == nil {
		h.free = n
	} else {
		prev.next = n
	}

	// Merge forward, then backward.
	if s != nil && n.off+n.size == s.off {
		n.size += s.size
		n.next = s.next
	}
	if prev != nil && prev.off+prev.size == n.off {
		prev.size += n.size
		prev.next = n.next
	}
}
