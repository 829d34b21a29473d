package alloc

import "sync/atomic"

// Buf is an owning handle to an arena extent. It is released exactly once:
// either directly or, when the heap lock is contended at release time, via
// the deferred-free path. Using a Buf after Release is a caller error.
type Buf struct {
	h         *AsyncHeap
	off, size int
	released  atomic.Bool
}

// Bytes returns the extent as a mutable slice view into the arena.
func (b *Buf) Bytes() []byte { return b.h.arena[b.off : b.off+b.size] }

// Len returns the extent size in bytes.
func (b *Buf) Len() int { return b.size }

// Release returns the extent to the arena. Safe to call more than once;
// only the first call frees.
func (b *Buf) Release() {
	if b == nil || b.released.Swap(true) {
		return
	}
	b.h.release(b.off, b.size)
}

// Share converts the owning handle into a reference-counted one. The Buf
// must not be used directly afterwards.
func (b *Buf) Share() *Shared {
	s := &Shared{buf: b}
	s.refs.Store(1)
	return s
}

// Shared is a reference-counted arena buffer. Clones share the extent; the
// extent is released when the last clone is.
type Shared struct {
	buf  *Buf
	refs atomic.Int32
}

// Bytes returns the shared extent.
func (s *Shared) Bytes() []byte { return s.buf.Bytes() }

// Len returns the extent size in bytes.
func (s *Shared) Len() int { return s.buf.Len() }

// Clone adds a reference.
func (s *Shared) Clone() *Shared {
	if s.refs.Add(1) <= 1 {
		panic("alloc: clone of released shared buffer")
	}
	return s
}

// Release drops one reference, freeing the extent when the count reaches
// zero.
func (s *Shared) Release() {
	if s == nil {
		return
	}
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.buf.Release()
	case n < 0:
		panic("alloc: release of already-released shared buffer")
	}
}
