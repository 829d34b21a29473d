package alloc

import "testing"

type countWaker struct{ n int }

func (w *countWaker) Wake() { w.n++ }

func TestTryAllocateAndRelease(t *testing.T) {
	h := New(1024)
	before := h.FreeBytes()

	b, ok := h.TryAllocate(128, 8)
	if !ok {
		t.Fatalf("TryAllocate() ok = false, want true")
	}
	if got := len(b.Bytes()); got != 128 {
		t.Fatalf("len(Bytes()) = %d, want 128", got)
	}
	if got := h.FreeBytes(); got != before-128 {
		t.Fatalf("FreeBytes() = %d, want %d", got, before-128)
	}

	b.Release()
	if got := h.FreeBytes(); got != before {
		t.Fatalf("FreeBytes() after release = %d, want %d", got, before)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := New(256)
	b, _ := h.TryAllocate(64, 8)
	b.Release()
	b.Release()
	if got := h.FreeBytes(); got != 256 {
		t.Fatalf("FreeBytes() = %d, want 256 (double release must not double-free)", got)
	}
	if s := h.Stats(); s.FreeCount != 1 {
		t.Fatalf("FreeCount = %d, want 1", s.FreeCount)
	}
}

func TestZeroSizePanics(t *testing.T) {
	h := New(64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero-size allocation")
		}
	}()
	h.TryAllocate(0, 8)
}

func TestBadAlignmentPanics(t *testing.T) {
	h := New(64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-power-of-two alignment")
		}
	}()
	h.TryAllocate(8, 3)
}

func TestAllocateSuspendsUntilFree(t *testing.T) {
	// Arena sized so exactly one allocation of 64 fits.
	h := New(64)
	var wk1, wk2 countWaker

	f1 := h.Allocate(64, 1)
	b1, ok := f1.Poll(&wk1)
	if !ok {
		t.Fatalf("first allocation did not resolve immediately")
	}

	f2 := h.Allocate(64, 1)
	if _, ok := f2.Poll(&wk2); ok {
		t.Fatalf("second allocation resolved with no memory available")
	}

	// Freeing the first buffer must wake the parked request.
	b1.Release()
	if wk2.n == 0 {
		t.Fatalf("parked allocation was not woken by the free")
	}
	b2, ok := f2.Poll(&wk2)
	if !ok {
		t.Fatalf("second allocation still pending after free")
	}
	if got := len(b2.Bytes()); got != 64 {
		t.Fatalf("len(Bytes()) = %d, want 64", got)
	}
}

func TestInhibitBlocksSmallerRequests(t *testing.T) {
	h := New(64)
	b, _ := h.TryAllocate(48, 1)

	var wk countWaker
	f := h.Allocate(32, 1)
	if _, ok := f.Poll(&wk); ok {
		t.Fatalf("oversized allocation resolved")
	}

	// The heap is now inhibited; even a request that would fit must wait
	// its turn behind the parked one.
	if _, ok := h.TryAllocate(8, 1); ok {
		t.Fatalf("TryAllocate succeeded while inhibited")
	}

	b.Release()
	if _, ok := h.TryAllocate(8, 1); !ok {
		t.Fatalf("TryAllocate failed after inhibit cleared")
	}
	f.Cancel()
}

func TestDeferredFreePath(t *testing.T) {
	h := New(256)
	before := h.FreeBytes()
	b, _ := h.TryAllocate(64, 8)

	// Hold the heap lock so the release is forced onto the deferred stack.
	if !h.tryLock() {
		t.Fatalf("could not take heap lock")
	}
	b.Release()
	if s := h.Stats(); s.DeferredFreeCount != 1 {
		t.Fatalf("DeferredFreeCount = %d, want 1", s.DeferredFreeCount)
	}
	h.unlock()

	// The bookkeeping already reflects the free; the extent itself comes
	// back on Reclaim.
	if got := h.FreeBytes(); got != before {
		t.Fatalf("FreeBytes() = %d, want %d", got, before)
	}
	h.Reclaim()
	if _, ok := h.TryAllocate(256, 1); !ok {
		t.Fatalf("full-arena allocation failed after reclaim; deferred free lost")
	}
}

func TestReclaimWakesAllWaiters(t *testing.T) {
	h := New(64)
	b, _ := h.TryAllocate(64, 1)

	var wk1, wk2 countWaker
	f1 := h.Allocate(16, 1)
	f2 := h.Allocate(16, 1)
	f1.Poll(&wk1)
	f2.Poll(&wk2)

	// Force the deferred path, then reclaim.
	if !h.tryLock() {
		t.Fatalf("could not take heap lock")
	}
	b.Release()
	h.unlock()
	h.Reclaim()

	if wk1.n == 0 || wk2.n == 0 {
		t.Fatalf("wake counts = %d,%d, want both > 0", wk1.n, wk2.n)
	}
	if _, ok := f1.Poll(&wk1); !ok {
		t.Fatalf("first parked allocation still pending after reclaim")
	}
	if _, ok := f2.Poll(&wk2); !ok {
		t.Fatalf("second parked allocation still pending after reclaim")
	}
}

func TestAllocFutureCancelUnlinks(t *testing.T) {
	h := New(32)
	b, _ := h.TryAllocate(32, 1)

	var wk countWaker
	f := h.Allocate(8, 1)
	f.Poll(&wk)
	f.Cancel()

	// The cancelled future must not be woken by the free.
	b.Release()
	h.Reclaim()
	if wk.n != 0 {
		t.Fatalf("cancelled allocation was woken %d times", wk.n)
	}
}

func TestSharedRefcount(t *testing.T) {
	h := New(128)
	b, _ := h.TryAllocate(32, 8)
	s := b.Share()
	s2 := s.Clone()

	s.Release()
	if got := h.FreeBytes(); got != 96 {
		t.Fatalf("FreeBytes() = %d, want 96 (a clone is still live)", got)
	}
	s2.Release()
	if got := h.FreeBytes(); got != 128 {
		t.Fatalf("FreeBytes() = %d, want 128 after last clone released", got)
	}
}

func TestStatsSnapshot(t *testing.T) {
	h := New(512)
	b1, _ := h.TryAllocate(100, 4)
	b2, _ := h.TryAllocate(200, 4)
	b1.Release()

	s := h.Stats()
	if s.AllocCount != 2 || s.FreeCount != 1 {
		t.Fatalf("counts = %d allocs, %d frees, want 2, 1", s.AllocCount, s.FreeCount)
	}
	if s.LiveAllocs() != 1 {
		t.Fatalf("LiveAllocs() = %d, want 1", s.LiveAllocs())
	}
	if s.HighWaterBytes != 300 {
		t.Fatalf("HighWaterBytes = %d, want 300", s.HighWaterBytes)
	}
	if s.FreeBytes() != 512-200 {
		t.Fatalf("FreeBytes() = %d, want %d", s.FreeBytes(), 512-200)
	}
	b2.Release()
}
