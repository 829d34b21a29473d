package alloc

// Stats is a single-point-in-time snapshot of heap metrics. Taking one
// snapshot keeps derived values (free bytes, live allocations) from
// drifting between individually loaded counters.
type Stats struct {
	// TotalBytes is the arena size, including allocated space.
	TotalBytes int
	// AllocatedBytes is the memory currently allocated.
	AllocatedBytes int
	// HighWaterBytes is the largest AllocatedBytes ever observed.
	HighWaterBytes int
	// AllocCount is the number of allocation attempts that succeeded.
	AllocCount uint64
	// OOMCount is the number of attempts that failed for lack of space.
	OOMCount uint64
	// FreeCount is the number of releases, on either path.
	FreeCount uint64
	// DeferredFreeCount is the number of releases that took the deferred
	// path because the heap lock was contended.
	DeferredFreeCount uint64
	// Inhibited reports whether allocation is currently inhibited after an
	// out-of-memory attempt.
	Inhibited bool
}

// FreeBytes returns the bytes currently available.
func (s Stats) FreeBytes() int { return s.TotalBytes - s.AllocatedBytes }

// LiveAllocs returns the number of allocations not yet freed.
func (s Stats) LiveAllocs() uint64 { return s.AllocCount - s.FreeCount }

// AttemptCount returns the total number of allocation attempts.
func (s Stats) AttemptCount() uint64 { return s.AllocCount + s.OOMCount }

// Stats returns a snapshot of the heap's counters.
func (h *AsyncHeap) Stats() Stats {
	return Stats{
		TotalBytes:        len(h.arena),
		AllocatedBytes:    int(h.allocated.Load()),
		HighWaterBytes:    int(h.highWater.Load()),
		AllocCount:        h.allocs.Load(),
		OOMCount:          h.ooms.Load(),
		FreeCount:         h.frees.Load(),
		DeferredFreeCount: h.deferrals.Load(),
		Inhibited:         h.inhibit.Load(),
	}
}
