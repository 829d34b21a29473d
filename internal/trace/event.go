package trace

import (
	"sync/atomic"
	"time"
)

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindTickBegin marks the start of a kernel tick.
	KindTickBegin Kind = iota + 1
	// KindTickEnd marks the end of a kernel tick.
	KindTickEnd
	// KindPoint represents an instant event.
	KindPoint
	// KindWake is park/wake noise, emitted only at debug level.
	KindWake
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindTickBegin:
		return "tick-begin"
	case KindTickEnd:
		return "tick-end"
	case KindPoint:
		return "point"
	case KindWake:
		return "wake"
	default:
		return "unknown"
	}
}

// Scope names the kernel subsystem that emitted the event.
type Scope uint8

const (
	// ScopeSched covers the executor: spawns, polls, wakes, completions.
	ScopeSched Scope = iota + 1
	// ScopeAlloc covers the async heap: allocations, frees, OOM parks.
	ScopeAlloc
	// ScopeIPC covers channel operations.
	ScopeIPC
	// ScopeRegistry covers driver registration and lookup.
	ScopeRegistry
	// ScopeWire covers the userspace wire boundary.
	ScopeWire
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeSched:
		return "sched"
	case ScopeAlloc:
		return "alloc"
	case ScopeIPC:
		return "ipc"
	case ScopeRegistry:
		return "registry"
	case ScopeWire:
		return "wire"
	default:
		return "unknown"
	}
}

// Event is a single trace event.
type Event struct {
	Time   time.Time // wall-clock timestamp
	Seq    uint64    // global sequence number (monotonic)
	Kind   Kind      // event kind
	Scope  Scope     // emitting subsystem
	Tick   uint64    // kernel tick the event belongs to (0 if outside a tick)
	TaskID uint64    // task being polled, if any
	Name   string    // e.g. "spawn", "alloc.oom", "wire.dispatch"
	Detail string    // optional detail message
}

var seq atomic.Uint64

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return seq.Add(1) }
