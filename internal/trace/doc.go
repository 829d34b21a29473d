// Package trace provides the kernel's tracing subsystem.
//
// The kernel runs as a cooperative scheduler; a hung task or a starved
// allocation shows up as ticks that stop making progress, and the tracer is
// how you see that. Events are emitted from the scheduler, the allocator,
// the channel layer and the registry, filtered by level and stored by one
// of several tracer implementations:
//
//   - Nop: zero-overhead no-op tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer holding the last N events, for dumps
//   - MultiTracer: fans out to several tracers
//
// Verbosity is controlled by levels:
//
//   - LevelOff: no tracing
//   - LevelTick: kernel tick boundaries and task lifecycle
//   - LevelDetail: per-operation events (allocations, messages, lookups)
//   - LevelDebug: everything including waiter park/wake
//
// Events carry a Scope naming the subsystem that emitted them: sched,
// alloc, ipc, registry or wire.
package trace
