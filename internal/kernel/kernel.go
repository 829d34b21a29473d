// Package kernel contains the cooperative executor and the kernel façade
// that ties it to the async heap, the service registry and the wire
// boundary. One Kernel is one scheduling domain: everything it owns runs on
// whichever goroutine calls Tick or Run, and only wakers cross in from
// outside.
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"mnemos/internal/alloc"
	"mnemos/internal/comms"
	"mnemos/internal/registry"
	"mnemos/internal/trace"
)

// Settings configures a kernel at boot. Zero fields take defaults.
type Settings struct {
	// HeapSize is the arena size in bytes (default 64 KiB).
	HeapSize int
	// DefaultChanCapacity sizes service channels created by drivers that do
	// not pick their own (default 16).
	DefaultChanCapacity int
	// WireCapacity sizes the inbox and outbox frame channels (default 32).
	WireCapacity int
	// Tracer receives kernel events. Nil means no tracing.
	Tracer trace.Tracer
}

func (s *Settings) applyDefaults() {
	if s.HeapSize <= 0 {
		s.HeapSize = 64 * 1024
	}
	if s.DefaultChanCapacity <= 0 {
		s.DefaultChanCapacity = 16
	}
	if s.WireCapacity <= 0 {
		s.WireCapacity = 32
	}
	if s.Tracer == nil {
		s.Tracer = trace.Nop
	}
}

// Kernel owns one executor, one heap, one registry and the wire boundary.
type Kernel struct {
	settings Settings
	exec     *Executor
	heap     *alloc.AsyncHeap
	reg      *registry.Registry
	tr       trace.Tracer
	tick     atomic.Uint64

	// Userspace pushes request frames through inboxTx; the tick pump
	// consumes them with inboxRx and dispatches through the registry.
	// Responses are produced onto outTx and read by userspace via outRx.
	inboxTx *comms.Producer[[]byte]
	inboxRx *comms.Consumer[[]byte]
	outTx   *comms.Producer[[]byte]
	outRx   *comms.Consumer[[]byte]
}

// New boots a kernel with the given settings.
func New(s Settings) *Kernel {
	s.applyDefaults()
	k := &Kernel{
		settings: s,
		exec:     NewExecutor(),
		heap:     alloc.New(s.HeapSize),
		reg:      registry.New(),
		tr:       s.Tracer,
	}
	k.inboxTx, k.inboxRx = comms.NewChan[[]byte](s.WireCapacity)
	k.outTx, k.outRx = comms.NewChan[[]byte](s.WireCapacity)
	return k
}

// Settings returns the effective boot settings.
func (k *Kernel) Settings() Settings { return k.settings }

// Heap returns the kernel's async allocator.
func (k *Kernel) Heap() *alloc.AsyncHeap { return k.heap }

// Registry returns the kernel's service table.
func (k *Kernel) Registry() *registry.Registry { return k.reg }

// Tracer returns the kernel's tracer.
func (k *Kernel) Tracer() trace.Tracer { return k.tr }

// Executor returns the kernel's executor.
func (k *Kernel) Executor() *Executor { return k.exec }

// TickCount returns the number of completed ticks since boot.
func (k *Kernel) TickCount() uint64 { return k.tick.Load() }

// Spawn registers fut as a kernel task.
func (k *Kernel) Spawn(fut Future) *Task {
	t := k.exec.Spawn(fut)
	k.trace(trace.KindPoint, trace.ScopeSched, "spawn", t.id, "")
	return t
}

// WireInbox returns the producing end of the userspace to kernel frame
// channel. Safe to use from any goroutine.
func (k *Kernel) WireInbox() *comms.Producer[[]byte] { return k.inboxTx }

// WireOutbox returns the consuming end of the kernel to userspace frame
// channel. Single consumer.
func (k *Kernel) WireOutbox() *comms.Consumer[[]byte] { return k.outRx }

// TickReport summarizes one kernel tick.
type TickReport struct {
	Tick   uint64
	Polled int // tasks polled by the executor
	Frames int // wire frames dispatched
}

// Tick runs one kernel iteration: reclaim deferred frees so parked
// allocations retry, pump the wire inbox, then poll every runnable task
// once. The ordering matters: memory freed since the last tick must be
// visible to tasks polled in this one.
func (k *Kernel) Tick() TickReport {
	n := k.tick.Add(1)
	k.trace(trace.KindTickBegin, trace.ScopeSched, "tick", 0, "")

	k.heap.Reclaim()
	frames := k.pumpWire()
	polled := k.exec.Tick()

	k.trace(trace.KindTickEnd, trace.ScopeSched, "tick", 0,
		fmt.Sprintf("polled=%d frames=%d", polled, frames))
	return TickReport{Tick: n, Polled: polled, Frames: frames}
}

// pumpWire drains the inbox and dispatches each frame through the
// registry. A frame that fails to dispatch is dropped with a trace event;
// the wire does not get to wedge the kernel.
func (k *Kernel) pumpWire() int {
	frames := 0
	for {
		frame, err := k.inboxRx.TryRecv()
		if err != nil {
			return frames
		}
		frames++
		if err := k.reg.Dispatch(frame, k.outTx); err != nil {
			k.trace(trace.KindPoint, trace.ScopeWire, "wire.drop", 0, err.Error())
			continue
		}
		k.trace(trace.KindPoint, trace.ScopeWire, "wire.dispatch", 0, "")
	}
}

// Run ticks until ctx is cancelled, parking when no task is runnable and
// no wire frame is queued. Wakes from any goroutine unpark it.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		k.Tick()
		for k.exec.ReadyCount() == 0 && k.inboxLen() == 0 {
			if err := k.waitWork(ctx); err != nil {
				return err
			}
		}
	}
}

func (k *Kernel) inboxLen() int {
	// TryRecv would consume; peek via the channel length instead.
	return k.inboxRx.Len()
}

// waitWork blocks until the executor has a runnable task, ctx is done, or
// a short timeout passes. The inbox is rechecked on the timeout rather
// than hooked into the waker path; inbound frames are external traffic and
// a bounded latency is acceptable there.
func (k *Kernel) waitWork(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	if err := k.exec.WaitReady(waitCtx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (k *Kernel) trace(kind trace.Kind, scope trace.Scope, name string, taskID uint64, detail string) {
	if !k.tr.Enabled() {
		return
	}
	k.tr.Emit(&trace.Event{
		Time:   time.Now(),
		Kind:   kind,
		Scope:  scope,
		Tick:   k.tick.Load(),
		TaskID: taskID,
		Name:   name,
		Detail: detail,
	})
}
