package kernel

import (
	"context"
	"sync"
)

// Executor drives tasks on a single logical thread of control. All
// scheduling state is mutated under one lock; the only concurrent entry
// point is wake, which may be called from any goroutine. Each tick polls
// every currently runnable task exactly once.
type Executor struct {
	mu     sync.Mutex
	ready  []*Task
	tasks  map[uint64]*Task
	nextID uint64

	// wakeCh carries at most one pending "something became ready" signal.
	// Wakes push to the run queue before signalling, and the idle wait
	// re-checks the queue after waking, so a wake between check and sleep
	// is never lost.
	wakeCh chan struct{}
}

// NewExecutor returns an empty executor.
func NewExecutor() *Executor {
	return &Executor{
		tasks:  make(map[uint64]*Task),
		wakeCh: make(chan struct{}, 1),
	}
}

// Spawn registers fut as a new task and queues it for the next tick.
func (e *Executor) Spawn(fut Future) *Task {
	e.mu.Lock()
	e.nextID++
	t := &Task{
		id:    e.nextID,
		exec:  e,
		fut:   fut,
		state: stateQueued,
	}
	t.waker = Waker{task: t}
	e.tasks[t.id] = t
	e.ready = append(e.ready, t)
	e.mu.Unlock()
	e.signal()
	return t
}

// wake transitions a suspended task back onto the run queue.
func (e *Executor) wake(t *Task) {
	e.mu.Lock()
	switch t.state {
	case stateDone, stateQueued:
		e.mu.Unlock()
		return
	case stateRunning:
		// Poll in progress; requeue once it returns Pending.
		t.wokeRunning = true
		e.mu.Unlock()
		return
	case stateSuspended:
		t.state = stateQueued
		e.ready = append(e.ready, t)
		e.mu.Unlock()
		e.signal()
	}
}

func (e *Executor) signal() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Tick polls each task that was runnable at the start of the tick exactly
// once, and returns the number of tasks polled. Tasks woken during the tick
// (including self-wakes) run on the next tick.
func (e *Executor) Tick() int {
	e.mu.Lock()
	batch := e.ready
	e.ready = nil
	e.mu.Unlock()

	polled := 0
	for _, t := range batch {
		e.mu.Lock()
		if t.state != stateQueued {
			e.mu.Unlock()
			continue
		}
		t.state = stateRunning
		t.wokeRunning = false
		e.mu.Unlock()

		polled++
		cx := Context{task: t}
		res := t.fut.Poll(&cx)

		e.mu.Lock()
		if t.state != stateRunning {
			// Cancelled mid-poll.
			e.mu.Unlock()
			continue
		}
		switch res {
		case Ready:
			t.state = stateDone
			delete(e.tasks, t.id)
		case Pending:
			if t.wokeRunning {
				t.state = stateQueued
				e.ready = append(e.ready, t)
			} else {
				t.state = stateSuspended
			}
		}
		e.mu.Unlock()
	}
	return polled
}

// RunUntilIdle ticks until no task is runnable, returning the total number
// of polls performed. It does not block; suspended tasks stay suspended.
func (e *Executor) RunUntilIdle() int {
	total := 0
	for {
		n := e.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// WaitReady blocks until at least one task is runnable or the context is
// done. This is the executor's only blocking operation, standing in for the
// platform idle (wait-for-interrupt) of a bare-metal build.
func (e *Executor) WaitReady(ctx context.Context) error {
	for {
		e.mu.Lock()
		n := len(e.ready)
		e.mu.Unlock()
		if n > 0 {
			return nil
		}
		select {
		case <-e.wakeCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TaskCount returns the number of live (not completed) tasks.
func (e *Executor) TaskCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// ReadyCount returns the current length of the run queue.
func (e *Executor) ReadyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ready)
}
