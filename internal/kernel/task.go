package kernel

// runState tracks where a task currently is in the executor.
type runState uint8

const (
	// stateSuspended: not queued; some waker elsewhere holds the only way
	// to make this task runnable again.
	stateSuspended runState = iota
	// stateQueued: sitting on the run queue awaiting the next tick.
	stateQueued
	// stateRunning: being polled right now.
	stateRunning
	// stateDone: completed or killed; terminal.
	stateDone
)

// Task is one spawned unit of cooperative work: a future plus scheduling
// bookkeeping. Tasks are created by Executor.Spawn and removed when their
// future completes or Cancel is called.
type Task struct {
	id   uint64
	exec *Executor
	fut  Future

	// Guarded by exec.mu.
	state       runState
	wokeRunning bool

	waker Waker
}

// ID returns the task's executor-unique identifier.
func (t *Task) ID() uint64 { return t.id }

// Done reports whether the task has completed or been cancelled.
func (t *Task) Done() bool {
	t.exec.mu.Lock()
	defer t.exec.mu.Unlock()
	return t.state == stateDone
}

// Cancel kills the task from any state. If the future holds registrations
// on wait lists it is given the chance to unlink them synchronously before
// Cancel returns, so no wait list is left pointing at a dead task.
func (t *Task) Cancel() {
	e := t.exec
	e.mu.Lock()
	if t.state == stateDone {
		e.mu.Unlock()
		return
	}
	t.state = stateDone
	delete(e.tasks, t.id)
	e.mu.Unlock()

	if c, ok := t.fut.(Cancelable); ok {
		c.Cancel()
	}
}

// Waker requeues its task when invoked. A waker may be called from any
// goroutine, including interrupt-like producers outside the executor loop;
// duplicate wakes while the task is already queued coalesce.
type Waker struct {
	task *Task
}

// Wake marks the task runnable. Waking a completed task is a no-op.
func (w *Waker) Wake() { w.task.exec.wake(w.task) }
