package kernel

// Poll is the result of polling a future once.
type Poll uint8

const (
	// Pending means the future parked itself and will be woken later.
	Pending Poll = iota
	// Ready means the future completed and must not be polled again.
	Ready
)

// Future is a resumable computation driven by the executor. Poll runs the
// computation until it completes or reaches a suspension point; a Pending
// future must have registered the context's waker somewhere before
// returning, or it will never run again.
type Future interface {
	Poll(cx *Context) Poll
}

// Cancelable is implemented by futures that park waiters on wait lists.
// Cancel releases those registrations synchronously; it is called when the
// owning task is killed while suspended.
type Cancelable interface {
	Cancel()
}

// PollFn adapts a plain function to the Future interface, for tasks whose
// state lives in a closure.
type PollFn func(cx *Context) Poll

// Poll calls f.
func (f PollFn) Poll(cx *Context) Poll { return f(cx) }

// Context is passed to every poll. It identifies the running task and hands
// out its waker.
type Context struct {
	task *Task
}

// Waker returns the waker that requeues the current task. The returned
// value is valid for the task's lifetime and is safe to invoke from any
// goroutine.
func (cx *Context) Waker() *Waker { return &cx.task.waker }

// TaskID returns the identifier of the task being polled.
func (cx *Context) TaskID() uint64 { return cx.task.id }
