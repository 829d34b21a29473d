package waitq

import "sync"

// Cell is a wait slot for exactly one waiter, used where only a single task
// may ever park (the consumer side of an MPSC channel). A wake that arrives
// while nobody is registered is latched and consumed by the next Register,
// so a ready condition is never missed between a failed try and the park.
type Cell struct {
	mu       sync.Mutex
	waiter   Waker
	notified bool
	closed   bool
}

// Register parks wk in the cell. If a wake was latched, it is consumed and
// wk is woken immediately (the caller re-polls on the next tick). Returns
// ErrClosed once the cell is closed; registering over a live registration
// replaces it, which is only correct because the cell has a single consumer.
func (c *Cell) Register(wk Waker) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.notified {
		c.notified = false
		c.mu.Unlock()
		wk.Wake()
		return nil
	}
	c.waiter = wk
	c.mu.Unlock()
	return nil
}

// Unregister clears any live registration. Idempotent; used on cancellation.
func (c *Cell) Unregister() {
	c.mu.Lock()
	c.waiter = nil
	c.mu.Unlock()
}

// Wake wakes the registered waiter, or latches the notification if the slot
// is empty.
func (c *Cell) Wake() {
	c.mu.Lock()
	wk := c.waiter
	c.waiter = nil
	if wk == nil && !c.closed {
		c.notified = true
	}
	c.mu.Unlock()
	if wk != nil {
		wk.Wake()
	}
}

// Close fails future registrations and wakes any registered waiter so it can
// observe the closed condition.
func (c *Cell) Close() {
	c.mu.Lock()
	c.closed = true
	wk := c.waiter
	c.waiter = nil
	c.mu.Unlock()
	if wk != nil {
		wk.Wake()
	}
}

// Closed reports whether the cell has been closed.
func (c *Cell) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
