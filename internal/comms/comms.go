// Package comms provides the kernel's bounded channels: a single-producer
// single-consumer ring (Ring) and a multi-producer single-consumer queue
// (Chan). Both come in try and asynchronous flavors; the asynchronous
// operations return futures that park on wait primitives from waitq and are
// polled with the owning task's waker.
//
// Channel operations are meant to run on tasks of one executor; wakes may
// arrive from any goroutine.
package comms

import "errors"

var (
	// ErrFull is returned by a try-send when the channel has no free slot.
	// Transient: the asynchronous send never reports it.
	ErrFull = errors.New("comms: channel full")

	// ErrEmpty is returned by a try-receive when no message is queued.
	// Transient: the asynchronous receive never reports it.
	ErrEmpty = errors.New("comms: channel empty")

	// ErrClosed is terminal. A receiver sees it only after draining every
	// queued message.
	ErrClosed = errors.New("comms: channel closed")
)
