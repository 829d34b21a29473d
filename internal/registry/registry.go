package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"mnemos/internal/comms"
)

// ErrAlreadyRegistered is returned when a uuid is registered twice.
// Registration is an init-time, one-shot operation.
var ErrAlreadyRegistered = errors.New("registry: uuid already registered")

// entry is one registered service. The producer is stored erased; the
// request/response types act as a witness so a lookup with the wrong pair
// is a miss rather than a bad downcast.
type entry struct {
	req, rsp reflect.Type
	clone    func() any
	wire     wireDispatch
}

// Registry is the kernel's service table. Registration happens during
// driver bring-up; lookups happen for the lifetime of the kernel.
type Registry struct {
	mu      sync.RWMutex
	entries map[Uuid]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[Uuid]*entry)}
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Uuids returns the ids of every registered service.
func (r *Registry) Uuids() []Uuid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Uuid, 0, len(r.entries))
	for u := range r.entries {
		out = append(out, u)
	}
	return out
}

func (r *Registry) insert(uuid Uuid, e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[uuid]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, uuid)
	}
	r.entries[uuid] = e
	return nil
}

// Register binds uuid to the producing end of a service's request channel.
// The service keeps the consumer side; each successful Get hands out a
// producer clone. Kernel-only: requests for this uuid cannot arrive over
// the wire. Returns ErrAlreadyRegistered on a duplicate uuid.
func Register[Req, Rsp any](r *Registry, uuid Uuid, tx *comms.Producer[Message[Req, Rsp]]) error {
	return r.insert(uuid, &entry{
		req:   reflect.TypeOf((*Req)(nil)).Elem(),
		rsp:   reflect.TypeOf((*Rsp)(nil)).Elem(),
		clone: func() any { return tx.Clone() },
	})
}

// Get looks up uuid and returns a typed handle to the service. A miss is
// returned both when the uuid is unknown and when the service was
// registered with a different request/response pair.
func Get[Req, Rsp any](r *Registry, uuid Uuid) (*Handle[Req, Rsp], bool) {
	r.mu.RLock()
	e, ok := r.entries[uuid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.req != reflect.TypeOf((*Req)(nil)).Elem() || e.rsp != reflect.TypeOf((*Rsp)(nil)).Elem() {
		return nil, false
	}
	tx, ok := e.clone().(*comms.Producer[Message[Req, Rsp]])
	if !ok {
		return nil, false
	}
	return &Handle[Req, Rsp]{tx: tx}, true
}

// Handle is a client's typed connection to a service: a cloned producer on
// the service's request channel.
type Handle[Req, Rsp any] struct {
	tx *comms.Producer[Message[Req, Rsp]]
}

// TrySend submits a request without suspending.
func (h *Handle[Req, Rsp]) TrySend(msg Message[Req, Rsp]) error {
	return h.tx.TrySend(msg)
}

// Send returns a future that suspends until the request is accepted.
func (h *Handle[Req, Rsp]) Send(msg Message[Req, Rsp]) *comms.SendFuture[Message[Req, Rsp]] {
	return h.tx.Send(msg)
}

// Close releases the handle's producer clone.
func (h *Handle[Req, Rsp]) Close() {
	h.tx.Close()
}

// Message pairs a request body with its reply route.
type Message[Req, Rsp any] struct {
	Req   Req
	Reply ReplyTo[Rsp]
}

// ReplyTo routes a service's response back to the requester: either onto a
// kernel reply channel or, for requests that arrived over the wire, back
// through the serialized outbox. The zero value discards the reply.
type ReplyTo[Rsp any] struct {
	ch   *comms.Sender[Rsp]
	wire *wireRoute
}

// ReplyToChan routes replies onto a kernel channel.
func ReplyToChan[Rsp any](tx *comms.Sender[Rsp]) ReplyTo[Rsp] {
	return ReplyTo[Rsp]{ch: tx}
}

// Reply delivers the response. On a kernel route a full reply channel is
// reported as comms.ErrFull; wire routes serialize and enqueue a response
// frame.
func (r ReplyTo[Rsp]) Reply(v Rsp) error {
	switch {
	case r.ch != nil:
		return r.ch.TrySend(v)
	case r.wire != nil:
		return r.wire.reply(v)
	default:
		return nil
	}
}
