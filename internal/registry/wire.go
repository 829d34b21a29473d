package registry

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"mnemos/internal/comms"
)

// WireRequest is the serialized envelope a userspace client sends to reach
// a service. The body is the msgpack encoding of the service's request
// type; the nonce ties the eventual response back to this request.
type WireRequest struct {
	Uuid  string `msgpack:"uuid"`
	Nonce uint32 `msgpack:"nonce"`
	Body  []byte `msgpack:"body"`
}

// WireResponse is the envelope going the other way. Either Body holds the
// msgpack-encoded response, or Error describes why there is none.
type WireResponse struct {
	Uuid  string `msgpack:"uuid"`
	Nonce uint32 `msgpack:"nonce"`
	Body  []byte `msgpack:"body"`
	Error string `msgpack:"error,omitempty"`
}

// wireDispatch decodes a request envelope and forwards it onto the
// service's channel with a wire reply route attached.
type wireDispatch func(req WireRequest, out *comms.Producer[[]byte]) error

// wireRoute carries what a service needs to answer a wire request.
type wireRoute struct {
	uuid  Uuid
	nonce uint32
	out   *comms.Producer[[]byte]
}

func (w *wireRoute) reply(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("registry: encoding wire response for %s: %w", w.uuid, err)
	}
	frame, err := msgpack.Marshal(WireResponse{
		Uuid:  w.uuid.String(),
		Nonce: w.nonce,
		Body:  body,
	})
	if err != nil {
		return fmt.Errorf("registry: encoding wire envelope for %s: %w", w.uuid, err)
	}
	return w.out.TrySend(frame)
}

// RegisterWire binds uuid like Register and additionally accepts requests
// from the wire: serialized envelopes for this uuid are decoded into Req
// and forwarded onto the service channel with a reply route that encodes
// the response back onto the outbox.
func RegisterWire[Req, Rsp any](r *Registry, uuid Uuid, tx *comms.Producer[Message[Req, Rsp]]) error {
	e := &entry{
		req:   reflect.TypeOf((*Req)(nil)).Elem(),
		rsp:   reflect.TypeOf((*Rsp)(nil)).Elem(),
		clone: func() any { return tx.Clone() },
	}
	e.wire = func(wreq WireRequest, out *comms.Producer[[]byte]) error {
		var req Req
		if err := msgpack.Unmarshal(wreq.Body, &req); err != nil {
			return fmt.Errorf("registry: decoding wire request for %s: %w", uuid, err)
		}
		msg := Message[Req, Rsp]{
			Req: req,
			Reply: ReplyTo[Rsp]{wire: &wireRoute{
				uuid:  uuid,
				nonce: wreq.Nonce,
				out:   out,
			}},
		}
		if err := tx.TrySend(msg); err != nil {
			return fmt.Errorf("registry: forwarding wire request to %s: %w", uuid, err)
		}
		return nil
	}
	return r.insert(uuid, e)
}

// WireHandle processes serialized envelopes for one service.
type WireHandle struct {
	uuid     Uuid
	dispatch wireDispatch
}

// Wire looks up the wire adapter for uuid. A miss is returned when the
// uuid is unknown or the service was registered kernel-only.
func (r *Registry) Wire(uuid Uuid) (WireHandle, bool) {
	r.mu.RLock()
	e, ok := r.entries[uuid]
	r.mu.RUnlock()
	if !ok || e.wire == nil {
		return WireHandle{}, false
	}
	return WireHandle{uuid: uuid, dispatch: e.wire}, true
}

// Process decodes a request envelope frame and forwards it onto the
// service channel. Responses, when the service replies, land on out.
func (h WireHandle) Process(frame []byte, out *comms.Producer[[]byte]) error {
	var wreq WireRequest
	if err := msgpack.Unmarshal(frame, &wreq); err != nil {
		return fmt.Errorf("registry: decoding wire envelope: %w", err)
	}
	return h.dispatch(wreq, out)
}

// Dispatch decodes a request envelope frame, routes it to the service it
// names and forwards the decoded request. This is the kernel tick's entry
// point for inbound wire traffic.
func (r *Registry) Dispatch(frame []byte, out *comms.Producer[[]byte]) error {
	var wreq WireRequest
	if err := msgpack.Unmarshal(frame, &wreq); err != nil {
		return fmt.Errorf("registry: decoding wire envelope: %w", err)
	}
	uuid, err := ParseUuid(wreq.Uuid)
	if err != nil {
		return err
	}
	r.mu.RLock()
	e, ok := r.entries[uuid]
	r.mu.RUnlock()
	if !ok || e.wire == nil {
		return fmt.Errorf("registry: no wire service for %s", wreq.Uuid)
	}
	return e.wire(wreq, out)
}
