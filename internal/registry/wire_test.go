package registry

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"mnemos/internal/comms"
)

func encodeRequest(t *testing.T, uuid Uuid, nonce uint32, req any) []byte {
	t.Helper()
	body, err := msgpack.Marshal(req)
	if err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	frame, err := msgpack.Marshal(WireRequest{Uuid: uuid.String(), Nonce: nonce, Body: body})
	if err != nil {
		t.Fatalf("encoding request envelope: %v", err)
	}
	return frame
}

func decodeResponse(t *testing.T, frame []byte, rsp any) WireResponse {
	t.Helper()
	var wrsp WireResponse
	if err := msgpack.Unmarshal(frame, &wrsp); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	if wrsp.Error == "" {
		if err := msgpack.Unmarshal(wrsp.Body, rsp); err != nil {
			t.Fatalf("decoding response body: %v", err)
		}
	}
	return wrsp
}

func TestWireDispatchRoundTrip(t *testing.T) {
	r := New()
	tx, rx := comms.NewChan[Message[pingReq, pingRsp]](4)
	if err := RegisterWire(r, EchoService, tx); err != nil {
		t.Fatalf("RegisterWire() = %v", err)
	}

	outTx, outRx := comms.NewChan[[]byte](4)
	frame := encodeRequest(t, EchoService, 7, pingReq{Payload: "ping"})
	if err := r.Dispatch(frame, outTx); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}

	// The service sees the decoded request and answers through the route.
	msg, err := rx.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv() = %v", err)
	}
	if msg.Req.Payload != "ping" {
		t.Fatalf("request payload = %q, want %q", msg.Req.Payload, "ping")
	}
	if err := msg.Reply.Reply(pingRsp{Payload: "ping"}); err != nil {
		t.Fatalf("Reply() = %v", err)
	}

	out, err := outRx.TryRecv()
	if err != nil {
		t.Fatalf("outbox TryRecv() = %v", err)
	}
	var rsp pingRsp
	wrsp := decodeResponse(t, out, &rsp)
	if wrsp.Nonce != 7 {
		t.Fatalf("response nonce = %d, want 7", wrsp.Nonce)
	}
	if wrsp.Uuid != EchoService.String() {
		t.Fatalf("response uuid = %q, want %q", wrsp.Uuid, EchoService.String())
	}
	if rsp.Payload != "ping" {
		t.Fatalf("response payload = %q, want %q", rsp.Payload, "ping")
	}
}

func TestWireHandleProcess(t *testing.T) {
	r := New()
	tx, rx := comms.NewChan[Message[pingReq, pingRsp]](1)
	RegisterWire(r, EchoService, tx)

	h, ok := r.Wire(EchoService)
	if !ok {
		t.Fatalf("Wire() missed a wire-registered service")
	}
	outTx, _ := comms.NewChan[[]byte](1)
	if err := h.Process(encodeRequest(t, EchoService, 1, pingReq{Payload: "x"}), outTx); err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if msg, err := rx.TryRecv(); err != nil || msg.Req.Payload != "x" {
		t.Fatalf("TryRecv() = %v, %v", msg, err)
	}
}

func TestWireMissForKernelOnlyService(t *testing.T) {
	r := New()
	tx, _ := comms.NewChan[Message[pingReq, pingRsp]](1)
	Register(r, EchoService, tx)

	if _, ok := r.Wire(EchoService); ok {
		t.Fatalf("Wire() returned a handle for a kernel-only service")
	}
	outTx, _ := comms.NewChan[[]byte](1)
	frame := encodeRequest(t, EchoService, 1, pingReq{})
	if err := r.Dispatch(frame, outTx); err == nil {
		t.Fatalf("Dispatch to a kernel-only service succeeded")
	}
}

func TestDispatchRejectsGarbageFrame(t *testing.T) {
	r := New()
	outTx, _ := comms.NewChan[[]byte](1)
	if err := r.Dispatch([]byte{0xc1, 0xff, 0x00}, outTx); err == nil {
		t.Fatalf("Dispatch of a garbage frame succeeded")
	}
}

func TestDispatchReportsFullServiceChannel(t *testing.T) {
	r := New()
	tx, _ := comms.NewChan[Message[pingReq, pingRsp]](1)
	RegisterWire(r, EchoService, tx)

	outTx, _ := comms.NewChan[[]byte](1)
	first := encodeRequest(t, EchoService, 1, pingReq{})
	if err := r.Dispatch(first, outTx); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	second := encodeRequest(t, EchoService, 2, pingReq{})
	if err := r.Dispatch(second, outTx); err == nil {
		t.Fatalf("Dispatch onto a full service channel succeeded")
	}
}
