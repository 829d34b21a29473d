package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mnemos/internal/alloc"
	"mnemos/internal/comms"
	"mnemos/internal/registry"
	"mnemos/internal/trace"
)

type echoReq struct {
	Payload string `msgpack:"payload"`
}

type echoRsp struct {
	Payload string `msgpack:"payload"`
}

// echoServer answers each request with its own payload, staging it through
// a heap buffer the way a real driver stages DMA or wire data.
type echoServer struct {
	heap    *alloc.AsyncHeap
	rx      *comms.Consumer[registry.Message[echoReq, echoRsp]]
	recv    *comms.RecvFuture[registry.Message[echoReq, echoRsp]]
	pending *registry.Message[echoReq, echoRsp]
	af      *alloc.AllocFuture
	served  int
}

func (s *echoServer) Poll(cx *Context) Poll {
	for {
		if s.pending == nil {
			if s.recv == nil {
				s.recv = s.rx.Recv()
			}
			msg, done, err := s.recv.Poll(cx.Waker())
			if !done {
				return Pending
			}
			s.recv = nil
			if err != nil {
				return Ready
			}
			s.pending = &msg
		}
		if s.af == nil {
			s.af = s.heap.Allocate(len(s.pending.Req.Payload), 1)
		}
		buf, ok := s.af.Poll(cx.Waker())
		if !ok {
			return Pending
		}
		s.af = nil
		copy(buf.Bytes(), s.pending.Req.Payload)
		s.pending.Reply.Reply(echoRsp{Payload: string(buf.Bytes())})
		buf.Release()
		s.pending = nil
		s.served++
	}
}

func (s *echoServer) Cancel() {
	if s.recv != nil {
		s.recv.Cancel()
	}
	if s.af != nil {
		s.af.Cancel()
	}
}

func bootEcho(t *testing.T, k *Kernel, capacity int, wire bool) (*echoServer, *registry.Handle[echoReq, echoRsp]) {
	t.Helper()
	tx, rx := comms.NewChan[registry.Message[echoReq, echoRsp]](capacity)
	var err error
	if wire {
		err = registry.RegisterWire(k.Registry(), registry.EchoService, tx)
	} else {
		err = registry.Register(k.Registry(), registry.EchoService, tx)
	}
	if err != nil {
		t.Fatalf("registering echo: %v", err)
	}
	srv := &echoServer{heap: k.Heap(), rx: rx}
	k.Spawn(srv)

	h, ok := registry.Get[echoReq, echoRsp](k.Registry(), registry.EchoService)
	if !ok {
		t.Fatalf("echo service not found after registration")
	}
	return srv, h
}

func TestEchoEndToEnd(t *testing.T) {
	k := New(Settings{HeapSize: 64})
	_, h := bootEcho(t, k, 1, false)
	k.Tick() // server parks on its empty channel

	rtx, rrx := comms.NewRing[echoRsp](1)
	before := k.Heap().FreeBytes()
	err := h.TrySend(registry.Message[echoReq, echoRsp]{
		Req:   echoReq{Payload: "pong"},
		Reply: registry.ReplyToChan(rtx),
	})
	if err != nil {
		t.Fatalf("TrySend() = %v", err)
	}

	k.Tick()
	rsp, err := rrx.TryRecv()
	if err != nil {
		t.Fatalf("no reply after tick: %v", err)
	}
	if rsp.Payload != "pong" {
		t.Fatalf("reply payload = %q, want %q", rsp.Payload, "pong")
	}
	if got := k.Heap().FreeBytes(); got != before {
		t.Fatalf("FreeBytes() = %d, want %d (request buffer leaked)", got, before)
	}
}

func TestEchoUnderMemoryPressure(t *testing.T) {
	k := New(Settings{HeapSize: 4})
	srv, h := bootEcho(t, k, 1, false)
	k.Tick()

	// Occupy the whole arena so the server's staging allocation parks.
	hog, ok := k.Heap().TryAllocate(4, 1)
	if !ok {
		t.Fatalf("TryAllocate() failed on an empty arena")
	}

	rtx, rrx := comms.NewRing[echoRsp](1)
	h.TrySend(registry.Message[echoReq, echoRsp]{
		Req:   echoReq{Payload: "pong"},
		Reply: registry.ReplyToChan(rtx),
	})

	k.Tick()
	if _, err := rrx.TryRecv(); err == nil {
		t.Fatalf("server replied with no memory available")
	}
	if srv.served != 0 {
		t.Fatalf("served = %d, want 0 while starved", srv.served)
	}

	// Freeing the hog lets the next tick's reclaim resume the server.
	hog.Release()
	k.Tick()
	rsp, err := rrx.TryRecv()
	if err != nil || rsp.Payload != "pong" {
		t.Fatalf("TryRecv() = %v, %v after memory freed", rsp, err)
	}
	if got := k.Heap().FreeBytes(); got != 4 {
		t.Fatalf("FreeBytes() = %d, want 4", got)
	}
}

func TestWirePumpRoundTrip(t *testing.T) {
	k := New(Settings{HeapSize: 64})
	bootEcho(t, k, 4, true)
	k.Tick()

	body, _ := msgpack.Marshal(echoReq{Payload: "over the wire"})
	frame, _ := msgpack.Marshal(registry.WireRequest{
		Uuid:  registry.EchoService.String(),
		Nonce: 42,
		Body:  body,
	})
	if err := k.WireInbox().TrySend(frame); err != nil {
		t.Fatalf("WireInbox TrySend() = %v", err)
	}

	rep := k.Tick()
	if rep.Frames != 1 {
		t.Fatalf("tick dispatched %d frames, want 1", rep.Frames)
	}

	out, err := k.WireOutbox().TryRecv()
	if err != nil {
		t.Fatalf("WireOutbox TryRecv() = %v", err)
	}
	var wrsp registry.WireResponse
	if err := msgpack.Unmarshal(out, &wrsp); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	if wrsp.Nonce != 42 {
		t.Fatalf("response nonce = %d, want 42", wrsp.Nonce)
	}
	var rsp echoRsp
	if err := msgpack.Unmarshal(wrsp.Body, &rsp); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if rsp.Payload != "over the wire" {
		t.Fatalf("response payload = %q", rsp.Payload)
	}
}

func TestWirePumpDropsGarbage(t *testing.T) {
	k := New(Settings{HeapSize: 64})
	k.WireInbox().TrySend([]byte{0xc1})

	rep := k.Tick()
	if rep.Frames != 1 {
		t.Fatalf("tick consumed %d frames, want 1", rep.Frames)
	}
	if _, err := k.WireOutbox().TryRecv(); err != comms.ErrEmpty {
		t.Fatalf("garbage frame produced output: %v", err)
	}
	// The kernel keeps ticking after a bad frame.
	if rep := k.Tick(); rep.Frames != 0 {
		t.Fatalf("bad frame left residue in the inbox")
	}
}

func TestCancelledReceiverLeavesNoZombie(t *testing.T) {
	k := New(Settings{HeapSize: 64})
	srv, h := bootEcho(t, k, 2, false)
	k.Tick() // server parks on its empty channel

	// A timeout fires while the server waits: the task is cancelled from
	// outside the executor loop.
	task := k.Executor().tasks[1]
	if task == nil {
		t.Fatalf("server task not found")
	}
	task.Cancel()

	// A message arriving afterwards must not wake or poll the dead task.
	if err := h.TrySend(registry.Message[echoReq, echoRsp]{Req: echoReq{Payload: "late"}}); err != nil {
		t.Fatalf("TrySend() = %v", err)
	}
	rep := k.Tick()
	if rep.Polled != 0 {
		t.Fatalf("dead task was polled %d times", rep.Polled)
	}
	if srv.served != 0 {
		t.Fatalf("dead task served a request")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	k := New(Settings{HeapSize: 64})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := k.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run() = %v, want context.DeadlineExceeded", err)
	}
}

func TestTickEmitsTraceEvents(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelTick)
	k := New(Settings{HeapSize: 64, Tracer: ring})
	k.Tick()

	snap := ring.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("tick emitted %d events, want 2", len(snap))
	}
	if snap[0].Kind != trace.KindTickBegin || snap[1].Kind != trace.KindTickEnd {
		t.Fatalf("event kinds = %v, %v", snap[0].Kind, snap[1].Kind)
	}
}

func TestSettingsDefaults(t *testing.T) {
	k := New(Settings{})
	s := k.Settings()
	if s.HeapSize != 64*1024 {
		t.Fatalf("HeapSize default = %d", s.HeapSize)
	}
	if s.DefaultChanCapacity != 16 {
		t.Fatalf("DefaultChanCapacity default = %d", s.DefaultChanCapacity)
	}
	if k.Heap().Size() != 64*1024 {
		t.Fatalf("heap size = %d", k.Heap().Size())
	}
}
