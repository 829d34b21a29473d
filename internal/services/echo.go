// Package services holds the built-in drivers: small request/response
// servers registered under well-known uuids. They double as the reference
// for writing drivers against the kernel API.
package services

import (
	"mnemos/internal/alloc"
	"mnemos/internal/comms"
	"mnemos/internal/kernel"
	"mnemos/internal/registry"
)

// EchoRequest asks the echo service to send the payload back.
type EchoRequest struct {
	Payload string `msgpack:"payload"`
}

// EchoResponse carries the payload back.
type EchoResponse struct {
	Payload string `msgpack:"payload"`
}

// echoServer stages each payload through a heap buffer before replying, so
// the service exercises the allocator the way a DMA-backed driver would.
type echoServer struct {
	heap    *alloc.AsyncHeap
	rx      *comms.Consumer[registry.Message[EchoRequest, EchoResponse]]
	recv    *comms.RecvFuture[registry.Message[EchoRequest, EchoResponse]]
	pending *registry.Message[EchoRequest, EchoResponse]
	af      *alloc.AllocFuture
}

func (s *echoServer) Poll(cx *kernel.Context) kernel.Poll {
	for {
		if s.pending == nil {
			if s.recv == nil {
				s.recv = s.rx.Recv()
			}
			msg, done, err := s.recv.Poll(cx.Waker())
			if !done {
				return kernel.Pending
			}
			s.recv = nil
			if err != nil {
				return kernel.Ready
			}
			s.pending = &msg
		}
		if s.af == nil {
			size := len(s.pending.Req.Payload)
			if size == 0 {
				size = 1
			}
			s.af = s.heap.Allocate(size, 1)
		}
		buf, ok := s.af.Poll(cx.Waker())
		if !ok {
			return kernel.Pending
		}
		s.af = nil
		n := copy(buf.Bytes(), s.pending.Req.Payload)
		// Reply delivery is best effort: a requester that went away takes
		// its reply route with it.
		_ = s.pending.Reply.Reply(EchoResponse{Payload: string(buf.Bytes()[:n])})
		buf.Release()
		s.pending = nil
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

// SpawnEcho registers the echo service, reachable both in-kernel and over
// the wire, and spawns its server task.
func SpawnEcho(k *kernel.Kernel) (*kernel.Task, error) {
	tx, rx := comms.NewChan[registry.Message[EchoRequest, EchoResponse]](k.Settings().DefaultChanCapacity)
	if err := registry.RegisterWire(k.Registry(), registry.EchoService, tx); err != nil {
		return nil, err
	}
	return k.Spawn(&echoServer{heap: k.Heap(), rx: rx}), nil
}
