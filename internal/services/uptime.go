package services

import (
	"mnemos/internal/comms"
	"mnemos/internal/kernel"
	"mnemos/internal/registry"
)

// UptimeRequest asks how long the kernel has been running.
type UptimeRequest struct{}

// UptimeResponse reports ticks elapsed since boot.
type UptimeResponse struct {
	Ticks uint64 `msgpack:"ticks"`
}

// uptimeServer answers from the kernel's tick counter. No allocation, no
// staging: the smallest possible driver.
type uptimeServer struct {
	k    *kernel.Kernel
	rx   *comms.Consumer[registry.Message[UptimeRequest, UptimeResponse]]
	recv *comms.RecvFuture[registry.Message[UptimeRequest, UptimeResponse]]
}

func (s *uptimeServer) Poll(cx *kernel.Context) kernel.Poll {
	for {
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
		_ = msg.Reply.Reply(UptimeResponse{Ticks: s.k.TickCount()})
	}
}

func (s *uptimeServer) Cancel() {
	if s.recv != nil {
		s.recv.Cancel()
	}
}

// SpawnUptime registers the uptime service, reachable both in-kernel and
// over the wire, and spawns its server task.
func SpawnUptime(k *kernel.Kernel) (*kernel.Task, error) {
	tx, rx := comms.NewChan[registry.Message[UptimeRequest, UptimeResponse]](k.Settings().DefaultChanCapacity)
	if err := registry.RegisterWire(k.Registry(), registry.UptimeService, tx); err != nil {
		return nil, err
	}
	return k.Spawn(&uptimeServer{k: k, rx: rx}), nil
}
