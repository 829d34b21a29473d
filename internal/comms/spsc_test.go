package comms

import "testing"

func TestRingTrySendTryRecvFIFO(t *testing.T) {
	tx, rx := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		if err := tx.TrySend(i); err != nil {
			t.Fatalf("TrySend(%d) = %v", i, err)
		}
	}
	if err := tx.TrySend(4); err != ErrFull {
		t.Fatalf("TrySend on full ring = %v, want ErrFull", err)
	}
	for i := 1; i <= 3; i++ {
		v, err := rx.TryRecv()
		if err != nil || v != i {
			t.Fatalf("TryRecv() = %d, %v, want %d, nil", v, err, i)
		}
	}
	if _, err := rx.TryRecv(); err != ErrEmpty {
		t.Fatalf("TryRecv on empty ring = %v, want ErrEmpty", err)
	}
}

func TestRingCapacityInvariant(t *testing.T) {
	tx, rx := NewRing[int](2)
	// Cursors advance without wrap resets; capacity must hold across many
	// laps of the ring.
	for round := 0; round < 100; round++ {
		tx.TrySend(round)
		tx.TrySend(round)
		if err := tx.TrySend(round); err != ErrFull {
			t.Fatalf("round %d: third send = %v, want ErrFull", round, err)
		}
		rx.TryRecv()
		rx.TryRecv()
	}
}

func TestRingCloseDrains(t *testing.T) {
	tx, rx := NewRing[int](4)
	tx.TrySend(1)
	tx.TrySend(2)
	tx.Close()

	if err := tx.TrySend(3); err != ErrClosed {
		t.Fatalf("TrySend after close = %v, want ErrClosed", err)
	}
	for i := 1; i <= 2; i++ {
		v, err := rx.TryRecv()
		if err != nil || v != i {
			t.Fatalf("TryRecv() = %d, %v, want %d, nil", v, err, i)
		}
	}
	if _, err := rx.TryRecv(); err != ErrClosed {
		t.Fatalf("TryRecv after drain = %v, want ErrClosed", err)
	}
}

func TestRingReceiverCloseReleasesSender(t *testing.T) {
	tx, rx := NewRing[int](1)
	tx.TrySend(1)

	var wk countWaker
	f := tx.Send(2)
	if done, _ := f.Poll(&wk); done {
		t.Fatalf("send resolved on a full ring")
	}

	rx.Close()
	if wk.n == 0 {
		t.Fatalf("parked sender was not woken by close")
	}
	if done, err := f.Poll(&wk); !done || err != ErrClosed {
		t.Fatalf("Poll after close = %v, %v, want true, ErrClosed", done, err)
	}
}

func TestRingSendParksUntilSlotFrees(t *testing.T) {
	tx, rx := NewRing[string](1)
	tx.TrySend("a")

	var wk countWaker
	f := tx.Send("b")
	f.Poll(&wk)

	if v, _ := rx.TryRecv(); v != "a" {
		t.Fatalf("TryRecv() = %q, want %q", v, "a")
	}
	if wk.n == 0 {
		t.Fatalf("parked sender was not woken by the receive")
	}
	if done, err := f.Poll(&wk); !done || err != nil {
		t.Fatalf("Poll after wake = %v, %v", done, err)
	}
	if v, _ := rx.TryRecv(); v != "b" {
		t.Fatalf("TryRecv() = %q, want %q", v, "b")
	}
}

func TestRingRecvLatchedWake(t *testing.T) {
	tx, rx := NewRing[int](2)

	var wk countWaker
	f := rx.Recv()
	if _, done, _ := f.Poll(&wk); done {
		t.Fatalf("receive resolved on an empty ring")
	}

	tx.TrySend(5)
	if wk.n == 0 {
		t.Fatalf("parked receiver was not woken by the send")
	}
	if v, done, err := f.Poll(&wk); !done || err != nil || v != 5 {
		t.Fatalf("Poll after send = %d, %v, %v, want 5, true, nil", v, done, err)
	}
}

func TestRingRecvCancel(t *testing.T) {
	tx, rx := NewRing[int](2)

	var wk countWaker
	f := rx.Recv()
	f.Poll(&wk)
	f.Cancel()

	tx.TrySend(1)
	if wk.n != 0 {
		t.Fatalf("cancelled receiver was woken %d times", wk.n)
	}
}

func TestRingSlotClearedOnRecv(t *testing.T) {
	tx, rx := NewRing[*int](1)
	v := 42
	tx.TrySend(&v)
	if got, _ := rx.TryRecv(); got == nil || *got != 42 {
		t.Fatalf("TryRecv() = %v, want pointer to 42", got)
	}
	// The slot must not pin the received value.
	if tx.r.buf[0] != nil {
		t.Fatalf("ring slot still references the delivered value")
	}
}
