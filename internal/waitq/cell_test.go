package waitq

import "testing"

func TestCellWakeThenRegister(t *testing.T) {
	var c Cell
	var wk countWaker

	// Wake with no waiter latches the notification.
	c.Wake()
	if err := c.Register(&wk); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if wk.n != 1 {
		t.Fatalf("wake count = %d, want 1 (latched notify consumed)", wk.n)
	}
}

func TestCellRegisterThenWake(t *testing.T) {
	var c Cell
	var wk countWaker
	if err := c.Register(&wk); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Wake()
	if wk.n != 1 {
		t.Fatalf("wake count = %d, want 1", wk.n)
	}
	// The registration was consumed; another wake latches instead.
	c.Wake()
	if wk.n != 1 {
		t.Fatalf("wake count = %d, want 1 after unregistered wake", wk.n)
	}
}

func TestCellUnregister(t *testing.T) {
	var c Cell
	var wk countWaker
	if err := c.Register(&wk); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Unregister()
	c.Wake()
	if wk.n != 0 {
		t.Fatalf("wake count = %d, want 0 after unregister", wk.n)
	}
}

func TestCellClose(t *testing.T) {
	var c Cell
	var wk countWaker
	if err := c.Register(&wk); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Close()
	if wk.n != 1 {
		t.Fatalf("wake count = %d, want 1 (close wakes registrant)", wk.n)
	}
	if err := c.Register(&wk); err != ErrClosed {
		t.Fatalf("Register() after close error = %v, want ErrClosed", err)
	}
	if !c.Closed() {
		t.Fatalf("Closed() = false, want true")
	}
}
