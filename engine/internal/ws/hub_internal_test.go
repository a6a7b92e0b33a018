package ws

import (
	"sync"
	"testing"
)

// Broadcast releases the hub lock before sending, so its snapshot of the
// client set can still contain a client whose connection goroutine is
// unregistering it at that moment. The send channel therefore must survive
// unregistration; removal is signaled through done instead.

func TestUnregister_LeavesSendChannelOpen(t *testing.T) {
	h := New()
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	h.register(c)
	h.unregister(c)

	select {
	case <-c.done:
	default:
		t.Fatal("done not closed by unregister")
	}

	c.send <- []byte("late frame") // must not panic

	if n := h.Count(); n != 0 {
		t.Errorf("Count after unregister: got %d, want 0", n)
	}
}

func TestBroadcast_ConcurrentWithUnregister(t *testing.T) {
	h := New()

	clients := make([]*client, 64)
	for i := range clients {
		clients[i] = &client{send: make(chan []byte, sendBufSize), done: make(chan struct{})}
		h.register(clients[i])
	}

	var wg sync.WaitGroup
	wg.Add(len(clients))
	for _, c := range clients {
		c := c
		go func() {
			defer wg.Done()
			h.unregister(c)
		}()
	}

	for i := 0; i < 200; i++ {
		if err := h.Broadcast("alerts", i); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
	}
	wg.Wait()

	if n := h.Count(); n != 0 {
		t.Errorf("Count after all unregistered: got %d, want 0", n)
	}
}

func TestUnregisterTwice_NoDoubleClose(t *testing.T) {
	h := New()
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	h.register(c)
	h.unregister(c)
	h.unregister(c) // must not panic on the already-closed done
}
