package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:         "monitor",
		BaseCurrency: "USD",
	})
}

func runHub(t *testing.T, hub *Hub) (cancel func(), stopped chan error) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	stopped = make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()
	return cancelCtx, stopped
}

func TestRunClosesClientQueuesOnCancel(t *testing.T) {
	hub := testHub()
	cancel, stopped := runHub(t, hub)

	c := newClient(hub, nil)
	if !hub.attach(c) {
		t.Fatal("attach failed while the hub was running")
	}

	cancel()
	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	select {
	case _, open := <-c.send:
		if open {
			t.Fatal("send queue delivered a message instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("send queue not closed on shutdown")
	}
}

// Joins and leaves arriving after the loop has exited must return instead of
// blocking their goroutines forever.
func TestAttachDetachAfterShutdown(t *testing.T) {
	hub := testHub()
	cancel, stopped := runHub(t, hub)
	cancel()
	<-stopped

	finished := make(chan bool, 1)
	go func() {
		c := newClient(hub, nil)
		attached := hub.attach(c)
		hub.detach(c)
		finished <- attached
	}()

	select {
	case attached := <-finished:
		if attached {
			t.Error("attach succeeded on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("attach/detach blocked after hub shutdown")
	}
}

func TestBroadcastReachesSubscribedClient(t *testing.T) {
	hub := testHub()
	cancel, stopped := runHub(t, hub)
	defer func() { cancel(); <-stopped }()

	c := newClient(hub, nil)
	if !hub.attach(c) {
		t.Fatal("attach failed while the hub was running")
	}

	hub.Broadcast("arbitrage", []byte(`{"id":"op-1"}`))

	select {
	case payload := <-c.send:
		if string(payload) != `{"id":"op-1"}` {
			t.Fatalf("payload = %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the subscribed client")
	}
}
