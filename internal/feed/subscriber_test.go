package feed

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/feed/fxp"
)

func TestSubscriberReceivesQuotes(t *testing.T) {
	providerConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen provider: %v", err)
	}
	defer providerConn.Close()

	batches := make(chan []domain.Quote, 1)
	sub := NewSubscriber(
		providerConn.LocalAddr().String(),
		"127.0.0.1:0",
		time.Minute,
		30*time.Second,
		func(_ context.Context, quotes []domain.Quote, _ time.Time) {
			select {
			case batches <- quotes:
			default:
			}
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(ctx) }()

	// The subscription datagram tells us where to deliver quotes.
	providerConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, _, err := providerConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read subscription: %v", err)
	}
	delivery, err := fxp.UnmarshalSubscription(buf[:n])
	if err != nil {
		t.Fatalf("unmarshal subscription: %v", err)
	}

	want := domain.Quote{
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Pair:      domain.Pair{Base: "USD", Quote: "EUR"},
		Rate:      0.9144,
	}
	if _, err := providerConn.WriteToUDPAddrPort(fxp.EncodeMessage([]domain.Quote{want}), delivery); err != nil {
		t.Fatalf("send quotes: %v", err)
	}

	select {
	case quotes := <-batches:
		if len(quotes) != 1 {
			t.Fatalf("got %d quotes, want 1", len(quotes))
		}
		got := quotes[0]
		if got.Pair != want.Pair || got.Rate != want.Rate || !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("quote = %+v, want %+v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quote batch")
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop on cancel")
	}
}

func TestSubscriberIdleShutdown(t *testing.T) {
	providerConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen provider: %v", err)
	}
	defer providerConn.Close()

	sub := NewSubscriber(
		providerConn.LocalAddr().String(),
		"127.0.0.1:0",
		time.Minute,
		100*time.Millisecond, // idle out quickly
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(context.Background()) }()

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("idle shutdown returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not shut down on idle timeout")
	}
}
