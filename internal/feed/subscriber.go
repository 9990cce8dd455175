package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/feed/fxp"
)

// readBufferSize fits the provider's largest batch comfortably (128 quotes).
const readBufferSize = 4096

// QuoteBatchHandler is called for each decoded quote batch, with the local
// receive time of the datagram.
type QuoteBatchHandler func(ctx context.Context, quotes []domain.Quote, receivedAt time.Time)

// Subscriber joins the provider's UDP publish-subscribe feed. It sends the
// provider a serialized copy of its own listening address, renews that
// subscription on an interval, and invokes the handler for every quote batch
// it receives. When the provider goes quiet for longer than the idle timeout
// the subscriber shuts down cleanly.
type Subscriber struct {
	providerAddr string
	listenAddr   string
	renewEvery   time.Duration
	idleTimeout  time.Duration
	onBatch      QuoteBatchHandler
	logger       *slog.Logger
	closeOnce    sync.Once
	done         chan struct{}
}

// NewSubscriber creates a subscriber that will deliver batches to onBatch.
// listenAddr may use port 0 to let the OS pick the delivery port.
func NewSubscriber(providerAddr, listenAddr string, renewEvery, idleTimeout time.Duration, onBatch QuoteBatchHandler, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		providerAddr: providerAddr,
		listenAddr:   listenAddr,
		renewEvery:   renewEvery,
		idleTimeout:  idleTimeout,
		onBatch:      onBatch,
		logger:       logger.With(slog.String("component", "feed_subscriber")),
		done:         make(chan struct{}),
	}
}

// Run subscribes and receives until ctx is cancelled, Close is called, or the
// provider stays silent past the idle timeout. Idle shutdown returns nil.
func (s *Subscriber) Run(ctx context.Context) error {
	provider, err := net.ResolveUDPAddr("udp4", s.providerAddr)
	if err != nil {
		return fmt.Errorf("feed: resolve provider address: %w", err)
	}
	laddr, err := net.ResolveUDPAddr("udp4", s.listenAddr)
	if err != nil {
		return fmt.Errorf("feed: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return fmt.Errorf("feed: listen: %w", err)
	}
	defer conn.Close()

	delivery := deliveryAddr(conn.LocalAddr().(*net.UDPAddr).AddrPort())
	subscription, err := fxp.MarshalSubscription(delivery)
	if err != nil {
		return fmt.Errorf("feed: marshal subscription: %w", err)
	}
	s.logger.Info("listening for quotes", slog.String("address", delivery.String()))

	// Interrupt a blocked read when the context or Close fires.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-stop:
			return
		}
		conn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, readBufferSize)
	lastMessage := time.Now()
	var nextRenew time.Time // zero value forces an immediate subscription

	for {
		now := time.Now()
		if !now.Before(nextRenew) {
			if _, err := conn.WriteToUDP(subscription, provider); err != nil {
				return fmt.Errorf("feed: send subscription: %w", err)
			}
			nextRenew = now.Add(s.renewEvery)
			s.logger.Info("subscribed to provider", slog.String("provider", provider.String()))
		}

		deadline := lastMessage.Add(s.idleTimeout)
		if nextRenew.Before(deadline) {
			deadline = nextRenew
		}
		conn.SetReadDeadline(deadline)

		n, err := conn.Read(buf)
		receivedAt := time.Now()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if receivedAt.Sub(lastMessage) >= s.idleTimeout {
					s.logger.Info("no messages from provider, shutting down",
						slog.Time("last_message", lastMessage),
						slog.Duration("idle_timeout", s.idleTimeout),
					)
					return nil
				}
				continue // the deadline was the renewal, not the idle limit
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		quotes, err := fxp.DecodeMessage(buf[:n])
		if err != nil {
			s.logger.Warn("dropping malformed datagram",
				slog.Int("bytes", n),
				slog.String("error", err.Error()),
			)
			continue
		}
		lastMessage = receivedAt
		if s.onBatch != nil {
			s.onBatch(ctx, quotes, receivedAt)
		}
	}
}

// Close stops the subscriber.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// deliveryAddr rewrites a wildcard bind address to loopback so the provider
// has a concrete IPv4 address to send quotes back to.
func deliveryAddr(local netip.AddrPort) netip.AddrPort {
	addr := local.Addr()
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.IsUnspecified() {
		addr = netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.AddrPortFrom(addr, local.Port())
}
