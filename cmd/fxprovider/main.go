// Command fxprovider is a development quote provider. It accepts the same
// subscription datagrams the real feed does and publishes random-walk quotes
// for a fixed set of markets to every live subscriber. Useful for local runs
// and demos; not part of the production deployment.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/feed/fxp"
)

// subscriptionTTL matches how long the real provider honours a subscription
// before the subscriber must renew.
const subscriptionTTL = 10 * time.Minute

// maxDrift bounds the per-tick relative change of each random-walked rate.
const maxDrift = 0.02

// startRates seeds the walk with plausible mid-market rates.
var startRates = map[string]float64{
	"EUR/USD": 1.08,
	"GBP/USD": 1.27,
	"USD/JPY": 150.0,
	"USD/CHF": 0.88,
	"AUD/USD": 0.65,
	"USD/CAD": 1.36,
	"EUR/GBP": 0.85,
}

// subscriber is a single registered delivery address with its expiry.
type subscriber struct {
	addr    *net.UDPAddr
	expires time.Time
}

// provider publishes quotes to registered subscribers over a shared socket.
type provider struct {
	conn     *net.UDPConn
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	subs  map[string]subscriber
	rates map[string]float64
}

func main() {
	addr := flag.String("addr", ":50403", "UDP address to listen on")
	interval := flag.Duration("interval", time.Second, "publish interval")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *interval, logger); err != nil {
		logger.Error("provider exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, interval time.Duration, logger *slog.Logger) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	rates := make(map[string]float64, len(startRates))
	for pair, rate := range startRates {
		rates[pair] = rate
	}

	p := &provider{
		conn:     conn,
		interval: interval,
		logger:   logger,
		subs:     make(map[string]subscriber),
		rates:    rates,
	}

	logger.Info("provider listening",
		slog.String("addr", conn.LocalAddr().String()),
		slog.Duration("interval", interval),
		slog.Int("markets", len(rates)),
	)

	go p.acceptSubscriptions(ctx)
	p.publishLoop(ctx)
	return nil
}

// acceptSubscriptions reads 6-byte subscription datagrams and registers (or
// renews) the delivery address they carry.
func (p *provider) acceptSubscriptions(ctx context.Context) {
	buf := make([]byte, 64)
	for {
		p.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			p.logger.Warn("read failed", slog.String("error", err.Error()))
			continue
		}

		dest, err := fxp.UnmarshalSubscription(buf[:n])
		if err != nil {
			p.logger.Warn("ignoring malformed subscription",
				slog.Int("bytes", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		udp := net.UDPAddrFromAddrPort(dest)
		p.mu.Lock()
		_, renewal := p.subs[dest.String()]
		p.subs[dest.String()] = subscriber{
			addr:    udp,
			expires: time.Now().Add(subscriptionTTL),
		}
		p.mu.Unlock()

		if renewal {
			p.logger.Debug("subscription renewed", slog.String("subscriber", dest.String()))
		} else {
			p.logger.Info("subscriber registered", slog.String("subscriber", dest.String()))
		}
	}
}

// publishLoop walks the rates and sends a full quote batch to every live
// subscriber on each tick.
func (p *provider) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("provider stopping")
			return
		case now := <-ticker.C:
			payload := p.nextBatch(now.UTC())
			for _, dest := range p.liveSubscribers(now) {
				if _, err := p.conn.WriteToUDP(payload, dest); err != nil {
					p.logger.Warn("publish failed",
						slog.String("subscriber", dest.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// nextBatch advances every rate by a bounded random step and encodes the
// resulting quotes as one datagram.
func (p *provider) nextBatch(now time.Time) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	quotes := make([]domain.Quote, 0, len(p.rates))
	for pair, rate := range p.rates {
		rate *= 1 + (rand.Float64()-0.5)*maxDrift
		p.rates[pair] = rate

		base, quote, _ := strings.Cut(pair, "/")
		quotes = append(quotes, domain.Quote{
			Timestamp: now,
			Pair: domain.Pair{
				Base:  domain.Currency(base),
				Quote: domain.Currency(quote),
			},
			Rate: rate,
		})
	}
	return fxp.EncodeMessage(quotes)
}

// liveSubscribers returns the current delivery addresses, dropping any whose
// subscription has lapsed.
func (p *provider) liveSubscribers(now time.Time) []*net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()

	addrs := make([]*net.UDPAddr, 0, len(p.subs))
	for key, sub := range p.subs {
		if now.After(sub.expires) {
			delete(p.subs, key)
			p.logger.Info("subscription expired", slog.String("subscriber", key))
			continue
		}
		addrs = append(addrs, sub.addr)
	}
	return addrs
}
