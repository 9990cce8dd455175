// Package ws fans detection events out to WebSocket clients. Events arrive
// either directly from the in-process reporter or through the Redis signal
// bus when one is configured.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// defaultChannels are the event channels every new client starts out
// subscribed to.
var defaultChannels = []string{"arbitrage", "status"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins. In production, restrict this to known origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// event is a payload tagged with the channel it belongs to, so the hub can
// route it only to clients subscribed to that channel.
type event struct {
	channel string
	payload []byte
}

// Config carries runtime metadata included in the status envelope sent to
// each client on connect.
type Config struct {
	Mode         string
	BaseCurrency string
	StartedAt    time.Time
}

// Hub owns the set of connected clients and the event queue feeding them.
// Events enter via Broadcast (in-process) or via the optional signal bus.
type Hub struct {
	events chan event
	join   chan *client
	leave  chan *client
	done   chan struct{} // closed when Run exits; unblocks pending sends

	// clients is touched only by the Run loop; no lock needed.
	clients map[*client]struct{}

	bus       domain.SignalBus // nil when Redis is disabled
	logger    *slog.Logger
	mode      string
	base      string
	startedAt time.Time
}

// NewHub creates a hub. bus may be nil; then only in-process Broadcast
// calls reach clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		events:    make(chan event, 256),
		join:      make(chan *client),
		leave:     make(chan *client),
		done:      make(chan struct{}),
		clients:   make(map[*client]struct{}),
		bus:       bus,
		logger:    logger,
		mode:      mode,
		base:      cfg.BaseCurrency,
		startedAt: startedAt,
	}
}

// Broadcast queues a payload for every client subscribed to channel. It
// never blocks; when the queue is full the event is dropped.
func (h *Hub) Broadcast(channel string, payload []byte) {
	select {
	case h.events <- event{channel: channel, payload: payload}:
	default:
		h.logger.Warn("ws: event queue full, dropping",
			slog.String("channel", channel))
	}
}

// Run is the hub's single-goroutine event loop: client joins and leaves,
// event fan-out, and teardown on context cancellation.
func (h *Hub) Run(ctx context.Context) error {
	// Closing done releases any pump or upgrade goroutine still trying to
	// join or leave after the loop has stopped.
	defer close(h.done)

	if h.bus != nil {
		for _, ch := range defaultChannels {
			go h.bridge(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.join:
			h.clients[c] = struct{}{}
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", len(h.clients)))

		case c := <-h.leave:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", len(h.clients)))

		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

// attach registers a client with the running loop. It reports false when
// the hub has already shut down.
func (h *Hub) attach(c *client) bool {
	select {
	case h.join <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach hands the client back to the loop, or returns immediately when the
// hub has already shut down (the loop closed every send queue on exit).
func (h *Hub) detach(c *client) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}

// fanOut delivers one event to every subscribed client, dropping it for
// clients whose send buffer is full rather than stalling the loop.
func (h *Hub) fanOut(ev event) {
	for c := range h.clients {
		if !c.subscribed(ev.channel) {
			continue
		}
		select {
		case c.send <- ev.payload:
		default:
			h.logger.Warn("ws: dropping event for slow client",
				slog.String("channel", ev.channel))
		}
	}
}

// bridge forwards one signal-bus channel into the hub's event queue.
func (h *Hub) bridge(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	h.logger.Info("ws: bridging channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed",
					slog.String("channel", channel))
				return
			}
			select {
			case h.events <- event{channel: channel, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and hands the connection to a new client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	if !h.attach(c) {
		conn.Close()
		return
	}
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}
