// Package arbitrage contains the live detection engine: quote ingestion with
// staleness tracking, cycle reconstruction from the Bellman-Ford predecessor
// tree, and the detector that ties both to the graph and reports
// opportunities.
package arbitrage

import (
	"math"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/graph"
)

// Tracker applies incoming quotes to the graph as paired forward/inverse
// edges and remembers, per unordered market, when the last quote was applied
// so stale markets can be evicted in both directions at once.
//
// The Tracker is the graph's single writer. It is not safe for concurrent
// use; the Detector serializes access.
type Tracker struct {
	graph    *graph.Graph
	lastSeen map[domain.Market]time.Time
}

// NewTracker creates a Tracker writing into g.
func NewTracker(g *graph.Graph) *Tracker {
	return &Tracker{
		graph:    g,
		lastSeen: make(map[domain.Market]time.Time),
	}
}

// ApplyQuote inserts the quote as two directed edges: base -> quote with
// weight -log10(rate) and the algebraic inverse in the other direction. The
// market's last-seen time is set to the quote timestamp; like the edges
// themselves, the registry entry is last-write-wins.
func (t *Tracker) ApplyQuote(q domain.Quote) {
	w := -math.Log10(q.Rate)
	t.graph.AddEdge(q.Pair.Base, q.Pair.Quote, w, q.Timestamp)
	t.graph.AddEdge(q.Pair.Quote, q.Pair.Base, -w, q.Timestamp)
	t.lastSeen[q.Pair.Market()] = q.Timestamp
}

// StaleMarket reports one market evicted by EvictStale and how old its last
// quote was.
type StaleMarket struct {
	Market domain.Market
	Age    time.Duration
}

// EvictStale removes every market whose last quote is older than window
// relative to now: both directed edges are deleted from the graph and the
// registry entry is dropped, so a repeat call reports nothing for the same
// market. An edge already gone (e.g. removed by a graph-level eviction) is
// treated as a no-op.
func (t *Tracker) EvictStale(now time.Time, window time.Duration) []StaleMarket {
	var stale []StaleMarket
	for m, ts := range t.lastSeen {
		age := now.Sub(ts)
		if age <= window {
			continue
		}
		_ = t.graph.RemoveEdge(m.A, m.B)
		_ = t.graph.RemoveEdge(m.B, m.A)
		delete(t.lastSeen, m)
		stale = append(stale, StaleMarket{Market: m, Age: age})
	}
	return stale
}

// MarketCount returns the number of markets currently tracked.
func (t *Tracker) MarketCount() int {
	return len(t.lastSeen)
}
