// Package graph implements the directed weighted currency graph and the
// tolerance-aware Bellman-Ford shortest-path / negative-cycle engine that the
// arbitrage detector runs on.
//
// The graph is owned by a single writer (the quote tracker) and is not safe
// for unsynchronized concurrent use; the detector serializes every mutation
// and query behind one mutex.
package graph

import (
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// Edge is a directed edge: the weight is the negative base-10 logarithm of an
// exchange rate, so path sums correspond to rate products. InsertedAt records
// when the quote that produced the edge was applied.
type Edge struct {
	Weight     float64
	InsertedAt time.Time
}

// Graph is an adjacency-map directed graph keyed by currency. Every currency
// that has ever appeared as an endpoint keeps an outer-map entry (possibly
// with an empty inner map), so adjacency lookups never miss for a known
// vertex.
type Graph struct {
	adj map[domain.Currency]map[domain.Currency]Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[domain.Currency]map[domain.Currency]Edge)}
}

// ensureVertex creates the outer adjacency entry for c if missing.
func (g *Graph) ensureVertex(c domain.Currency) {
	if _, ok := g.adj[c]; !ok {
		g.adj[c] = make(map[domain.Currency]Edge)
	}
}

// AddEdge sets the edge from -> to, overwriting weight and timestamp if the
// edge already exists (last write wins). Both endpoints are created as
// vertices when needed.
func (g *Graph) AddEdge(from, to domain.Currency, weight float64, at time.Time) {
	g.ensureVertex(from)
	g.ensureVertex(to)
	g.adj[from][to] = Edge{Weight: weight, InsertedAt: at}
}

// RemoveEdge deletes the edge from -> to. It returns domain.ErrNotFound when
// the edge does not exist; callers racing with a prior eviction treat that as
// a no-op. Vertices are never removed.
func (g *Graph) RemoveEdge(from, to domain.Currency) error {
	edges, ok := g.adj[from]
	if !ok {
		return domain.ErrNotFound
	}
	if _, ok := edges[to]; !ok {
		return domain.ErrNotFound
	}
	delete(edges, to)
	return nil
}

// Weight returns the weight of the edge from -> to, or domain.ErrNotFound.
func (g *Graph) Weight(from, to domain.Currency) (float64, error) {
	edges, ok := g.adj[from]
	if !ok {
		return 0, domain.ErrNotFound
	}
	e, ok := edges[to]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return e.Weight, nil
}

// HasEdge reports whether the edge from -> to exists. Unknown vertices simply
// yield false.
func (g *Graph) HasEdge(from, to domain.Currency) bool {
	edges, ok := g.adj[from]
	if !ok {
		return false
	}
	_, ok = edges[to]
	return ok
}

// VertexCount returns the number of known vertices.
func (g *Graph) VertexCount() int {
	return len(g.adj)
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.adj {
		n += len(edges)
	}
	return n
}

// Vertices returns all known currencies in unspecified order.
func (g *Graph) Vertices() []domain.Currency {
	out := make([]domain.Currency, 0, len(g.adj))
	for c := range g.adj {
		out = append(out, c)
	}
	return out
}

// Eviction describes one removed stale edge: the direction that was scanned
// first and how old it was at eviction time.
type Eviction struct {
	From domain.Currency
	To   domain.Currency
	Age  time.Duration
}

// EvictOlderThan removes every edge whose age relative to ref strictly
// exceeds maxAge. Edges exactly at the boundary are retained. Both directions
// of a market are physically removed, but the returned report collapses the
// two directions to a single representative entry.
//
// The detection loop evicts through the tracker's market registry instead of
// this full scan; callers embedding the graph on its own can use this, but
// wiring both paths would evict every stale market twice.
func (g *Graph) EvictOlderThan(ref time.Time, maxAge time.Duration) []Eviction {
	var stale []Eviction
	for from, edges := range g.adj {
		for to, e := range edges {
			if age := ref.Sub(e.InsertedAt); age > maxAge {
				stale = append(stale, Eviction{From: from, To: to, Age: age})
			}
		}
	}

	var report []Eviction
	seen := make(map[domain.Market]bool, len(stale))
	for _, ev := range stale {
		delete(g.adj[ev.From], ev.To)
		m := domain.Pair{Base: ev.From, Quote: ev.To}.Market()
		if !seen[m] {
			seen[m] = true
			report = append(report, ev)
		}
	}
	return report
}
