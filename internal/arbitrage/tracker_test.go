package arbitrage

import (
	"math"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/graph"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func approx(got, want, eps float64) bool {
	return math.Abs(got-want) < eps
}

func TestApplyQuoteInsertsBothDirections(t *testing.T) {
	g := graph.New()
	tr := NewTracker(g)

	tr.ApplyQuote(domain.Quote{
		Timestamp: t0,
		Pair:      domain.Pair{Base: "USD", Quote: "EUR"},
		Rate:      0.90,
	})

	fwd, err := g.Weight("USD", "EUR")
	if err != nil {
		t.Fatalf("forward edge missing: %v", err)
	}
	rev, err := g.Weight("EUR", "USD")
	if err != nil {
		t.Fatalf("inverse edge missing: %v", err)
	}
	if !approx(fwd, -math.Log10(0.90), 1e-12) {
		t.Errorf("forward weight = %v, want -log10(0.90)", fwd)
	}
	if rev != -fwd {
		t.Errorf("inverse weight = %v, want %v", rev, -fwd)
	}
	if tr.MarketCount() != 1 {
		t.Errorf("MarketCount = %d, want 1", tr.MarketCount())
	}
}

func TestApplyQuoteLastWriteWins(t *testing.T) {
	g := graph.New()
	tr := NewTracker(g)
	pair := domain.Pair{Base: "USD", Quote: "EUR"}

	tr.ApplyQuote(domain.Quote{Timestamp: t0, Pair: pair, Rate: 0.90})
	tr.ApplyQuote(domain.Quote{Timestamp: t0.Add(time.Second), Pair: pair, Rate: 0.95})

	w, err := g.Weight("USD", "EUR")
	if err != nil {
		t.Fatalf("Weight: %v", err)
	}
	if !approx(w, -math.Log10(0.95), 1e-12) {
		t.Errorf("weight = %v, want weight of the later quote", w)
	}
	if tr.MarketCount() != 1 {
		t.Errorf("MarketCount = %d, want 1 (same market, both orientations)", tr.MarketCount())
	}
}

func TestEvictStaleRemovesBothDirectionsOnce(t *testing.T) {
	g := graph.New()
	tr := NewTracker(g)
	window := 1500 * time.Millisecond

	tr.ApplyQuote(domain.Quote{Timestamp: t0, Pair: domain.Pair{Base: "EUR", Quote: "USD"}, Rate: 1.1})
	now := t0.Add(window + time.Millisecond)

	stale := tr.EvictStale(now, window)
	if len(stale) != 1 {
		t.Fatalf("EvictStale reported %d markets, want 1", len(stale))
	}
	if stale[0].Market != (domain.Market{A: "EUR", B: "USD"}) {
		t.Errorf("stale market = %v, want EUR/USD", stale[0].Market)
	}
	if g.HasEdge("EUR", "USD") || g.HasEdge("USD", "EUR") {
		t.Error("edges still present after eviction")
	}
	if tr.MarketCount() != 0 {
		t.Errorf("MarketCount = %d, want 0", tr.MarketCount())
	}

	// Second pass with identical inputs reports nothing.
	if again := tr.EvictStale(now, window); len(again) != 0 {
		t.Fatalf("second EvictStale reported %d markets, want 0", len(again))
	}
}

func TestEvictStaleBoundaryRetained(t *testing.T) {
	g := graph.New()
	tr := NewTracker(g)
	window := 1500 * time.Millisecond

	tr.ApplyQuote(domain.Quote{Timestamp: t0, Pair: domain.Pair{Base: "GBP", Quote: "JPY"}, Rate: 190})

	// Age exactly equal to the window: not stale (strict inequality).
	if stale := tr.EvictStale(t0.Add(window), window); len(stale) != 0 {
		t.Fatalf("boundary-age market evicted: %+v", stale)
	}
	if !g.HasEdge("GBP", "JPY") {
		t.Error("boundary-age edge removed")
	}
}

func TestEvictStaleToleratesMissingEdges(t *testing.T) {
	g := graph.New()
	tr := NewTracker(g)
	window := time.Second

	tr.ApplyQuote(domain.Quote{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "CHF"}, Rate: 0.9})
	// A graph-level eviction already removed the edges.
	g.EvictOlderThan(t0.Add(time.Hour), window)

	stale := tr.EvictStale(t0.Add(time.Hour), window)
	if len(stale) != 1 {
		t.Fatalf("EvictStale reported %d markets, want 1 even when edges were already gone", len(stale))
	}
}
