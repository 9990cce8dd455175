package graph

import (
	"math"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// EdgeRef identifies a directed edge without its attributes. A non-nil
// EdgeRef returned by ShortestPaths witnesses a negative cycle: the edge was
// still relaxable after |V|-1 passes.
type EdgeRef struct {
	From domain.Currency
	To   domain.Currency
}

// canRelax reports whether moving to candidate improves on current by more
// than tolerance. The comparison is exactly candidate+tolerance < current;
// this is not numerically identical to candidate < current-tolerance at the
// margins and downstream behavior depends on this form.
func canRelax(candidate, current, tolerance float64) bool {
	return candidate+tolerance < current
}

// ShortestPaths runs Bellman-Ford from start over every directed edge of g.
//
// It returns the distance of every known vertex from start (+Inf when
// unreached), the predecessor tree (a vertex absent from the map has no
// predecessor), and a witness edge of a negative cycle, or nil when the
// distances converged. Relaxations only count when they improve a distance by
// more than tolerance, which keeps floating-point noise in near-zero cycles
// from being reported as arbitrage.
//
// Which edge is returned as the witness when several negative cycles exist
// depends on iteration order and is deliberately unspecified.
func ShortestPaths(g *Graph, start domain.Currency, tolerance float64) (map[domain.Currency]float64, map[domain.Currency]domain.Currency, *EdgeRef) {
	distance := make(map[domain.Currency]float64, len(g.adj))
	predecessor := make(map[domain.Currency]domain.Currency)

	for v := range g.adj {
		distance[v] = math.Inf(1)
	}
	distance[start] = 0

	// Relax every edge one fewer time than the number of vertices.
	for i := 0; i < len(g.adj)-1; i++ {
		for u, edges := range g.adj {
			for v, e := range edges {
				if candidate := distance[u] + e.Weight; canRelax(candidate, distance[v], tolerance) {
					distance[v] = candidate
					predecessor[v] = u
				}
			}
		}
	}

	// One more scan: any edge that still relaxes proves a negative cycle.
	for u, edges := range g.adj {
		for v, e := range edges {
			if canRelax(distance[u]+e.Weight, distance[v], tolerance) {
				return distance, predecessor, &EdgeRef{From: u, To: v}
			}
		}
	}

	return distance, predecessor, nil
}
