package arbitrage

import (
	"fmt"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/graph"
)

// ReconstructCycle walks the predecessor tree backwards from start and
// returns the ordered trading cycle it closes, with start implicit at both
// ends: start -> cycle[0] -> ... -> cycle[len-1] -> start.
//
// The predecessor map describes a shortest-path tree from start, not the
// negative cycle itself, so the backward walk can wander into a sub-cycle
// that never returns to start (the next predecessor is already in the
// accumulated list). When that happens the walk degrades to the closest
// reachable cycle: trailing currencies are popped until the list ends in a
// currency that start has a direct edge to, and the cycle is closed through
// start immediately. The result may be a shorter cycle than the one the
// engine detected as negative; that is a known limitation of this recovery
// strategy, kept deliberately.
//
// It returns domain.ErrInvariantViolation when start has no predecessor (the
// engine was queried without a witness), when the chain dead-ends, or when
// the pop fallback exhausts the list.
func ReconstructCycle(pred map[domain.Currency]domain.Currency, g *graph.Graph, start domain.Currency) ([]domain.Currency, error) {
	cur, ok := pred[start]
	if !ok {
		return nil, fmt.Errorf("arbitrage: %s has no predecessor: %w", start, domain.ErrInvariantViolation)
	}

	conversions := []domain.Currency{cur}
	for cur != start {
		next, ok := pred[cur]
		if !ok {
			return nil, fmt.Errorf("arbitrage: predecessor chain broken at %s: %w", cur, domain.ErrInvariantViolation)
		}

		if contains(conversions, next) {
			// The walk entered a cycle that does not pass through start. Pop
			// until start can close the cycle directly.
			for !g.HasEdge(start, cur) {
				conversions = conversions[:len(conversions)-1]
				if len(conversions) == 0 {
					return nil, fmt.Errorf("arbitrage: no edge from %s closes the cycle: %w", start, domain.ErrInvariantViolation)
				}
				cur = conversions[len(conversions)-1]
			}
			cur = start
		} else {
			cur = next
		}
		conversions = append(conversions, cur)
	}

	// The walk was backwards; reverse into forward trading order. The last
	// element appended was start, so it leads after the reversal and is
	// stripped (implicit).
	reverse(conversions)
	return conversions[1:], nil
}

func contains(list []domain.Currency, c domain.Currency) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func reverse(list []domain.Currency) {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
}
