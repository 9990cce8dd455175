package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected arbitrage opportunities. It records
// detection history only; no engine state (graph, staleness registry) is ever
// persisted or restored.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
