package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ewhitmore/forexbot/internal/arbitrage"
	"github.com/ewhitmore/forexbot/internal/domain"
)

// streamPageSize is how many stream entries are fetched per read when paging
// through the Redis history stream.
const streamPageSize = 500

// StreamHistory reads back the durable opportunity stream. Satisfied by
// domain.SignalBus.
type StreamHistory interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// OpportunityHandler serves the detection history endpoints. History comes
// from the store when one is wired, falling back to the Redis stream, and
// returns 501 when neither is available.
type OpportunityHandler struct {
	store   domain.OpportunityStore
	history StreamHistory
	logger  *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler backed by the given
// store. A nil store is allowed for deployments running without Postgres.
func NewOpportunityHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, logger: logger}
}

// WithStreamHistory sets the Redis stream used as a history fallback when no
// store is configured.
func (h *OpportunityHandler) WithStreamHistory(history StreamHistory) *OpportunityHandler {
	h.history = history
	return h
}

// listOpportunitiesResponse wraps the list response.
type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListRecent returns the most recent detected opportunities.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 200)

	var opps []domain.Opportunity
	var err error
	switch {
	case h.store != nil:
		opps, err = h.store.ListRecent(r.Context(), limit)
	case h.history != nil:
		opps, err = h.listFromStream(r.Context(), limit)
	default:
		writeError(w, http.StatusNotImplemented, "opportunity history not configured")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	if opps == nil {
		opps = []domain.Opportunity{}
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

// listFromStream pages through the whole history stream and keeps the newest
// limit entries, returned newest first to match the store's ordering. The
// stream is trimmed to a bounded length, so reading it through stays cheap.
func (h *OpportunityHandler) listFromStream(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	var tail []domain.Opportunity
	lastID := "0"
	for {
		msgs, err := h.history.StreamRead(ctx, arbitrage.OpportunityStream, lastID, streamPageSize)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			var opp domain.Opportunity
			if err := json.Unmarshal(m.Payload, &opp); err != nil {
				h.logger.Warn("handler: skipping undecodable stream entry",
					slog.String("stream_id", m.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			tail = append(tail, opp)
			if len(tail) > limit {
				tail = tail[1:]
			}
		}
		lastID = msgs[len(msgs)-1].ID
	}

	// Stream order is oldest first; flip to newest first.
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail, nil
}
