package handler

import (
	"net/http"
	"time"

	"github.com/ewhitmore/forexbot/internal/arbitrage"
)

// DetectorStatus is implemented by the detection engine.
type DetectorStatus interface {
	Status() arbitrage.Status
}

// StatusHandler serves a snapshot of the running detector for dashboards.
type StatusHandler struct {
	detector  DetectorStatus
	mode      string
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given detector.
func NewStatusHandler(detector DetectorStatus, mode string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{detector: detector, mode: mode, startedAt: startedAt}
}

// GetStatus responds with the current mode, uptime, and detector counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	// Monitor-mode servers have no local detector; omit the key.
	if h.detector != nil {
		resp["detector"] = h.detector.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}
