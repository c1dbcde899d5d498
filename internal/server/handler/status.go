package handler

import (
	"net/http"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// StatusSource supplies a current runtime snapshot of the bot.
type StatusSource func(r *http.Request) domain.BotStatus

// StatusHandler serves the bot's runtime status for operators.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler backed by the given snapshot source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the current mode, feed connectivity, and workload
// counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	s := h.source(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           s.Mode,
		"ws_connected":   s.WSConnected,
		"uptime_seconds": s.UptimeSeconds,
		"tracked_offers": s.TrackedOffers,
		"pending_fills":  s.PendingFills,
		"strategy_name":  s.StrategyName,
	})
}
