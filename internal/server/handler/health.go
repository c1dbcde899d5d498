package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// component pairs a dependency name with its pinger for ordered reporting.
type component struct {
	name   string
	pinger Pinger
}

// HealthHandler serves the health-check endpoint. Beyond process liveness it
// pings every registered dependency (database, cache, chain RPC, relay) so a
// single request shows which backend is down.
type HealthHandler struct {
	components []component
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logHandler(logger, "health")}
}

// WithComponent registers a named dependency to ping on each health check.
// Nil pingers are ignored so callers can pass mode-dependent dependencies
// unconditionally.
func (h *HealthHandler) WithComponent(name string, p Pinger) *HealthHandler {
	if p != nil {
		h.components = append(h.components, component{name: name, pinger: p})
	}
	return h
}

// HealthCheck responds with overall and per-component health. The response is
// 200 when every component answers its ping and 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	checks := make(map[string]string, len(h.components))
	for _, c := range h.components {
		if err := c.pinger.Ping(ctx); err != nil {
			healthy = false
			checks[c.name] = err.Error()
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", c.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		checks[c.name] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": checks,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
