package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/pkg/logger"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  Pinger
	cache  Pinger
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(store, cache Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
// The event store must be reachable. A cache outage only degrades.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("event store not ready", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "event store unavailable",
		})
		return
	}

	resp := map[string]string{"status": "ready"}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("status cache unavailable", zap.Error(err))
			resp["cache"] = "unavailable"
		} else {
			resp["cache"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
