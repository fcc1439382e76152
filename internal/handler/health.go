package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/featureflags"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store  Pinger
	redis  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler. redis may be nil when no
// lock server is configured.
func NewHealthHandler(store, redis Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		store:  store,
		redis:  redis,
		logger: logger,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Flags  map[string]bool   `json:"flags"`
}

// Health handles GET /healthz - Simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz. The store must answer; redis is optional
// because code generation falls back to a local lock.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	storeOK := false
	if err := h.store.Ping(ctx); err == nil {
		checks["store"] = "ok"
		storeOK = true
	} else {
		checks["store"] = "error: " + err.Error()
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err == nil {
			checks["redis"] = "ok"
		} else {
			checks["redis"] = "degraded: " + err.Error()
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !storeOK {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadinessResponse{
		Status: status,
		Checks: checks,
		Flags:  featureflags.Snapshot(),
	})

	h.logger.Debug("readiness check",
		slog.String("status", status),
		slog.String("store", checks["store"]),
		slog.String("redis", checks["redis"]),
	)
}
