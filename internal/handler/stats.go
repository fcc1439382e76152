package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/mesledger/internal/observability/metrics"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
	"github.com/aryan0dhankhar/mesledger/internal/service"
)

// StatsHandler serves the dashboard, reports and the live dashboard feed.
type StatsHandler struct {
	stats          *service.StatsService
	allowedOrigins []string
	interval       time.Duration
	logger         *slog.Logger
}

// NewStatsHandler creates a new stats handler. interval is how often the
// live feed pushes fresh dashboard stats.
func NewStatsHandler(stats *service.StatsService, allowedOrigins []string, interval time.Duration, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &StatsHandler{stats: stats, allowedOrigins: allowedOrigins, interval: interval, logger: logger}
}

// Dashboard handles GET /api/dashboard
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Dashboard(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Reports handles GET /api/reports
func (h *StatsHandler) Reports(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Reports(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export handles GET /api/reports/export
func (h *StatsHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.stats.ExportReports(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	name := fmt.Sprintf("mes-report-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *StatsHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// Live handles GET /ws/dashboard. Stats are computed only while a client
// is connected.
func (h *StatsHandler) Live(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	// Check access before upgrading so a refusal is a plain HTTP error.
	if _, err := h.stats.Dashboard(r.Context(), actor); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	metrics.DashboardClientConnected()
	defer metrics.DashboardClientDisconnected()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		stats, err := h.stats.Dashboard(ctx, actor)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Error("live dashboard stats failed", slog.String("error", err.Error()))
				_ = ws.WriteJSON(ErrorResponse{Error: "failed to compute dashboard"})
			}
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := ws.WriteJSON(stats); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", slog.String("user_id", actor.UserID))
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
