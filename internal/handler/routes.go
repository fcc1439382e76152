package handler

import (
	"net/http"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
)

// Handlers bundles every HTTP handler of the service.
type Handlers struct {
	Auth      *AuthHandler
	Records   *RecordsHandler
	Issuances *IssuanceHandler
	Stats     *StatsHandler
	Health    *HealthHandler
}

// Register mounts all API routes on mux.
func (h *Handlers) Register(mux *http.ServeMux, authz *security.AuthorizationService) {
	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.HandleFunc("GET /readyz", h.Health.Ready)

	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("GET /api/auth/me", h.Auth.Me)
	mux.HandleFunc("POST /api/auth/change-password", h.Auth.ChangePassword)

	adminOnly := middleware.RequireRoles(authz, domain.RolesAdmin...)
	mux.Handle("GET /api/users", adminOnly(http.HandlerFunc(h.Auth.ListUsers)))
	mux.Handle("POST /api/users", adminOnly(http.HandlerFunc(h.Auth.CreateUser)))

	mux.HandleFunc("GET /api/dashboard", h.Stats.Dashboard)
	mux.HandleFunc("GET /api/reports", h.Stats.Reports)
	mux.HandleFunc("GET /api/reports/export", h.Stats.Export)
	mux.HandleFunc("GET /ws/dashboard", h.Stats.Live)

	mux.HandleFunc("GET /api/records/{kind}", h.Records.List)
	mux.HandleFunc("POST /api/records/{kind}", h.Records.Create)
	mux.HandleFunc("GET /api/records/{kind}/{id}", h.Records.Get)
	mux.HandleFunc("PATCH /api/records/{kind}/{id}", h.Records.Update)
	mux.HandleFunc("POST /api/codes/{kind}", h.Records.PreviewCode)

	mux.HandleFunc("POST /api/issuances", h.Issuances.Issue)
	mux.HandleFunc("POST /api/issuances/{id}/returns", h.Issuances.Return)
	mux.HandleFunc("POST /api/tools/{id}/restock", h.Issuances.Restock)
}
