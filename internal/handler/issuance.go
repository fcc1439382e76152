package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
	"github.com/aryan0dhankhar/mesledger/internal/service"
)

// IssuanceHandler exposes the tool ledger.
type IssuanceHandler struct {
	ledger *service.IssuanceService
	logger *slog.Logger
}

// NewIssuanceHandler creates a new issuance handler
func NewIssuanceHandler(ledger *service.IssuanceService, logger *slog.Logger) *IssuanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssuanceHandler{ledger: ledger, logger: logger}
}

// RestockRequest is the body of a restock call.
type RestockRequest struct {
	Quantity int64 `json:"quantity"`
}

// Issue handles POST /api/issuances
func (h *IssuanceHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	issuance, err := h.ledger.Issue(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, issuance)
}

// Return handles POST /api/issuances/{id}/returns
func (h *IssuanceHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	issuance, err := h.ledger.ReturnUnits(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"), req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, issuance)
}

// Restock handles POST /api/tools/{id}/restock
func (h *IssuanceHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tool, err := h.ledger.Restock(r.Context(), middleware.ActorFromContext(r.Context()), r.PathValue("id"), req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}
