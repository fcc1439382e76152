package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
	"github.com/aryan0dhankhar/mesledger/internal/service"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error, authenticated bool) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		if !authenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateKey), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrOverReturn):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and writes it. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	actor := middleware.ActorFromContext(r.Context())
	status := StatusFor(err, actor.Authenticated)
	resp := ErrorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
		resp = ErrorResponse{Error: "internal server error"}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("", "request body is empty")
		}
		return domain.Invalid("", "invalid request: "+err.Error())
	}
	return nil
}
