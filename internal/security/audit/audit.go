package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

type requestIDKey struct{}

// WithRequestID attaches a request id for later audit entries.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("stream", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, actor domain.Actor, action, resource, resourceID, status, details string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", actor.UserID),
		slog.String("username", actor.Username),
		slog.String("role", string(actor.Role)),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogLedger records a stock movement.
func (al *Logger) LogLedger(ctx context.Context, actor domain.Actor, operation, issuanceID, status, details string) {
	al.LogAction(ctx, actor, operation, string(domain.KindToolIssuance), issuanceID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, actor domain.Actor, reason string) {
	al.LogAction(ctx, actor, "access_denied", "api", "", "denied", reason)
}
