package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

// Authorize reports whether actor is authenticated and holds one of roles.
// Roles form no hierarchy: Admin passes only where Admin is listed.
func Authorize(actor domain.Actor, roles []domain.Role) bool {
	return actor.Authenticated && slices.Contains(roles, actor.Role)
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// Require fails with domain.ErrUnauthorized unless Authorize passes.
func (as *AuthorizationService) Require(actor domain.Actor, roles []domain.Role, action string) error {
	if Authorize(actor, roles) {
		return nil
	}
	as.logger.Warn("permission denied",
		slog.String("user_id", actor.UserID),
		slog.String("role", string(actor.Role)),
		slog.String("action", action),
	)
	if !actor.Authenticated {
		return fmt.Errorf("%s: not authenticated: %w", action, domain.ErrUnauthorized)
	}
	return fmt.Errorf("%s: role %s not permitted: %w", action, actor.Role, domain.ErrUnauthorized)
}

// CanRead allows any authenticated actor.
func (as *AuthorizationService) CanRead(actor domain.Actor, kind domain.Kind) error {
	if actor.Authenticated {
		return nil
	}
	return fmt.Errorf("read %s: not authenticated: %w", kind, domain.ErrUnauthorized)
}

// CanWrite applies the write policy registered for kind.
func (as *AuthorizationService) CanWrite(actor domain.Actor, kind domain.Kind) error {
	spec, ok := domain.Lookup(kind)
	if !ok {
		return domain.Invalid("kind", fmt.Sprintf("unknown kind %q", kind))
	}
	return as.Require(actor, spec.WriteRoles, "write "+string(kind))
}
