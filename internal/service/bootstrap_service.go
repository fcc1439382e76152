package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security/auth"
)

// DefaultAccounts are seeded by Bootstrap. Each password is the username
// followed by "123".
var DefaultAccounts = []struct {
	Username string
	Role     domain.Role
}{
	{"admin", domain.RoleAdmin},
	{"manager", domain.RoleManager},
	{"operator", domain.RoleOperator},
	{"storekeeper", domain.RoleStorekeeper},
}

// BootstrapResult lists which default accounts were created or skipped.
type BootstrapResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// Bootstrap seeds the default accounts. An account is created only when
// its username is absent, so repeated runs change nothing.
func Bootstrap(ctx context.Context, users domain.UserRepository, logger *slog.Logger) (*BootstrapResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := &BootstrapResult{}
	for _, acct := range DefaultAccounts {
		_, err := users.GetByUsername(ctx, acct.Username)
		if err == nil {
			res.Skipped = append(res.Skipped, acct.Username)
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return res, fmt.Errorf("failed to look up %s: %w", acct.Username, err)
		}

		hash, err := auth.HashPassword(acct.Username + "123")
		if err != nil {
			return res, err
		}
		user := &domain.User{
			Username:     acct.Username,
			Email:        acct.Username + "@admin.com",
			PasswordHash: hash,
			Role:         acct.Role,
		}
		user.ApplyDefaults(time.Now())
		if err := users.Create(ctx, user); err != nil {
			return res, fmt.Errorf("failed to seed %s: %w", acct.Username, err)
		}
		res.Created = append(res.Created, acct.Username)
		logger.Info("seeded user",
			slog.String("username", acct.Username),
			slog.String("role", string(acct.Role)),
		)
	}
	return res, nil
}
