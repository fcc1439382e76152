package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/auth"
	"github.com/aryan0dhankhar/mesledger/pkg/cache"
)

// ErrInvalidCredentials is returned for unknown users, wrong passwords and
// disabled accounts alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const userCacheTTL = time.Minute

// AuthService handles authentication operations
type AuthService struct {
	userRepo domain.UserRepository
	tokens   *auth.TokenManager
	authz    *security.AuthorizationService
	users    *cache.Cache[*domain.User]
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	tokens *auth.TokenManager,
	authz *security.AuthorizationService,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		authz:    authz,
		users:    cache.New[*domain.User](),
		logger:   logger,
	}
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string      `json:"user_id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"` // seconds
	TokenType string      `json:"token_type"`
}

// UserView is a user without its password hash.
type UserView struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

func viewOf(u *domain.User) *UserView {
	return &UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.Active(),
		CreatedAt: u.CreatedAt,
	}
}

// NewUserRequest is the input of CreateUser.
type NewUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// Login authenticates a user by username and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.Invalid("username", "username and password are required")
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login attempt with unknown username", slog.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if !user.Active() {
		s.logger.Info("login attempt on disabled account", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		TokenType: "Bearer",
	}, nil
}

// user loads a user by id through a short-lived cache.
func (s *AuthService) user(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := s.users.Get(id); ok {
		return u, nil
	}
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.users.Set(id, u, userCacheTTL)
	return u, nil
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*UserView, error) {
	if !actor.Authenticated {
		return nil, fmt.Errorf("me: not authenticated: %w", domain.ErrUnauthorized)
	}
	u, err := s.user(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return viewOf(u), nil
}

// ChangePassword changes the caller's password
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, oldPassword, newPassword string) error {
	if !actor.Authenticated {
		return fmt.Errorf("change password: not authenticated: %w", domain.ErrUnauthorized)
	}
	if len(newPassword) < 8 {
		return domain.Invalid("new_password", "must be at least 8 characters")
	}

	user, err := s.userRepo.GetByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(user.PasswordHash, oldPassword); err != nil {
		return domain.Invalid("old_password", "current password is incorrect")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return err
	}
	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return err
	}
	s.users.Delete(user.ID)

	s.logger.Info("user changed password", slog.String("user_id", user.ID))
	return nil
}

// CreateUser adds an account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, actor domain.Actor, req NewUserRequest) (*UserView, error) {
	if err := s.authz.Require(actor, domain.RolesAdmin, "create user"); err != nil {
		return nil, err
	}
	if len(req.Password) < 8 {
		return nil, domain.Invalid("password", "must be at least 8 characters")
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
	}
	user.ApplyDefaults(time.Now())
	if err := validateModel(user); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.String("created_by", actor.UserID),
	)
	return viewOf(user), nil
}

// ListUsers lists every account. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, actor domain.Actor) ([]*UserView, error) {
	if err := s.authz.Require(actor, domain.RolesAdmin, "list users"); err != nil {
		return nil, err
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UserView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	return out, nil
}
