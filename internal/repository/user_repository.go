package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

// UserRepository implements domain.UserRepository on top of a Store.
type UserRepository struct {
	users  *Collection[domain.User]
	logger *slog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(store domain.Store, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &UserRepository{
		users:  NewCollection[domain.User](store, domain.KindUser),
		logger: logger,
	}
}

// Create creates a new user and fills in its id and created_at.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	stored, err := r.users.Create(ctx, user)
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateKey) {
			r.logger.Error("failed to create user",
				slog.String("username", user.Username),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	*user = *stored
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := r.users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := r.users.FindOne(ctx, domain.Filter{"username": username})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := r.users.FindOne(ctx, domain.Filter{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// Update writes every field of an existing user
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	stored, err := r.users.Replace(ctx, user.ID, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	*user = *stored
	return nil
}

// List lists users, newest first
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	users, err := r.users.List(ctx, domain.ListOptions{OrderBy: "created_at", Desc: true})
	if err != nil {
		r.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
