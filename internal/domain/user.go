package domain

import (
	"context"
	"time"
)

// Role is the job function of a user. Roles form no hierarchy.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleManager     Role = "Manager"
	RoleOperator    Role = "Operator"
	RoleStorekeeper Role = "Storekeeper"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOperator, RoleStorekeeper:
		return true
	}
	return false
}

// Role sets used by write policies.
var (
	RolesAdmin      = []Role{RoleAdmin}
	RolesManagement = []Role{RoleAdmin, RoleManager}
	RolesStores     = []Role{RoleAdmin, RoleManager, RoleStorekeeper}
	RolesShopFloor  = []Role{RoleAdmin, RoleManager, RoleOperator}
)

// User represents a system user
type User struct {
	Base
	Username     string `json:"username" validate:"required,max=80"`
	Email        string `json:"email" validate:"required,email"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Role         Role   `json:"role"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

func (u *User) ApplyDefaults(time.Time) {
	if u.Role == "" {
		u.Role = RoleOperator
	}
	if u.IsActive == nil {
		u.IsActive = Bool(true)
	}
}

func (u *User) Check() error {
	if !u.Role.Valid() {
		return Invalid("role", "unknown role "+string(u.Role))
	}
	return nil
}

// Active reports whether the account may log in.
func (u *User) Active() bool { return u.IsActive == nil || *u.IsActive }

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	List(ctx context.Context) ([]*User, error)
}

// Actor is the authenticated caller of a guarded operation.
type Actor struct {
	UserID        string
	Username      string
	Role          Role
	Authenticated bool
}

// SystemActor is used by operational tooling such as bootstrap.
var SystemActor = Actor{UserID: "system", Username: "system", Role: RoleAdmin, Authenticated: true}
