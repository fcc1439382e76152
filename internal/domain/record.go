package domain

import (
	"context"
	"time"
)

// Attrs is the flat attribute bag stored for a record.
type Attrs map[string]any

// Filter selects records whose attributes equal every given value.
type Filter map[string]any

// Record is a stored document of one kind.
type Record struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time
	Attrs     Attrs
}

// ListOptions filters, orders and pages a listing. OrderBy may name an
// attribute or "created_at"; an empty OrderBy lists by created_at.
type ListOptions struct {
	Filter  Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store persists records of every kind. Unique and required fields are
// enforced per kind from the registry.
type Store interface {
	Create(ctx context.Context, kind Kind, attrs Attrs) (*Record, error)
	Get(ctx context.Context, kind Kind, id string) (*Record, error)
	Find(ctx context.Context, kind Kind, filter Filter) ([]*Record, error)
	List(ctx context.Context, kind Kind, opts ListOptions) ([]*Record, error)
	Count(ctx context.Context, kind Kind, filter Filter) (int64, error)
	Update(ctx context.Context, kind Kind, id string, patch Attrs) (*Record, error)

	// Increment atomically adds delta to an integer field, failing with
	// ErrGuard when the result would be below floor.
	Increment(ctx context.Context, kind Kind, id, field string, delta, floor int64) (*Record, error)
	// CompareAndSet applies patch only if every field in expect still holds
	// the expected value, otherwise it fails with ErrConflict.
	CompareAndSet(ctx context.Context, kind Kind, id string, expect, patch Attrs) (*Record, error)
	// RunInTx runs fn so that every store call made with the context it
	// receives commits or rolls back together.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// IDGenerator yields opaque record identifiers.
type IDGenerator interface {
	NewID() string
}

// Base carries the identity every stored model shares.
type Base struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Defaulter fills optional fields that were left unset.
type Defaulter interface {
	ApplyDefaults(now time.Time)
}

// Checker validates rules that struct tags cannot express.
type Checker interface {
	Check() error
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int64 returns a pointer to n.
func Int64(n int64) *int64 { return &n }
