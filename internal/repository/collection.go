package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

// Collection is a typed view of one kind in a Store. T is a model struct
// embedding domain.Base.
type Collection[T any] struct {
	store domain.Store
	kind  domain.Kind
}

// NewCollection binds a model type to a kind.
func NewCollection[T any](store domain.Store, kind domain.Kind) *Collection[T] {
	return &Collection[T]{store: store, kind: kind}
}

// Encode turns a model into stored attributes, dropping store-owned fields.
func Encode(v any) (domain.Attrs, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	attrs := domain.Attrs{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	for k := range reserved {
		delete(attrs, k)
	}
	return attrs, nil
}

// DecodeInto fills the model pointed to by dst from a stored record.
func DecodeInto(rec *domain.Record, dst any) error {
	doc := make(map[string]any, len(rec.Attrs)+2)
	for k, v := range rec.Attrs {
		doc[k] = v
	}
	doc["id"] = rec.ID
	doc["created_at"] = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	return nil
}

func (c *Collection[T]) decode(rec *domain.Record) (*T, error) {
	var v T
	if err := DecodeInto(rec, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Collection[T]) decodeAll(recs []*domain.Record) ([]*T, error) {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Create stores v and returns the stored copy with id and created_at set.
func (c *Collection[T]) Create(ctx context.Context, v *T) (*T, error) {
	attrs, err := Encode(v)
	if err != nil {
		return nil, err
	}
	rec, err := c.store.Create(ctx, c.kind, attrs)
	if err != nil {
		return nil, err
	}
	return c.decode(rec)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	rec, err := c.store.Get(ctx, c.kind, id)
	if err != nil {
		return nil, err
	}
	return c.decode(rec)
}

func (c *Collection[T]) Find(ctx context.Context, filter domain.Filter) ([]*T, error) {
	recs, err := c.store.Find(ctx, c.kind, filter)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(recs)
}

// FindOne returns the first match or a NotFound error.
func (c *Collection[T]) FindOne(ctx context.Context, filter domain.Filter) (*T, error) {
	items, err := c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &domain.NotFoundError{Kind: c.kind, ID: fmt.Sprint(map[string]any(filter))}
	}
	return items[0], nil
}

func (c *Collection[T]) List(ctx context.Context, opts domain.ListOptions) ([]*T, error) {
	recs, err := c.store.List(ctx, c.kind, opts)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(recs)
}

// Each visits every record in creation order, one page at a time.
func (c *Collection[T]) Each(ctx context.Context, pageSize int, fn func(*T) error) error {
	if pageSize <= 0 {
		pageSize = 200
	}
	for offset := 0; ; offset += pageSize {
		items, err := c.List(ctx, domain.ListOptions{Limit: pageSize, Offset: offset})
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(items) < pageSize {
			return nil
		}
	}
}

func (c *Collection[T]) Update(ctx context.Context, id string, patch domain.Attrs) (*T, error) {
	rec, err := c.store.Update(ctx, c.kind, id, patch)
	if err != nil {
		return nil, err
	}
	return c.decode(rec)
}

// Replace writes every field of v over the stored record with v's id.
func (c *Collection[T]) Replace(ctx context.Context, id string, v *T) (*T, error) {
	attrs, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, id, attrs)
}

func (c *Collection[T]) Count(ctx context.Context, filter domain.Filter) (int64, error) {
	return c.store.Count(ctx, c.kind, filter)
}
