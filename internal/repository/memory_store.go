package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

type memTxKey struct{}

// MemoryStore implements domain.Store in process memory. Records are
// immutable once stored; writers replace them.
type MemoryStore struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	records map[domain.Kind]map[string]*domain.Record
	ids     domain.IDGenerator
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(ids domain.IDGenerator, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		records: make(map[domain.Kind]map[string]*domain.Record),
		ids:     ids,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	return ctx.Value(memTxKey{}) == s
}

// lockWrite serializes writers behind any running transaction.
func (s *MemoryStore) lockWrite(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func cloneRecord(r *domain.Record) *domain.Record {
	return &domain.Record{ID: r.ID, Kind: r.Kind, CreatedAt: r.CreatedAt, Attrs: copyAttrs(r.Attrs)}
}

func (s *MemoryStore) table(kind domain.Kind) map[string]*domain.Record {
	t, ok := s.records[kind]
	if !ok {
		t = make(map[string]*domain.Record)
		s.records[kind] = t
	}
	return t
}

// checkUnique must be called with mu held.
func (s *MemoryStore) checkUnique(spec domain.KindSpec, selfID string, attrs domain.Attrs) error {
	for _, field := range spec.UniqueFields() {
		value, ok := attrs[field]
		if !ok || value == nil {
			continue
		}
		for id, rec := range s.records[spec.Kind] {
			if id == selfID {
				continue
			}
			if valuesEqual(rec.Attrs[field], value) {
				return &domain.DuplicateKeyError{Kind: spec.Kind, Field: field, Value: value}
			}
		}
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, kind domain.Kind, attrs domain.Attrs) (*domain.Record, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return nil, err
	}
	norm, err := normalizeAttrs(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(spec, norm); err != nil {
		return nil, err
	}

	unlock := s.lockWrite(ctx)
	defer unlock()

	if err := s.checkUnique(spec, "", norm); err != nil {
		return nil, err
	}
	rec := &domain.Record{ID: s.ids.NewID(), Kind: kind, CreatedAt: s.now().UTC(), Attrs: norm}
	s.table(kind)[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[kind][id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: kind, ID: id}
	}
	return cloneRecord(rec), nil
}

func matches(rec *domain.Record, filter domain.Filter) bool {
	for field, want := range filter {
		if !valuesEqual(rec.Attrs[field], want) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Find(ctx context.Context, kind domain.Kind, filter domain.Filter) ([]*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Record{}
	for _, rec := range s.records[kind] {
		if matches(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	sortRecords(out, "", false)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, kind domain.Kind, opts domain.ListOptions) ([]*domain.Record, error) {
	if opts.OrderBy != "" && opts.OrderBy != "created_at" {
		if err := validField(opts.OrderBy); err != nil {
			return nil, err
		}
	}
	all, err := s.Find(ctx, kind, opts.Filter)
	if err != nil {
		return nil, err
	}
	sortRecords(all, opts.OrderBy, opts.Desc)
	return page(all, opts.Offset, opts.Limit), nil
}

func (s *MemoryStore) Count(ctx context.Context, kind domain.Kind, filter domain.Filter) (int64, error) {
	recs, err := s.Find(ctx, kind, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (s *MemoryStore) Update(ctx context.Context, kind domain.Kind, id string, patch domain.Attrs) (*domain.Record, error) {
	return s.CompareAndSet(ctx, kind, id, nil, patch)
}

func (s *MemoryStore) CompareAndSet(ctx context.Context, kind domain.Kind, id string, expect, patch domain.Attrs) (*domain.Record, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return nil, err
	}
	norm, err := normalizeAttrs(patch)
	if err != nil {
		return nil, err
	}

	unlock := s.lockWrite(ctx)
	defer unlock()

	current, ok := s.records[kind][id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: kind, ID: id}
	}
	for field, want := range expect {
		if !valuesEqual(current.Attrs[field], want) {
			return nil, fmt.Errorf("%s %s field %s: %w", kind, id, field, domain.ErrConflict)
		}
	}

	merged := copyAttrs(current.Attrs)
	for k, v := range norm {
		merged[k] = v
	}
	if err := checkRequired(spec, merged); err != nil {
		return nil, err
	}
	if err := s.checkUnique(spec, id, merged); err != nil {
		return nil, err
	}
	next := &domain.Record{ID: id, Kind: kind, CreatedAt: current.CreatedAt, Attrs: merged}
	s.records[kind][id] = next
	return cloneRecord(next), nil
}

func (s *MemoryStore) Increment(ctx context.Context, kind domain.Kind, id, field string, delta, floor int64) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	if err := validField(field); err != nil {
		return nil, err
	}

	unlock := s.lockWrite(ctx)
	defer unlock()

	current, ok := s.records[kind][id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: kind, ID: id}
	}
	value, ok := toInt64(current.Attrs[field])
	if !ok {
		return nil, domain.Invalid(field, "is not an integer")
	}
	if value+delta < floor {
		return nil, fmt.Errorf("%s %s %s=%d%+d: %w", kind, id, field, value, delta, domain.ErrGuard)
	}
	merged := copyAttrs(current.Attrs)
	merged[field] = float64(value + delta)
	next := &domain.Record{ID: id, Kind: kind, CreatedAt: current.CreatedAt, Attrs: merged}
	s.records[kind][id] = next
	return cloneRecord(next), nil
}

// RunInTx snapshots the store and restores it if fn fails. Transactions
// are serialized; nested calls join the outer transaction.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[domain.Kind]map[string]*domain.Record, len(s.records))
	for kind, table := range s.records {
		cp := make(map[string]*domain.Record, len(table))
		for id, rec := range table {
			cp[id] = rec
		}
		snapshot[kind] = cp
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.mu.Lock()
		s.records = snapshot
		s.mu.Unlock()
		s.logger.Debug("memory transaction rolled back", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func sortRecords(recs []*domain.Record, orderBy string, desc bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		var c int
		if orderBy == "" || orderBy == "created_at" {
			c = recs[i].CreatedAt.Compare(recs[j].CreatedAt)
		} else {
			c = compareValues(recs[i].Attrs[orderBy], recs[j].Attrs[orderBy])
		}
		if c == 0 {
			c = compareIDs(recs[i].ID, recs[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// compareIDs orders decimal snowflake ids numerically.
func compareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func page(recs []*domain.Record, offset, limit int) []*domain.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return []*domain.Record{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
