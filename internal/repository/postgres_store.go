package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

type pgTxKey struct{}

type pgTx struct {
	owner *PostgresStore
	tx    *sqlx.Tx
}

// PostgresStore implements domain.Store with one JSONB table per kind.
// Unique fields are backed by expression indexes on the document.
type PostgresStore struct {
	db     *sqlx.DB
	ids    domain.IDGenerator
	logger *slog.Logger
}

type pgRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	Doc       []byte    `db:"doc"`
}

// NewPostgresStore creates the store and makes sure every table and index exists.
func NewPostgresStore(ctx context.Context, db *sqlx.DB, ids domain.IDGenerator, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PostgresStore{db: db, ids: ids, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates missing tables and unique indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, kind := range domain.Kinds() {
		spec, _ := domain.Lookup(kind)
		table := string(kind)
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				doc JSONB NOT NULL DEFAULT '{}'::jsonb
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at)`, table, table),
		}
		for _, field := range spec.UniqueFields() {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_key ON %s ((doc->>'%s'))`,
				table, field, table, field,
			))
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to prepare table %s: %w", table, err)
			}
		}
	}
	s.logger.Info("postgres schema ready", slog.Int("tables", len(domain.Kinds())))
	return nil
}

func (s *PostgresStore) ext(ctx context.Context) sqlx.ExtContext {
	if t, ok := ctx.Value(pgTxKey{}).(*pgTx); ok && t.owner == s {
		return t.tx
	}
	return s.db
}

func (s *PostgresStore) toRecord(kind domain.Kind, row pgRow) (*domain.Record, error) {
	attrs := domain.Attrs{}
	if len(row.Doc) > 0 {
		if err := json.Unmarshal(row.Doc, &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", kind, row.ID, err)
		}
	}
	return &domain.Record{ID: row.ID, Kind: kind, CreatedAt: row.CreatedAt.UTC(), Attrs: attrs}, nil
}

func (s *PostgresStore) toRecords(kind domain.Kind, rows []pgRow) ([]*domain.Record, error) {
	out := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := s.toRecord(kind, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// mapError translates driver errors into domain errors.
func (s *PostgresStore) mapError(kind domain.Kind, attrs domain.Attrs, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		field := strings.TrimSuffix(strings.TrimPrefix(pqErr.Constraint, string(kind)+"_"), "_key")
		return &domain.DuplicateKeyError{Kind: kind, Field: field, Value: attrs[field]}
	}
	return err
}

// jsonArg encodes v for a jsonb parameter; nil maps become {}.
func jsonArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode query document: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

func (s *PostgresStore) Create(ctx context.Context, kind domain.Kind, attrs domain.Attrs) (*domain.Record, error) {
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
	doc, err := jsonArg(norm)
	if err != nil {
		return nil, err
	}

	var row pgRow
	query := fmt.Sprintf(`INSERT INTO %s (id, created_at, doc) VALUES ($1, $2, $3::jsonb) RETURNING id, created_at, doc`, kind)
	if err := sqlx.GetContext(ctx, s.ext(ctx), &row, query, s.ids.NewID(), time.Now().UTC(), doc); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kind, s.mapError(kind, norm, err))
	}
	return s.toRecord(kind, row)
}

func (s *PostgresStore) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	var row pgRow
	query := fmt.Sprintf(`SELECT id, created_at, doc FROM %s WHERE id = $1`, kind)
	if err := sqlx.GetContext(ctx, s.ext(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Kind: kind, ID: id}
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return s.toRecord(kind, row)
}

func (s *PostgresStore) Find(ctx context.Context, kind domain.Kind, filter domain.Filter) ([]*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	match, err := jsonArg(filter)
	if err != nil {
		return nil, err
	}
	var rows []pgRow
	query := fmt.Sprintf(`SELECT id, created_at, doc FROM %s WHERE doc @> $1::jsonb ORDER BY created_at, id`, kind)
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &rows, query, match); err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", kind, err)
	}
	return s.toRecords(kind, rows)
}

func (s *PostgresStore) List(ctx context.Context, kind domain.Kind, opts domain.ListOptions) ([]*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	order := "created_at"
	if opts.OrderBy != "" && opts.OrderBy != "created_at" {
		if err := validField(opts.OrderBy); err != nil {
			return nil, err
		}
		order = fmt.Sprintf("doc->'%s'", opts.OrderBy)
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	match, err := jsonArg(opts.Filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, created_at, doc FROM %s WHERE doc @> $1::jsonb ORDER BY %s %s NULLS FIRST, id %s`, kind, order, dir, dir)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	var rows []pgRow
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &rows, query, match); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return s.toRecords(kind, rows)
}

func (s *PostgresStore) Count(ctx context.Context, kind domain.Kind, filter domain.Filter) (int64, error) {
	if _, err := lookupSpec(kind); err != nil {
		return 0, err
	}
	match, err := jsonArg(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE doc @> $1::jsonb`, kind)
	if err := sqlx.GetContext(ctx, s.ext(ctx), &n, query, match); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, kind domain.Kind, id string, patch domain.Attrs) (*domain.Record, error) {
	return s.CompareAndSet(ctx, kind, id, nil, patch)
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, kind domain.Kind, id string, expect, patch domain.Attrs) (*domain.Record, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return nil, err
	}
	norm, err := normalizeAttrs(patch)
	if err != nil {
		return nil, err
	}
	for _, field := range spec.RequiredFields() {
		if v, ok := norm[field]; ok && isEmpty(v) {
			return nil, domain.Invalid(field, "is required")
		}
	}
	doc, err := jsonArg(norm)
	if err != nil {
		return nil, err
	}
	match, err := jsonArg(normalizeValue(expect))
	if err != nil {
		return nil, err
	}

	var row pgRow
	query := fmt.Sprintf(`UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1 AND doc @> $3::jsonb RETURNING id, created_at, doc`, kind)
	err = sqlx.GetContext(ctx, s.ext(ctx), &row, query, id, doc, match)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, kind, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", kind, s.mapError(kind, norm, err))
	}
	return s.toRecord(kind, row)
}

func (s *PostgresStore) Increment(ctx context.Context, kind domain.Kind, id, field string, delta, floor int64) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	if err := validField(field); err != nil {
		return nil, err
	}

	var row pgRow
	query := fmt.Sprintf(`UPDATE %s
		SET doc = jsonb_set(doc, ARRAY[$2::text], to_jsonb(COALESCE((doc->>$2::text)::bigint, 0) + $3::bigint))
		WHERE id = $1 AND COALESCE((doc->>$2::text)::bigint, 0) + $3::bigint >= $4::bigint
		RETURNING id, created_at, doc`, kind)
	err := sqlx.GetContext(ctx, s.ext(ctx), &row, query, id, field, delta, floor)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, kind, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%s %s %s%+d: %w", kind, id, field, delta, domain.ErrGuard)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment %s.%s: %w", kind, field, err)
	}
	return s.toRecord(kind, row)
}

// RunInTx runs fn inside a database transaction. Nested calls join it.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := ctx.Value(pgTxKey{}).(*pgTx); ok && t.owner == s {
		return fn(ctx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, pgTxKey{}, &pgTx{owner: s, tx: tx})); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to the caller.
func (s *PostgresStore) Close(context.Context) error { return nil }
