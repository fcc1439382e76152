package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/security"
)

// RecordService is the generic, role-gated CRUD surface over every
// registered kind except users.
type RecordService struct {
	store  domain.Store
	codes  *CodeGenerator
	authz  *security.AuthorizationService
	now    func() time.Time
	logger *slog.Logger
}

// NewRecordService creates a new record service
func NewRecordService(store domain.Store, codes *CodeGenerator, authz *security.AuthorizationService, logger *slog.Logger) *RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		store:  store,
		codes:  codes,
		authz:  authz,
		now:    time.Now,
		logger: logger,
	}
}

// Document is the JSON shape of a record returned to callers.
type Document map[string]any

// NewDocument flattens a record into its attributes plus id and created_at.
func NewDocument(rec *domain.Record) Document {
	doc := make(Document, len(rec.Attrs)+2)
	for k, v := range rec.Attrs {
		doc[k] = v
	}
	doc["id"] = rec.ID
	doc["created_at"] = rec.CreatedAt
	return doc
}

func (s *RecordService) spec(kind domain.Kind) (domain.KindSpec, error) {
	spec, ok := domain.Lookup(kind)
	if !ok {
		return domain.KindSpec{}, &domain.NotFoundError{Kind: "kinds", ID: string(kind)}
	}
	if kind == domain.KindUser {
		return domain.KindSpec{}, domain.Invalid("kind", "users are managed through user administration")
	}
	return spec, nil
}

func (s *RecordService) writable(actor domain.Actor, spec domain.KindSpec) error {
	if err := s.authz.CanWrite(actor, spec.Kind); err != nil {
		return err
	}
	if spec.LedgerManaged {
		return domain.Invalid("kind", fmt.Sprintf("%s are written by the tool ledger only", spec.Kind))
	}
	return nil
}

// resolveReferences checks that every referenced record exists.
func resolveReferences(ctx context.Context, store domain.Store, model any) error {
	r, ok := model.(domain.Referencer)
	if !ok {
		return nil
	}
	for _, ref := range r.References() {
		if _, err := store.Get(ctx, ref.Kind, ref.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%s: %w", ref.Field, err)
			}
			return fmt.Errorf("failed to resolve %s: %w", ref.Field, err)
		}
	}
	return nil
}

// prepare decodes attrs into the kind's model, applies defaults and
// validates it, then resolves its references.
func (s *RecordService) prepare(ctx context.Context, spec domain.KindSpec, attrs domain.Attrs, applyDefaults bool) (any, error) {
	model := spec.New()
	if err := decodeStrict(attrs, model); err != nil {
		return nil, err
	}
	if d, ok := model.(domain.Defaulter); ok && applyDefaults {
		d.ApplyDefaults(s.now())
	}
	if err := validateModel(model); err != nil {
		return nil, err
	}
	if err := resolveReferences(ctx, s.store, model); err != nil {
		return nil, err
	}
	return model, nil
}

func withoutStoreFields(attrs domain.Attrs) domain.Attrs {
	out := make(domain.Attrs, len(attrs))
	for k, v := range attrs {
		if k == "id" || k == "_id" || k == "created_at" {
			continue
		}
		out[k] = v
	}
	return out
}

// Create validates attrs as a new record of kind and stores it. A missing
// generated code is assigned.
func (s *RecordService) Create(ctx context.Context, actor domain.Actor, kind domain.Kind, attrs domain.Attrs) (*domain.Record, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}
	if err := s.writable(actor, spec); err != nil {
		return nil, err
	}

	attrs = withoutStoreFields(attrs)
	needsCode := spec.CodePrefix != "" && isBlank(attrs[spec.CodeField])
	if needsCode {
		// Validation runs before a code exists.
		attrs[spec.CodeField] = FormatCode(spec.CodePrefix, s.now(), 0)
	}
	model, err := s.prepare(ctx, spec, attrs, true)
	if err != nil {
		return nil, err
	}
	encoded, err := repository.Encode(model)
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	if needsCode {
		_, err = s.codes.Assign(ctx, kind, s.now(), func(ctx context.Context, code string) error {
			encoded[spec.CodeField] = code
			var err error
			rec, err = s.store.Create(ctx, kind, encoded)
			return err
		})
	} else {
		rec, err = s.store.Create(ctx, kind, encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kind, err)
	}

	s.logger.Info("record created",
		slog.String("kind", string(kind)),
		slog.String("id", rec.ID),
		slog.String("user_id", actor.UserID),
	)
	return rec, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return v == nil || ok && s == ""
}

// Get returns one record.
func (s *RecordService) Get(ctx context.Context, actor domain.Actor, kind domain.Kind, id string) (*domain.Record, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanRead(actor, spec.Kind); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, kind, id)
}

// List returns records of kind filtered, ordered and paged by opts.
func (s *RecordService) List(ctx context.Context, actor domain.Actor, kind domain.Kind, opts domain.ListOptions) ([]*domain.Record, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanRead(actor, spec.Kind); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}
	return s.store.List(ctx, kind, opts)
}

// Update applies patch to a record after validating the merged result.
// Protected fields cannot be patched and only patched keys are written.
func (s *RecordService) Update(ctx context.Context, actor domain.Actor, kind domain.Kind, id string, patch domain.Attrs) (*domain.Record, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return nil, err
	}
	if err := s.writable(actor, spec); err != nil {
		return nil, err
	}
	patch = withoutStoreFields(patch)
	if len(patch) == 0 {
		return nil, domain.Invalid("", "empty patch")
	}
	for field := range patch {
		if spec.IsProtected(field) {
			return nil, domain.Invalid(field, "cannot be changed directly")
		}
	}

	current, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	merged := make(domain.Attrs, len(current.Attrs)+len(patch))
	for k, v := range current.Attrs {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	model, err := s.prepare(ctx, spec, merged, false)
	if err != nil {
		return nil, err
	}
	encoded, err := repository.Encode(model)
	if err != nil {
		return nil, err
	}

	write := make(domain.Attrs, len(patch))
	for k := range patch {
		write[k] = encoded[k]
	}
	rec, err := s.store.Update(ctx, kind, id, write)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", kind, err)
	}

	s.logger.Info("record updated",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.String("user_id", actor.UserID),
		slog.Int("fields", len(write)),
	)
	return rec, nil
}

// PreviewCode returns the next free code for kind without reserving it.
func (s *RecordService) PreviewCode(ctx context.Context, actor domain.Actor, kind domain.Kind) (string, error) {
	spec, err := s.spec(kind)
	if err != nil {
		return "", err
	}
	if err := s.authz.CanRead(actor, spec.Kind); err != nil {
		return "", err
	}
	return s.codes.Generate(ctx, kind, s.now())
}
