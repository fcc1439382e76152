package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

// MongoStore implements domain.Store with one collection per kind.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	ids          domain.IDGenerator
	transactions bool
	logger       *slog.Logger
}

// MongoOptions configures a MongoStore.
type MongoOptions struct {
	Database string
	// Transactions requires a replica set; standalone servers must disable it.
	Transactions bool
}

// NewMongoStore creates the store and ensures unique indexes for every kind.
func NewMongoStore(ctx context.Context, client *mongo.Client, opts MongoOptions, ids domain.IDGenerator, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MongoStore{
		client:       client,
		db:           client.Database(opts.Database),
		ids:          ids,
		transactions: opts.Transactions,
		logger:       logger,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates a unique index for each unique field.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, kind := range domain.Kinds() {
		spec, _ := domain.Lookup(kind)
		models := []mongo.IndexModel{{Keys: bson.D{{Key: "created_at", Value: 1}}}}
		for _, field := range spec.UniqueFields() {
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true).SetName(string(kind) + "_" + field + "_key"),
			})
		}
		if _, err := s.db.Collection(string(kind)).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", kind, err)
		}
	}
	s.logger.Info("mongo indexes ready", slog.String("database", s.db.Name()))
	return nil
}

func (s *MongoStore) coll(kind domain.Kind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

// fromBSON converts driver values back into the JSON-shaped attribute form.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}

func (s *MongoStore) toRecord(kind domain.Kind, doc bson.M) (*domain.Record, error) {
	id, _ := doc["_id"].(string)
	rec := &domain.Record{ID: id, Kind: kind, Attrs: domain.Attrs{}}
	if created, ok := doc["created_at"].(primitive.DateTime); ok {
		rec.CreatedAt = created.Time().UTC()
	}
	for k, v := range doc {
		if _, skip := reserved[k]; skip {
			continue
		}
		rec.Attrs[k] = fromBSON(v)
	}
	return rec, nil
}

func (s *MongoStore) decodeCursor(ctx context.Context, kind domain.Kind, cur *mongo.Cursor) ([]*domain.Record, error) {
	defer cur.Close(ctx)
	out := []*domain.Record{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
		}
		rec, err := s.toRecord(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", kind, err)
	}
	return out, nil
}

func (s *MongoStore) mapError(kind domain.Kind, attrs domain.Attrs, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	spec, _ := domain.Lookup(kind)
	var we mongo.WriteException
	var ce mongo.CommandError
	msg := err.Error()
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		msg = we.WriteErrors[0].Message
	} else if errors.As(err, &ce) {
		msg = ce.Message
	}
	for _, field := range spec.UniqueFields() {
		if strings.Contains(msg, string(kind)+"_"+field+"_key") {
			return &domain.DuplicateKeyError{Kind: kind, Field: field, Value: attrs[field]}
		}
	}
	return &domain.DuplicateKeyError{Kind: kind, Field: spec.CodeField}
}

func toBSONFilter(filter domain.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		out[k] = normalizeValue(v)
	}
	return out
}

func (s *MongoStore) Create(ctx context.Context, kind domain.Kind, attrs domain.Attrs) (*domain.Record, error) {
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

	doc := bson.M{}
	for k, v := range norm {
		doc[k] = v
	}
	id := s.ids.NewID()
	created := time.Now().UTC().Truncate(time.Millisecond)
	doc["_id"] = id
	doc["created_at"] = created
	if _, err := s.coll(kind).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kind, s.mapError(kind, norm, err))
	}
	return &domain.Record{ID: id, Kind: kind, CreatedAt: created, Attrs: norm}, nil
}

func (s *MongoStore) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	var doc bson.M
	err := s.coll(kind).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &domain.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return s.toRecord(kind, doc)
}

func (s *MongoStore) Find(ctx context.Context, kind domain.Kind, filter domain.Filter) ([]*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll(kind).Find(ctx, toBSONFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", kind, err)
	}
	return s.decodeCursor(ctx, kind, cur)
}

func (s *MongoStore) List(ctx context.Context, kind domain.Kind, opts domain.ListOptions) ([]*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	order := "created_at"
	if opts.OrderBy != "" && opts.OrderBy != "created_at" {
		if err := validField(opts.OrderBy); err != nil {
			return nil, err
		}
		order = opts.OrderBy
	}
	dir := 1
	if opts.Desc {
		dir = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: order, Value: dir}, {Key: "_id", Value: dir}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	cur, err := s.coll(kind).Find(ctx, toBSONFilter(opts.Filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return s.decodeCursor(ctx, kind, cur)
}

func (s *MongoStore) Count(ctx context.Context, kind domain.Kind, filter domain.Filter) (int64, error) {
	if _, err := lookupSpec(kind); err != nil {
		return 0, err
	}
	n, err := s.coll(kind).CountDocuments(ctx, toBSONFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}

func (s *MongoStore) Update(ctx context.Context, kind domain.Kind, id string, patch domain.Attrs) (*domain.Record, error) {
	return s.CompareAndSet(ctx, kind, id, nil, patch)
}

func (s *MongoStore) CompareAndSet(ctx context.Context, kind domain.Kind, id string, expect, patch domain.Attrs) (*domain.Record, error) {
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

	filter := bson.M{"_id": id}
	for k, v := range expect {
		filter[k] = normalizeValue(v)
	}
	set := bson.M{}
	for k, v := range norm {
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(set) == 0 {
		return s.Get(ctx, kind, id)
	}

	var doc bson.M
	err = s.coll(kind).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, kind, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", kind, s.mapError(kind, norm, err))
	}
	return s.toRecord(kind, doc)
}

func (s *MongoStore) Increment(ctx context.Context, kind domain.Kind, id, field string, delta, floor int64) (*domain.Record, error) {
	if _, err := lookupSpec(kind); err != nil {
		return nil, err
	}
	if err := validField(field); err != nil {
		return nil, err
	}

	filter := bson.M{"_id": id, field: bson.M{"$gte": floor - delta}}
	update := bson.M{"$inc": bson.M{field: delta}}
	var doc bson.M
	err := s.coll(kind).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, kind, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%s %s %s%+d: %w", kind, id, field, delta, domain.ErrGuard)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment %s.%s: %w", kind, field, err)
	}
	return s.toRecord(kind, doc)
}

// RunInTx runs fn in a session transaction when transactions are enabled.
// Without them fn runs directly and callers rely on their own compensation.
func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Transactional reports whether RunInTx is atomic.
func (s *MongoStore) Transactional() bool { return s.transactions }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
