package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/idgen"
)

type storeFactory func(t *testing.T) domain.Store

// backends returns every store the suite can reach. Postgres and Mongo run
// only when their test URLs are set.
func backends() map[string]storeFactory {
	out := map[string]storeFactory{
		"memory": func(t *testing.T) domain.Store {
			return NewMemoryStore(idgen.MustNew(1), nil)
		},
	}
	if dsn := os.Getenv("MES_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) domain.Store {
			ctx := context.Background()
			db, err := sqlx.Connect("postgres", dsn)
			require.NoError(t, err)
			for _, kind := range domain.Kinds() {
				_, _ = db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", kind))
			}
			store, err := NewPostgresStore(ctx, db, idgen.MustNew(2), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return store
		}
	}
	if uri := os.Getenv("MES_TEST_MONGO_URI"); uri != "" {
		out["mongo"] = func(t *testing.T) domain.Store {
			ctx := context.Background()
			client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
			require.NoError(t, err)
			name := fmt.Sprintf("mes_test_%d", time.Now().UnixNano())
			store, err := NewMongoStore(ctx, client, MongoOptions{Database: name}, idgen.MustNew(3), nil)
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = client.Database(name).Drop(ctx)
				_ = client.Disconnect(ctx)
			})
			return store
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store domain.Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func toolAttrs(code string, qty int) domain.Attrs {
	return domain.Attrs{
		"tool_code":          code,
		"name":               "Drill " + code,
		"tool_type":          "Drill",
		"quantity_available": qty,
		"minimum_stock":      1,
		"is_active":          true,
	}
}

func TestStoreCreateGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		rec, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 5))
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := store.Get(ctx, domain.KindTool, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "TOOL-1", got.Attrs["tool_code"])
		assert.Equal(t, float64(5), got.Attrs["quantity_available"])
		assert.Equal(t, true, got.Attrs["is_active"])
	})
}

func TestStoreGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		_, err := store.Get(context.Background(), domain.KindTool, "404")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestStoreUniqueCode(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		_, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 1))
		require.NoError(t, err)

		_, err = store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 2))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrDuplicateKey))
		var dup *domain.DuplicateKeyError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "tool_code", dup.Field)
	})
}

func TestStoreUniqueSecondaryField(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		user := domain.Attrs{"username": "a", "email": "a@admin.com", "password_hash": "x"}
		_, err := store.Create(ctx, domain.KindUser, user)
		require.NoError(t, err)

		_, err = store.Create(ctx, domain.KindUser, domain.Attrs{"username": "b", "email": "a@admin.com", "password_hash": "x"})
		var dup *domain.DuplicateKeyError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "email", dup.Field)
	})
}

func TestStoreRequiredFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		attrs := toolAttrs("", 1)
		_, err := store.Create(ctx, domain.KindTool, attrs)
		assert.True(t, errors.Is(err, domain.ErrValidationFailed))

		rec, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-2", 1))
		require.NoError(t, err)
		_, err = store.Update(ctx, domain.KindTool, rec.ID, domain.Attrs{"name": ""})
		assert.True(t, errors.Is(err, domain.ErrValidationFailed))
	})
}

func TestStoreUnknownKind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		_, err := store.Create(context.Background(), domain.Kind("widgets"), domain.Attrs{"a": 1})
		assert.True(t, errors.Is(err, domain.ErrValidationFailed))
	})
}

func TestStoreFindAndCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		for i, status := range []string{"Created", "Completed", "Created"} {
			_, err := store.Create(ctx, domain.KindWorkOrder, domain.Attrs{
				"work_order_number": fmt.Sprintf("WO-%d", i),
				"quantity":          10,
				"status":            status,
			})
			require.NoError(t, err)
		}

		found, err := store.Find(ctx, domain.KindWorkOrder, domain.Filter{"status": "Created"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "WO-0", found[0].Attrs["work_order_number"])

		n, err := store.Count(ctx, domain.KindWorkOrder, domain.Filter{"status": "Completed"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.Count(ctx, domain.KindWorkOrder, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestStoreListOrderingAndPaging(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		for i, qty := range []int{7, 3, 9} {
			_, err := store.Create(ctx, domain.KindTool, toolAttrs(fmt.Sprintf("TOOL-%d", i), qty))
			require.NoError(t, err)
		}

		newest, err := store.List(ctx, domain.KindTool, domain.ListOptions{Desc: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, "TOOL-2", newest[0].Attrs["tool_code"])
		assert.Equal(t, "TOOL-1", newest[1].Attrs["tool_code"])

		byQty, err := store.List(ctx, domain.KindTool, domain.ListOptions{OrderBy: "quantity_available"})
		require.NoError(t, err)
		require.Len(t, byQty, 3)
		assert.Equal(t, float64(3), byQty[0].Attrs["quantity_available"])
		assert.Equal(t, float64(9), byQty[2].Attrs["quantity_available"])

		rest, err := store.List(ctx, domain.KindTool, domain.ListOptions{Offset: 2})
		require.NoError(t, err)
		require.Len(t, rest, 1)

		filtered, err := store.List(ctx, domain.KindTool, domain.ListOptions{
			Filter: domain.Filter{"tool_type": "Drill"}, OrderBy: "quantity_available", Desc: true, Limit: 1,
		})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, float64(9), filtered[0].Attrs["quantity_available"])

		_, err = store.List(ctx, domain.KindTool, domain.ListOptions{OrderBy: "name; drop"})
		assert.True(t, errors.Is(err, domain.ErrValidationFailed))
	})
}

func TestStoreIncrementGuard(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		rec, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 5))
		require.NoError(t, err)

		updated, err := store.Increment(ctx, domain.KindTool, rec.ID, "quantity_available", -3, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(2), updated.Attrs["quantity_available"])

		_, err = store.Increment(ctx, domain.KindTool, rec.ID, "quantity_available", -3, 0)
		assert.True(t, errors.Is(err, domain.ErrGuard))

		got, err := store.Get(ctx, domain.KindTool, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(2), got.Attrs["quantity_available"])

		_, err = store.Increment(ctx, domain.KindTool, "missing", "quantity_available", 1, 0)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestStoreCompareAndSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		rec, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 5))
		require.NoError(t, err)

		_, err = store.CompareAndSet(ctx, domain.KindTool, rec.ID,
			domain.Attrs{"quantity_available": 4}, domain.Attrs{"quantity_available": 10})
		assert.True(t, errors.Is(err, domain.ErrConflict))

		updated, err := store.CompareAndSet(ctx, domain.KindTool, rec.ID,
			domain.Attrs{"quantity_available": 5}, domain.Attrs{"quantity_available": 10, "location": "Rack A"})
		require.NoError(t, err)
		assert.Equal(t, float64(10), updated.Attrs["quantity_available"])
		assert.Equal(t, "Rack A", updated.Attrs["location"])
		assert.Equal(t, "TOOL-1", updated.Attrs["tool_code"])
		assert.Equal(t, rec.CreatedAt.Unix(), updated.CreatedAt.Unix())
	})
}

func TestStoreUpdateUniqueCollision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		_, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 1))
		require.NoError(t, err)
		second, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-2", 1))
		require.NoError(t, err)

		_, err = store.Update(ctx, domain.KindTool, second.ID, domain.Attrs{"tool_code": "TOOL-1"})
		assert.True(t, errors.Is(err, domain.ErrDuplicateKey))
	})
}

func TestStoreRunInTxRollback(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		tool, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 5))
		require.NoError(t, err)

		boom := errors.New("boom")
		err = store.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := store.Increment(ctx, domain.KindTool, tool.ID, "quantity_available", -2, 0); err != nil {
				return err
			}
			if _, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-9", 1)); err != nil {
				return err
			}
			return boom
		})
		if mongoWithoutTx(store) {
			t.Skip("mongo transactions disabled")
		}
		require.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, domain.KindTool, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(5), got.Attrs["quantity_available"])
		n, err := store.Count(ctx, domain.KindTool, domain.Filter{"tool_code": "TOOL-9"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func mongoWithoutTx(store domain.Store) bool {
	m, ok := store.(*MongoStore)
	return ok && !m.transactions
}

func TestStoreRunInTxNested(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		err := store.RunInTx(ctx, func(ctx context.Context) error {
			return store.RunInTx(ctx, func(ctx context.Context) error {
				_, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 1))
				return err
			})
		})
		require.NoError(t, err)
		n, err := store.Count(ctx, domain.KindTool, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

// Concurrent guarded decrements never take stock below zero.
func TestStoreConcurrentIncrement(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.Store) {
		ctx := context.Background()
		tool, err := store.Create(ctx, domain.KindTool, toolAttrs("TOOL-1", 10))
		require.NoError(t, err)

		var ok, guarded atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Increment(ctx, domain.KindTool, tool.ID, "quantity_available", -1, 0)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrGuard):
					guarded.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(10), ok.Load())
		assert.Equal(t, int64(15), guarded.Load())
		got, err := store.Get(ctx, domain.KindTool, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(0), got.Attrs["quantity_available"])
	})
}
