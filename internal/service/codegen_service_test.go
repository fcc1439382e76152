package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/idgen"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
)

var day = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "TOOL202401010001", FormatCode("TOOL", day, 1))
	assert.Equal(t, "WO202401019999", FormatCode("WO", day, 9999))
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	g := NewCodeGenerator(store, nil, 0, discardLogger())
	ctx := context.Background()

	code, err := g.Generate(ctx, domain.KindTool, day)
	require.NoError(t, err)
	assert.Equal(t, "TOOL202401010001", code)

	for _, c := range []string{"TOOL202401010001", "TOOL202401010002", "TOOL202401010004"} {
		_, err := store.Create(ctx, domain.KindTool, domain.Attrs{"tool_code": c, "name": "x", "tool_type": "y"})
		require.NoError(t, err)
	}
	code, err = g.Generate(ctx, domain.KindTool, day)
	require.NoError(t, err)
	assert.Equal(t, "TOOL202401010003", code, "smallest free sequence wins")

	code, err = g.Generate(ctx, domain.KindTool, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "TOOL202401020001", code, "sequence restarts each day")

	_, err = g.Generate(ctx, domain.KindUnit, day)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestAssignRetriesDuplicateCode(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	g := NewCodeGenerator(store, nil, 0, discardLogger())
	ctx := context.Background()

	var attempts int
	code, err := g.Assign(ctx, domain.KindVendor, day, func(ctx context.Context, code string) error {
		attempts++
		if attempts == 1 {
			// Another writer took the code between lookup and insert.
			_, err := store.Create(ctx, domain.KindVendor, domain.Attrs{"vendor_code": code, "name": "race"})
			require.NoError(t, err)
		}
		_, err := store.Create(ctx, domain.KindVendor, domain.Attrs{"vendor_code": code, "name": "mine"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "VEND202401010002", code)
}

func TestAssignReturnsOtherErrorsUnchanged(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	g := NewCodeGenerator(store, nil, 0, discardLogger())

	var attempts int
	_, err := g.Assign(context.Background(), domain.KindVendor, day, func(context.Context, string) error {
		attempts++
		return domain.ErrInsufficientStock
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, attempts)

	attempts = 0
	_, err = g.Assign(context.Background(), domain.KindVendor, day, func(context.Context, string) error {
		attempts++
		return &domain.DuplicateKeyError{Kind: domain.KindVendor, Field: "email", Value: "a@b.c"}
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.Equal(t, 1, attempts, "duplicates on other fields are not retried")
}

func TestAssignConcurrentCodesAreDistinct(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	g := NewCodeGenerator(store, nil, 0, discardLogger())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, err := g.Assign(ctx, domain.KindCustomer, day, func(ctx context.Context, code string) error {
				_, err := store.Create(ctx, domain.KindCustomer, domain.Attrs{"customer_code": code, "name": "c"})
				return err
			})
			assert.NoError(t, err)
			codes[i] = code
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.True(t, seen["CUST202401010020"])
}

type failingLocker struct {
	calls atomic.Int32
	err   error
}

func (f *failingLocker) Acquire(context.Context, string, time.Duration, time.Duration) (*redis.Lock, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestLockFallsBackWhenRedisIsDown(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	locker := &failingLocker{err: errors.New("connection refused")}
	g := NewCodeGenerator(store, locker, 0, discardLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Assign(ctx, domain.KindProduct, day, func(ctx context.Context, code string) error {
			_, err := store.Create(ctx, domain.KindProduct, domain.Attrs{"product_code": code, "name": "p", "unit_of_measure": "pcs"})
			return err
		})
		require.NoError(t, err)
	}
	// The breaker opens after three failures and stops calling redis.
	assert.Equal(t, int32(3), locker.calls.Load())
}

func TestLockHeldStillAssigns(t *testing.T) {
	store := repository.NewMemoryStore(idgen.MustNew(1), discardLogger())
	locker := &failingLocker{err: redis.ErrLockHeld}
	g := NewCodeGenerator(store, locker, 0, discardLogger())

	code, err := g.Assign(context.Background(), domain.KindProduct, day, func(ctx context.Context, code string) error {
		_, err := store.Create(ctx, domain.KindProduct, domain.Attrs{"product_code": code, "name": "p", "unit_of_measure": "pcs"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "PROD202401010001", code)
	assert.Equal(t, int32(1), locker.calls.Load())
}
