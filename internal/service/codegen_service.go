package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/mesledger/internal/observability/metrics"
	"github.com/aryan0dhankhar/mesledger/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/mesledger/internal/reliability/retry"
)

// maxSequence is the largest NNNN a daily code can carry.
const maxSequence = 9999

// CodeLocker is the distributed lock used to serialize code assignment.
type CodeLocker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*redis.Lock, error)
}

// CodeGenerator assigns PREFIX+YYYYMMDD+NNNN business codes.
type CodeGenerator struct {
	store   domain.Store
	locker  CodeLocker
	breaker *circuitbreaker.CircuitBreaker
	lockTTL time.Duration
	retry   *retry.Config
	logger  *slog.Logger

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

// NewCodeGenerator creates a generator. locker may be nil, in which case
// codes are serialized in process only.
func NewCodeGenerator(store domain.Store, locker CodeLocker, lockTTL time.Duration, logger *slog.Logger) *CodeGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 200 * time.Millisecond

	g := &CodeGenerator{
		store:   store,
		locker:  locker,
		breaker: circuitbreaker.NewCircuitBreaker(3, 1, 30*time.Second),
		lockTTL: lockTTL,
		retry:   cfg,
		logger:  logger,
		local:   map[string]*sync.Mutex{},
	}
	g.breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("code lock breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return g
}

// FormatCode renders prefix, date and sequence as a business code.
func FormatCode(prefix string, date time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", prefix, date.Format("20060102"), seq)
}

func codeSpec(kind domain.Kind) (domain.KindSpec, error) {
	spec, ok := domain.Lookup(kind)
	if !ok {
		return domain.KindSpec{}, domain.Invalid("kind", fmt.Sprintf("unknown kind %q", kind))
	}
	if spec.CodePrefix == "" {
		return domain.KindSpec{}, domain.Invalid("kind", fmt.Sprintf("%s has no generated code", kind))
	}
	return spec, nil
}

// Generate returns the smallest free code for kind on date. It does not
// reserve the code.
func (g *CodeGenerator) Generate(ctx context.Context, kind domain.Kind, date time.Time) (string, error) {
	spec, err := codeSpec(kind)
	if err != nil {
		return "", err
	}
	return g.firstFree(ctx, spec, date)
}

func (g *CodeGenerator) firstFree(ctx context.Context, spec domain.KindSpec, date time.Time) (string, error) {
	for seq := 1; seq <= maxSequence; seq++ {
		code := FormatCode(spec.CodePrefix, date, seq)
		n, err := g.store.Count(ctx, spec.Kind, domain.Filter{spec.CodeField: code})
		if err != nil {
			return "", fmt.Errorf("failed to check code %s: %w", code, err)
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("daily sequence for %s exhausted: %w", spec.CodePrefix, domain.ErrValidationFailed)
}

// Assign picks a code and hands it to create while holding the lock for
// (prefix, date). A duplicate on the code field is retried with a fresh
// code; any other error is returned unchanged.
func (g *CodeGenerator) Assign(ctx context.Context, kind domain.Kind, date time.Time, create func(ctx context.Context, code string) error) (string, error) {
	spec, err := codeSpec(kind)
	if err != nil {
		return "", err
	}

	cfg := *g.retry
	cfg.RetryIf = func(err error) bool {
		var dup *domain.DuplicateKeyError
		return errors.As(err, &dup) && dup.Field == spec.CodeField
	}

	return retry.Do(ctx, &cfg, g.logger, "assign "+string(kind)+" code", func(ctx context.Context) (string, error) {
		unlock, mode := g.lock(ctx, spec.CodePrefix+date.Format("20060102"))
		defer unlock()

		code, err := g.firstFree(ctx, spec, date)
		if err != nil {
			return "", err
		}
		if err := create(ctx, code); err != nil {
			return "", err
		}
		metrics.ObserveCodeGenerated(spec.CodePrefix, mode)
		return code, nil
	})
}

// lock takes the redis lock when it is reachable and falls back to an
// in-process mutex otherwise.
func (g *CodeGenerator) lock(ctx context.Context, key string) (func(), string) {
	if g.locker != nil && g.breaker.AllowRequest() {
		l, err := g.locker.Acquire(ctx, "mesledger:code:"+key, g.lockTTL, g.lockTTL)
		switch {
		case err == nil:
			g.breaker.RecordSuccess()
			return func() { _ = l.Release(context.WithoutCancel(ctx)) }, "redis"
		case errors.Is(err, redis.ErrLockHeld):
			g.breaker.RecordSuccess()
			g.logger.Warn("code lock still held, continuing without it", slog.String("key", key))
		default:
			g.breaker.RecordFailure()
			g.logger.Warn("code lock unavailable, using local lock",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	g.mu.Lock()
	m, ok := g.local[key]
	if !ok {
		m = &sync.Mutex{}
		g.local[key] = m
	}
	g.mu.Unlock()
	m.Lock()
	return m.Unlock, "local"
}
