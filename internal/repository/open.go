package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/pkg/config"
	"github.com/aryan0dhankhar/mesledger/pkg/database"
)

// Open connects the store selected by cfg.StoreDriver. The returned close
// function releases the store and its connection pool.
func Open(ctx context.Context, cfg *config.Config, ids domain.IDGenerator, logger *slog.Logger) (domain.Store, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		store := NewMemoryStore(ids, logger)
		return store, store.Close, nil

	case config.DriverPostgres:
		pool, err := database.NewConnectionPool(ctx, &database.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewPostgresStore(ctx, pool.GetDB(), ids, logger)
		if err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		return store, func(ctx context.Context) error {
			_ = store.Close(ctx)
			return pool.Close()
		}, nil

	case config.DriverMongo:
		name, err := database.MongoDatabaseName(cfg.MongoURI, "mes_db")
		if err != nil {
			return nil, nil, err
		}
		client, err := database.ConnectMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewMongoStore(ctx, client, MongoOptions{
			Database:     name,
			Transactions: cfg.MongoTransactions,
		}, ids, logger)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
