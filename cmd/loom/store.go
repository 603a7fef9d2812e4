package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/weftworks/loom/config"
	"github.com/weftworks/loom/store"
	"github.com/weftworks/loom/store/memory"
	"github.com/weftworks/loom/store/postgres"
	redisstore "github.com/weftworks/loom/store/redis"
	"github.com/weftworks/loom/store/sqlite"
)

// openStore builds the persistence backend selected by configuration
// and runs migrations. The caller owns Close.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	var st store.Store

	switch cfg.Driver {
	case "memory":
		st = memory.New()

	case "redis":
		opt, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		st = redisstore.New(redis.NewClient(opt), redisstore.WithLogger(logger))

	case "postgres":
		pg, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st = pg

	case "sqlite":
		sq, err := sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st = sq

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
