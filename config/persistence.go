package config

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/persistence/memory"
	"github.com/goliatone/go-console-auth/persistence/redis"
	"github.com/goliatone/go-console-auth/persistence/sqlstore"
)

// OpenPersistence builds the configured credential backend. The returned
// func releases its connections.
func (c *Config) OpenPersistence(ctx context.Context) (auth.Persistence, func() error, error) {
	noop := func() error { return nil }

	switch c.Persistence.Driver {
	case DriverRedis:
		store, err := redis.New(ctx, redis.Config{
			Addr:     c.Persistence.Redis.Addr,
			Password: c.Persistence.Redis.Password,
			DB:       c.Persistence.Redis.DB,
			Prefix:   c.Persistence.Redis.Prefix,
			TTL:      c.PersistenceTTL(),
		})
		if err != nil {
			return nil, noop, errors.Wrap(err, errors.CategoryOperation, "failed to open redis persistence")
		}
		return store, store.Close, nil

	case DriverSQL:
		sqldb, err := sql.Open(sqliteshim.ShimName, c.Persistence.SQL.DSN)
		if err != nil {
			return nil, noop, errors.Wrap(err, errors.CategoryOperation, "failed to open sql persistence")
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		store := sqlstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, noop, errors.Wrap(err, errors.CategoryOperation, "failed to migrate sql persistence")
		}
		return store, db.Close, nil

	default:
		return memory.New(c.PersistenceTTL()), noop, nil
	}
}
