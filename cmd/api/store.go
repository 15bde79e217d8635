package main

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/estate-compliance/internal/config"
	"github.com/bryanwahyu/estate-compliance/internal/domain/kv"
	mysqlp "github.com/bryanwahyu/estate-compliance/internal/infra/db/mysql"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/postgres"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlite"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
	"github.com/bryanwahyu/estate-compliance/internal/infra/kv/memory"
	"github.com/bryanwahyu/estate-compliance/internal/infra/kv/redis"
	minioStore "github.com/bryanwahyu/estate-compliance/internal/infra/storage"
)

// openStore connects the cache backend chosen by store.driver
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, func() error, error) {
	noop := func() error { return nil }
	maxEntries := cfg.Cache.MaxEntries

	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(maxEntries), noop, nil

	case config.DriverRedis:
		rdb, err := redis.Connect(ctx, cfg.Store.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		return redis.New(rdb), rdb.Close, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlkv.New(ctx, db, sqlite.Dialect, maxEntries)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		s, err := sqlkv.New(ctx, db, mysqlp.Dialect, maxEntries)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		s, err := sqlkv.New(ctx, db, postgres.Dialect, maxEntries)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case config.DriverMinio:
		s, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("minio init: %w", err)
		}
		return s, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
