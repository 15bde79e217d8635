package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
)

// SQLSTATE disk_full
const diskFull = "53100"

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Dialect of the analysis_cache table on PostgreSQL
var Dialect = sqlkv.Dialect{
	Name: "postgres",
	CreateTable: `
CREATE TABLE IF NOT EXISTS analysis_cache (
  cache_key  TEXT   PRIMARY KEY,
  payload    BYTEA  NOT NULL,
  updated_at BIGINT NOT NULL
);`,
	Get: `SELECT payload FROM analysis_cache WHERE cache_key=$1 LIMIT 1;`,
	Upsert: `
INSERT INTO analysis_cache (cache_key, payload, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (cache_key) DO UPDATE SET
  payload = EXCLUDED.payload,
  updated_at = EXCLUDED.updated_at;`,
	Exists: `SELECT COUNT(*) FROM analysis_cache WHERE cache_key=$1;`,
	Count:  `SELECT COUNT(*) FROM analysis_cache;`,
	List:   `SELECT cache_key FROM analysis_cache WHERE cache_key LIKE $1 ESCAPE '!' ORDER BY cache_key;`,
	Delete: `DELETE FROM analysis_cache WHERE cache_key=$1;`,
	IsFull: isFull,
}

func isFull(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == diskFull
}
