package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
)

const defaultPath = "estate-compliance.db"

// Open opens (and creates) the database file. A single connection avoids SQLITE_BUSY
// between writers of the same process.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Dialect of the analysis_cache table on SQLite
var Dialect = sqlkv.Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS analysis_cache (
		cache_key  TEXT    PRIMARY KEY,
		payload    BLOB    NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	Get: `SELECT payload FROM analysis_cache WHERE cache_key = ?`,
	Upsert: `INSERT INTO analysis_cache (cache_key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
	Exists: `SELECT COUNT(*) FROM analysis_cache WHERE cache_key = ?`,
	Count:  `SELECT COUNT(*) FROM analysis_cache`,
	List:   `SELECT cache_key FROM analysis_cache WHERE cache_key LIKE ? ESCAPE '!' ORDER BY cache_key`,
	Delete: `DELETE FROM analysis_cache WHERE cache_key = ?`,
	IsFull: isFull,
}

// SQLITE_FULL surfaces as "database or disk is full"
func isFull(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "sqlite_full")
}
