package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
)

// MySQL server errors meaning the table or disk is full
const (
	erRecordFileFull = 1114
	erDiskFull       = 1021
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Dialect of the analysis_cache table on MySQL
var Dialect = sqlkv.Dialect{
	Name: "mysql",
	CreateTable: `
CREATE TABLE IF NOT EXISTS analysis_cache (
  cache_key  VARCHAR(255) NOT NULL PRIMARY KEY,
  payload    MEDIUMBLOB   NOT NULL,
  updated_at BIGINT       NOT NULL
) CHARACTER SET utf8mb4;`,
	Get: `SELECT payload FROM analysis_cache WHERE cache_key = ? LIMIT 1;`,
	Upsert: `
INSERT INTO analysis_cache (cache_key, payload, updated_at)
VALUES (?,?,?)
ON DUPLICATE KEY UPDATE
  payload=VALUES(payload), updated_at=VALUES(updated_at);`,
	Exists: `SELECT COUNT(*) FROM analysis_cache WHERE cache_key = ?;`,
	Count:  `SELECT COUNT(*) FROM analysis_cache;`,
	List:   `SELECT cache_key FROM analysis_cache WHERE cache_key LIKE ? ESCAPE '!' ORDER BY cache_key;`,
	Delete: `DELETE FROM analysis_cache WHERE cache_key = ?;`,
	IsFull: isFull,
}

func isFull(err error) bool {
	var me *mysqldrv.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == erRecordFileFull || me.Number == erDiskFull
}
