package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/estate-compliance/internal/domain/kv"
)

// Dialect carries the statements of one SQL engine for the analysis_cache table.
// Statements take (key), (key, payload, updated_at) or (pattern) parameters.
type Dialect struct {
	Name        string
	CreateTable string
	Get         string
	Upsert      string
	Exists      string
	Count       string
	List        string
	Delete      string
	// IsFull reports driver errors meaning the storage is out of space.
	IsFull func(err error) bool
}

// Store is a kv.Store backed by one SQL table.
// With maxRows > 0 it refuses new keys once the table holds maxRows rows.
type Store struct {
	db      *sql.DB
	dialect Dialect
	maxRows int
}

// New creates the table when missing.
func New(ctx context.Context, db *sql.DB, d Dialect, maxRows int) (*Store, error) {
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return nil, fmt.Errorf("%s: create analysis_cache: %w", d.Name, err)
	}
	return &Store{db: db, dialect: d, maxRows: maxRows}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.dialect.Get, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if s.maxRows > 0 {
		full, err := s.full(ctx, key)
		if err != nil {
			return err
		}
		if full {
			return fmt.Errorf("%w: %s table holds %d rows", kv.ErrCapacity, s.dialect.Name, s.maxRows)
		}
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Upsert, key, value, time.Now().UnixMilli())
	if err != nil && s.dialect.IsFull != nil && s.dialect.IsFull(err) {
		return fmt.Errorf("%w: %v", kv.ErrCapacity, err)
	}
	return err
}

// full is true when key is new and the row cap is reached
func (s *Store) full(ctx context.Context, key string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, s.dialect.Exists, key).Scan(&exists); err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.Count).Scan(&n); err != nil {
		return false, err
	}
	return n >= s.maxRows, nil
}

func (s *Store) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.List, LikePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Delete, key)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LikePrefix builds a LIKE pattern matching keys starting with prefix, using '!' as escape.
func LikePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}
