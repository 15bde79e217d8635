package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/estate-compliance/internal/domain/kv/kvtest"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	s, err := sqlkv.New(ctx, db, Dialect, 0)
	require.NoError(t, err)

	prefix := "kvtest:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM analysis_cache WHERE cache_key LIKE $1 ESCAPE '!'", sqlkv.LikePrefix(prefix))
	})
	kvtest.Run(t, s, prefix)
}

func TestIsFull(t *testing.T) {
	assert.True(t, isFull(&pq.Error{Code: "53100"}))
	assert.True(t, isFull(fmt.Errorf("upsert: %w", &pq.Error{Code: "53100"})))
	assert.False(t, isFull(&pq.Error{Code: "23505"}))
	assert.False(t, isFull(errors.New("connection refused")))
}
