package mysql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/estate-compliance/internal/domain/kv/kvtest"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
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
		_, _ = db.Exec("DELETE FROM analysis_cache WHERE cache_key LIKE ? ESCAPE '!'", sqlkv.LikePrefix(prefix))
	})
	kvtest.Run(t, s, prefix)
}

func TestIsFull(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "table full", err: &mysqldrv.MySQLError{Number: 1114, Message: "The table 'analysis_cache' is full"}, want: true},
		{name: "disk full", err: &mysqldrv.MySQLError{Number: 1021}, want: true},
		{name: "wrapped", err: fmt.Errorf("exec: %w", &mysqldrv.MySQLError{Number: 1114}), want: true},
		{name: "duplicate key", err: &mysqldrv.MySQLError{Number: 1062}, want: false},
		{name: "other", err: errors.New("bad connection"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isFull(tt.err))
		})
	}
}
