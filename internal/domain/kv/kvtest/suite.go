// Package kvtest checks kv.Store implementations against the port contract.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/estate-compliance/internal/domain/kv"
)

// Run exercises s. Keys are created under prefix, which should be unique per run
// for shared backends.
func Run(t *testing.T, s kv.Store, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return prefix + k }

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := s.Get(ctx, key("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, key("a"), []byte(`{"v":1}`)))
		v, ok, err := s.Get(ctx, key("a"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"v":1}`, string(v))

		require.NoError(t, s.Set(ctx, key("a"), []byte(`{"v":2}`)))
		v, _, err = s.Get(ctx, key("a"))
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(v))
	})

	t.Run("list by prefix", func(t *testing.T) {
		for _, k := range []string{"list:1", "list:2", "list_x", "other"} {
			require.NoError(t, s.Set(ctx, key(k), []byte("x")))
		}
		keys, err := s.ListKeysWithPrefix(ctx, key("list:"))
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{key("list:1"), key("list:2")}, keys)

		// LIKE and glob wildcards in the prefix are literal
		keys, err = s.ListKeysWithPrefix(ctx, key("list_"))
		require.NoError(t, err)
		assert.Equal(t, []string{key("list_x")}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, key("gone"), []byte("x")))
		require.NoError(t, s.Delete(ctx, key("gone")))
		_, ok, err := s.Get(ctx, key("gone"))
		require.NoError(t, err)
		assert.False(t, ok)

		// deleting an absent key is not an error
		assert.NoError(t, s.Delete(ctx, key("never")))
	})
}

// RunCapacity fills a store created with room for limit entries and checks the
// refusal of a new key. Overwrites must still succeed once full.
func RunCapacity(t *testing.T, s kv.Store, prefix string, limit int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < limit; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("x")))
	}
	err := s.Set(ctx, prefix+"overflow", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kv.ErrCapacity), "got %v", err)

	assert.NoError(t, s.Set(ctx, prefix+"0", []byte("y")))
}
