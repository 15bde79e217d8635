package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bryanwahyu/estate-compliance/internal/domain/kv"
)

// Store is an in-process kv.Store. With MaxEntries > 0 it refuses new keys
// once full, the way a browser storage quota does.
type Store struct {
	mu         sync.Mutex
	items      *gocache.Cache
	maxEntries int
}

func New(maxEntries int) *Store {
	return &Store{
		items:      gocache.New(gocache.NoExpiration, 0),
		maxEntries: maxEntries,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := s.items.Get(key)
	if !found {
		return nil, false, nil
	}
	b := v.([]byte)
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxEntries > 0 {
		if _, exists := s.items.Get(key); !exists && s.items.ItemCount() >= s.maxEntries {
			return kv.ErrCapacity
		}
	}
	s.items.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	return nil
}

func (s *Store) ListKeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.items.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored keys.
func (s *Store) Len() int { return s.items.ItemCount() }
