package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/estate-compliance/internal/application"
	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
	"github.com/bryanwahyu/estate-compliance/internal/domain/kv"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultNamespace  = "analysis:"
	DefaultEvictBatch = 5
)

// Options tune the cache; zero values fall back to the defaults above.
type Options struct {
	TTL        time.Duration
	Namespace  string
	EvictBatch int
}

// Cache is a TTL-bounded store of compliance records on top of any kv.Store.
// It is an optimization only: every error is logged and swallowed, so the
// error results of its methods are always nil.
type Cache struct {
	store      kv.Store
	clock      application.Clock
	log        *zap.Logger
	ttl        time.Duration
	namespace  string
	evictBatch int
}

func New(store kv.Store, clock application.Clock, log *zap.Logger, opts Options) *Cache {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.EvictBatch <= 0 {
		opts.EvictBatch = DefaultEvictBatch
	}
	return &Cache{
		store:      store,
		clock:      clock,
		log:        log.Named("cache"),
		ttl:        opts.TTL,
		namespace:  opts.Namespace,
		evictBatch: opts.EvictBatch,
	}
}

// Key returns the storage key of a subject, e.g. analysis:<id>.
func (c *Cache) Key(id compliance.SubjectID) string {
	return c.namespace + string(id)
}

// Get returns the entry for id, or nil when absent or older than the TTL.
// Expired entries are removed from the store on read.
func (c *Cache) Get(ctx context.Context, id compliance.SubjectID) (*compliance.CacheEntry, error) {
	fresh, _, err := c.Probe(ctx, id)
	return fresh, err
}

// Probe reads id once. A live entry comes back as fresh; an entry older than the
// TTL is deleted from the store and handed back as expired, so the caller can
// still fall back on it if the network fails.
func (c *Cache) Probe(ctx context.Context, id compliance.SubjectID) (fresh, expired *compliance.CacheEntry, err error) {
	key := c.Key(id)
	e := c.read(ctx, key)
	if e == nil {
		return nil, nil, nil
	}
	age := c.clock.Now().Sub(e.StoredAt)
	if age <= c.ttl {
		return e, nil, nil
	}
	c.log.Debug("entry expired", zap.String("key", key), zap.Duration("age", age))
	if err := c.store.Delete(ctx, key); err != nil {
		c.warn("delete expired", key, err)
	}
	return nil, e, nil
}

// GetStale returns the entry for id ignoring the TTL, without deleting it.
// Used as a last resort when the network is unavailable.
func (c *Cache) GetStale(ctx context.Context, id compliance.SubjectID) (*compliance.CacheEntry, error) {
	return c.read(ctx, c.Key(id)), nil
}

// Put stores rec for id. When the store is full the oldest entries of the
// namespace are evicted and the write is retried once; a second failure drops it.
func (c *Cache) Put(ctx context.Context, id compliance.SubjectID, rec *compliance.Record) error {
	key := c.Key(id)
	data, err := json.Marshal(compliance.CacheEntry{
		SubjectID: id,
		Record:    rec,
		StoredAt:  c.clock.Now().UTC(),
	})
	if err != nil {
		c.warn("encode entry", key, err)
		return nil
	}

	err = c.store.Set(ctx, key, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrCapacity) {
		c.warn("write dropped", key, err)
		return nil
	}

	evicted := c.evictOldest(ctx)
	if err := c.store.Set(ctx, key, data); err != nil {
		c.warn("write dropped after eviction", key, err)
		return nil
	}
	c.log.Info("write stored after eviction", zap.String("key", key), zap.Int("evicted", evicted))
	return nil
}

// Invalidate removes the entry for id.
func (c *Cache) Invalidate(ctx context.Context, id compliance.SubjectID) error {
	key := c.Key(id)
	if err := c.store.Delete(ctx, key); err != nil {
		c.warn("invalidate", key, err)
	}
	return nil
}

func (c *Cache) read(ctx context.Context, key string) *compliance.CacheEntry {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.warn("read", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	var e compliance.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil || e.Record == nil {
		if err == nil {
			err = errors.New("entry without record")
		}
		c.warn("decode entry", key, err)
		return nil
	}
	return &e
}

// evictOldest deletes the evictBatch oldest entries of the namespace by storedAt.
// Entries that cannot be decoded count as oldest.
func (c *Cache) evictOldest(ctx context.Context) int {
	keys, err := c.store.ListKeysWithPrefix(ctx, c.namespace)
	if err != nil {
		c.warn("list keys for eviction", c.namespace, err)
		return 0
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	entries := make([]aged, 0, len(keys))
	for _, k := range keys {
		a := aged{key: k}
		if data, ok, err := c.store.Get(ctx, k); err == nil && ok {
			var head struct {
				StoredAt time.Time `json:"storedAt"`
			}
			if json.Unmarshal(data, &head) == nil {
				a.storedAt = head.StoredAt
			}
		}
		entries = append(entries, a)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})

	n := c.evictBatch
	if n > len(entries) {
		n = len(entries)
	}
	deleted := 0
	for _, e := range entries[:n] {
		if err := c.store.Delete(ctx, e.key); err != nil {
			c.warn("evict", e.key, err)
			continue
		}
		deleted++
	}
	return deleted
}

func (c *Cache) warn(op, key string, err error) {
	c.log.Warn(op, zap.String("key", key), zap.Error(fmt.Errorf("%w: %v", compliance.ErrCache, err)))
}
