package kv

import (
	"context"
	"errors"
)

// ErrCapacity is returned by Set when the store refuses a write because it is full.
var ErrCapacity = errors.New("kv store capacity exceeded")

// Store port (interface untuk key-value persistence).
// Get returns (nil, false, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
