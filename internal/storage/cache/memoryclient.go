package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryClient is a process-local CacheClient for single-instance gateways.
// Values are stored JSON encoded so readers never share a mutable copy.
type MemoryClient struct {
	store *gocache.Cache
}

func NewMemoryClient(defaultTTL, cleanupInterval time.Duration) *MemoryClient {
	return &MemoryClient{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *MemoryClient) Get(_ context.Context, key string, dest any) error {
	raw, found := c.store.Get(key)
	if !found {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func (c *MemoryClient) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store.Set(key, bytes, ttl)
	return nil
}

func (c *MemoryClient) Del(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}
