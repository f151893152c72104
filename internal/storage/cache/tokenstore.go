package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// ErrCacheMiss is returned by CacheClient.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of cache commands we need.
type CacheClient interface {
	// Get returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds read-aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedTokenStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceSet, error) {
	key := cacheKey(userID)

	var cached dispatch.DeviceSet
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Cache read failed; falling back to store", "key", key, "err", err)
	}

	fresh, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; a failed Set still serves from the store.
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", "key", key, "err", err)
	}

	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) RegisterFCM(ctx context.Context, userID, token string) error {
	if err := s.realStore.RegisterFCM(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedTokenStore) UnregisterFCM(ctx context.Context, userID, token string) error {
	if err := s.realStore.UnregisterFCM(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// RegisterWeb also invalidates the endpoint's previous owner when the store
// moved the subscription away from them.
func (s *CachedTokenStore) RegisterWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) error {
	claimer, ok := s.realStore.(dispatch.WebClaimer)
	if !ok {
		if err := s.realStore.RegisterWeb(ctx, userID, sub); err != nil {
			return err
		}
		return s.invalidate(ctx, userID)
	}

	previous, err := claimer.ClaimWeb(ctx, userID, sub)
	if err != nil {
		return err
	}
	if previous != "" {
		s.logger.Debug("Web subscription moved between users", "from", previous, "to", userID)
		if err := s.invalidate(ctx, previous); err != nil {
			return err
		}
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedTokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	if err := s.realStore.UnregisterWeb(ctx, userID, endpoint); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// --- Helpers ---

// invalidate deletes the key so the next Fetch reads the store.
func (s *CachedTokenStore) invalidate(ctx context.Context, userID string) error {
	if err := s.cache.Del(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("push:tokens:%s", userID)
}
