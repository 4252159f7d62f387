// --- File: internal/storage/cache/tokenstore.go ---
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-expo-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-expo-notification-service/pkg/notification"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest, or returns an error if not found.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, user urn.URN) (*notification.NotificationRequest, error) {
	key := s.cacheKey(user)

	var cachedReq notification.NotificationRequest
	if err := s.cache.Get(ctx, key, &cachedReq); err == nil {
		return &cachedReq, nil
	}

	freshReq, err := s.realStore.Fetch(ctx, user)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; if Redis is down we serve from the DB.
	_ = s.cache.Set(ctx, key, freshReq, s.ttl)

	return freshReq, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) RegisterToken(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.RegisterToken(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// UnregisterToken clears the cache even when the token was never cached, so
// a removed device stops receiving notifications immediately.
func (s *CachedTokenStore) UnregisterToken(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.UnregisterToken(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, user urn.URN) error {
	return s.cache.Del(ctx, s.cacheKey(user))
}

func (s *CachedTokenStore) cacheKey(user urn.URN) string {
	return fmt.Sprintf("notify:expo-tokens:%s", user.String())
}
