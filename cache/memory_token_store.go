package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/authd/token"
)

// MemoryTokenCache implements token.Cache using ttlcache. Entries expire with
// the token they hold.
type MemoryTokenCache struct {
	cache *ttlcache.Cache[string, *token.AccessToken]
}

// NewMemoryTokenCache creates a new in-memory cache holding at most capacity
// tokens. A zero capacity means unbounded.
func NewMemoryTokenCache(capacity uint64) *MemoryTokenCache {
	opts := []ttlcache.Option[string, *token.AccessToken]{
		ttlcache.WithDisableTouchOnHit[string, *token.AccessToken](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *token.AccessToken](capacity))
	}

	c := ttlcache.New(opts...)
	go c.Start()

	return &MemoryTokenCache{cache: c}
}

// Set implements token.Cache.
func (s *MemoryTokenCache) Set(_ context.Context, t *token.AccessToken) {
	ttl := time.Until(t.ExpireAt)
	if ttl <= 0 {
		return
	}
	s.cache.Set(HashToken(t.Value), t, ttl)
}

// Get implements token.Cache.
func (s *MemoryTokenCache) Get(_ context.Context, value string) (*token.AccessToken, bool) {
	item := s.cache.Get(HashToken(value))
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Delete implements token.Cache.
func (s *MemoryTokenCache) Delete(_ context.Context, value string) {
	s.cache.Delete(HashToken(value))
}

// Len returns the number of cached tokens.
func (s *MemoryTokenCache) Len() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenCache) Close() error {
	s.cache.Stop()
	return nil
}

var _ token.Cache = (*MemoryTokenCache)(nil)
