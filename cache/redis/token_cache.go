package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/cache"
	"go.pilab.hu/authd/token"
)

// TokenCache implements token.Cache on Redis so every server instance sees
// the same invalidations.
type TokenCache struct {
	client redis.UniversalClient
	prefix string
}

// NewTokenCache creates a new [TokenCache] instance.
func NewTokenCache(client redis.UniversalClient, prefix string) *TokenCache {
	return &TokenCache{
		client: client,
		prefix: prefix,
	}
}

func (r *TokenCache) redisKey(value string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(value))
}

// Set stores t until it expires. Failures are logged; the cache is best effort.
func (r *TokenCache) Set(ctx context.Context, t *token.AccessToken) {
	ttl := time.Until(t.ExpireAt)
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(t)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal token for cache")
		return
	}

	if err := r.client.Set(ctx, r.redisKey(t.Value), raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to cache token in Redis")
	}
}

// Get returns the cached token for value.
func (r *TokenCache) Get(ctx context.Context, value string) (*token.AccessToken, bool) {
	raw, err := r.client.Get(ctx, r.redisKey(value)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("failed to read token from Redis")
		}
		return nil, false
	}

	var t token.AccessToken
	if err := json.Unmarshal(raw, &t); err != nil {
		log.Warn().Err(err).Msg("failed to unmarshal cached token")
		return nil, false
	}

	return &t, true
}

// Delete removes the cached token for value.
func (r *TokenCache) Delete(ctx context.Context, value string) {
	if err := r.client.Del(ctx, r.redisKey(value)).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to delete token from Redis")
	}
}

var _ token.Cache = (*TokenCache)(nil)
