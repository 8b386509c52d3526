package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/token"
)

func newTestCache(t *testing.T) (*TokenCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewTokenCache(client, "test"), mr
}

func TestTokenCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	at := &token.AccessToken{
		ID:          "t1",
		ClientID:    "c1",
		Audience:    "aud",
		Value:       "jwt-value",
		ScopeValues: []string{"read"},
		ExpireAt:    time.Now().Add(time.Minute).Truncate(time.Second),
	}
	c.Set(ctx, at)

	got, ok := c.Get(ctx, "jwt-value")
	require.True(t, ok)
	assert.Equal(t, at.ID, got.ID)
	assert.Equal(t, at.ScopeValues, got.ScopeValues)
	assert.True(t, at.ExpireAt.Equal(got.ExpireAt))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "jwt-value")
	assert.False(t, ok)
}

func TestTokenCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, &token.AccessToken{Value: "v", ExpireAt: time.Now().Add(time.Minute)})
	c.Delete(ctx, "v")

	_, ok := c.Get(ctx, "v")
	assert.False(t, ok)
}

func TestTokenCacheUnavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	c.Set(context.Background(), &token.AccessToken{Value: "v", ExpireAt: time.Now().Add(time.Minute)})
	_, ok := c.Get(context.Background(), "v")
	assert.False(t, ok)
}
