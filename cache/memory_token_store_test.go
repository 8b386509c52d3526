package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/token"
)

func TestMemoryTokenCache(t *testing.T) {
	c := NewMemoryTokenCache(0)
	defer c.Close()

	ctx := context.Background()
	at := &token.AccessToken{ID: "t1", Value: "jwt-value", ExpireAt: time.Now().Add(time.Minute)}

	c.Set(ctx, at)

	got, ok := c.Get(ctx, "jwt-value")
	require.True(t, ok)
	assert.Equal(t, "t1", got.ID)

	c.Delete(ctx, "jwt-value")
	_, ok = c.Get(ctx, "jwt-value")
	assert.False(t, ok)
}

func TestMemoryTokenCacheSkipsExpired(t *testing.T) {
	c := NewMemoryTokenCache(0)
	defer c.Close()

	c.Set(context.Background(), &token.AccessToken{Value: "old", ExpireAt: time.Now().Add(-time.Second)})

	assert.Equal(t, 0, c.Len())
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("a"), HashToken("a"))
	assert.NotEqual(t, HashToken("a"), HashToken("b"))
	assert.Len(t, HashToken("a"), 64)
}
