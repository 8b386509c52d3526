package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/config"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/authtest"
	"go.pilab.hu/authd/lock"
	"go.pilab.hu/authd/memory"
	"go.pilab.hu/authd/token"
)

func grant(clientID, audience string) token.Grant {
	return token.Grant{ClientID: clientID, Audience: audience, GrantType: token.GrantClientCredentials}
}

func TestMintEnforcesLimit(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) { p.CountLimit = 2 })
	ctx := context.Background()

	_, err := h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)
	h.Clock.Advance(time.Second)
	_, err = h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)
	h.Clock.Advance(time.Second)

	_, err = h.Minter.Mint(ctx, grant("c", "a"))
	assert.ErrorIs(t, err, serrors.ErrLimitWithoutUser)
	assert.Equal(t, 400, serrors.StatusOf(err))

	// Other audiences have their own budget.
	_, err = h.Minter.Mint(ctx, grant("c", "b"))
	assert.NoError(t, err)

	n, err := h.Tokens.CountActive(ctx, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMintPrunesExpiredTokens(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) { p.CountLimit = 1 })
	ctx := context.Background()

	first, err := h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)

	h.Clock.Advance(h.Policy.AccessTokenTTL)

	second, err := h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)

	_, err = h.TokenRepo.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
	assert.Equal(t, 1, h.TokenRepo.Len())
	assert.True(t, second.ExpireAt.After(h.Clock.Now()))
}

func TestMintReplacesCollidingValue(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) { p.CountLimit = 1 })
	ctx := context.Background()

	first, err := h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)

	// Same second, same claims: the signed value is identical and replaces
	// the old record instead of counting against the quota.
	second, err := h.Minter.Mint(ctx, grant("c", "a"))
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, h.TokenRepo.Len())
}

func TestUserTokensBypassLimit(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) { p.CountLimit = 1 })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g := grant("c", "a")
		g.UserID = "user"
		g.GrantType = token.GrantPassword
		_, err := h.Minter.Mint(ctx, g)
		require.NoError(t, err)
		h.Clock.Advance(time.Second)
	}

	_, err := h.Minter.Mint(ctx, grant("c", "a"))
	assert.NoError(t, err)
}

func TestUserTokenReplacesCollidingValue(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()

	g := grant("c", "a")
	g.UserID = "user"
	g.GrantType = token.GrantPassword

	first, err := h.Minter.Mint(ctx, g)
	require.NoError(t, err)

	second, err := h.Minter.Mint(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, h.TokenRepo.Len())

	_, err = h.TokenRepo.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}

func TestWhitelistedTokenReplacesCollidingValue(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) {
		p.CountLimit = 1
		p.LimitWhitelist = []string{"trusted"}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.Minter.Mint(ctx, grant("trusted", "a"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.TokenRepo.Len())
}

func TestWhitelistedClientBypassesLimit(t *testing.T) {
	h := authtest.New(t, func(p *config.Tokens) {
		p.CountLimit = 1
		p.LimitWhitelist = []string{"trusted"}
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.Minter.Mint(ctx, grant("trusted", "a"))
		require.NoError(t, err)
		h.Clock.Advance(time.Second)
	}
	assert.Equal(t, 3, h.TokenRepo.Len())
}

func TestConcurrentMintNeverExceedsLimit(t *testing.T) {
	const limit = 3
	repo := memory.NewTokenStore()
	store := token.NewStore(repo, lock.NewLocal(), token.Quota{Limit: limit})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AdmitAndInsert(ctx, &token.AccessToken{
				ID:       string(rune('a' + i)),
				ClientID: "c",
				Audience: "a",
				Value:    string(rune('A' + i)),
				ExpireAt: time.Now().Add(time.Hour),
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, serrors.ErrLimitWithoutUser)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	assert.Equal(t, limit, repo.Len())
}

func TestAdmitAndInsertCancelledContext(t *testing.T) {
	repo := memory.NewTokenStore()
	store := token.NewStore(repo, lock.NewLocal(), token.Quota{Limit: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.AdmitAndInsert(ctx, &token.AccessToken{ID: "1", ClientID: "c", Audience: "a", Value: "v", ExpireAt: time.Now().Add(time.Hour)})
	require.Error(t, err)
	assert.Equal(t, 0, repo.Len())
}

type countingCache struct {
	mu    sync.Mutex
	items map[string]*token.AccessToken
	hits  int
}

func (c *countingCache) Get(_ context.Context, value string) (*token.AccessToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[value]
	if ok {
		c.hits++
	}
	return t, ok
}

func (c *countingCache) Set(_ context.Context, t *token.AccessToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[t.Value] = t
}

func (c *countingCache) Delete(_ context.Context, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, value)
}

func TestStoreCache(t *testing.T) {
	cache := &countingCache{items: map[string]*token.AccessToken{}}
	store := token.NewStore(memory.NewTokenStore(), lock.NewLocal(), token.Quota{Limit: 5}, token.WithCache(cache))
	ctx := context.Background()

	at := &token.AccessToken{ID: "1", ClientID: "c", Audience: "a", Value: "v", ExpireAt: time.Now().Add(time.Hour)}
	_, err := store.AdmitAndInsert(ctx, at)
	require.NoError(t, err)

	got, err := store.FindByValue(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, 1, cache.hits)

	require.NoError(t, store.Delete(ctx, at))
	_, err = store.FindByValue(ctx, "v")
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}
