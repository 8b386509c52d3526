package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/authtest"
	"go.pilab.hu/authd/refresh"
	"go.pilab.hu/authd/token"
)

func issue(t *testing.T, h *authtest.Harness, userID string) (*token.AccessToken, *refresh.RefreshToken) {
	t.Helper()
	ctx := context.Background()

	at, err := h.Minter.Mint(ctx, token.Grant{
		ClientID:    "client",
		UserID:      userID,
		Audience:    "aud",
		Scopes:      []string{"id-read"},
		ScopeValues: []string{"read"},
		GrantType:   token.GrantPassword,
	})
	require.NoError(t, err)

	rt, err := h.Refresh.IssueFor(ctx, at)
	require.NoError(t, err)
	return at, rt
}

func TestIssueForSharesAccessTokenExpiry(t *testing.T) {
	h := authtest.New(t)
	at, rt := issue(t, h, "user")

	assert.Len(t, rt.Value, h.Policy.RefreshTokenLength)
	assert.Equal(t, at.ID, rt.AccessTokenID)
	assert.Equal(t, at.ExpireAt, rt.ExpireAt)
}

func TestExchangeRotatesPair(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	old, rt := issue(t, h, "user")

	h.Clock.Advance(time.Minute)

	next, nextRT, err := h.Refresh.Exchange(ctx, rt.Value, "client")
	require.NoError(t, err)

	assert.NotEqual(t, old.Value, next.Value)
	assert.NotEqual(t, rt.Value, nextRT.Value)
	assert.Equal(t, "user", next.UserID)
	assert.Equal(t, "aud", next.Audience)
	assert.Equal(t, []string{"read"}, next.ScopeValues)
	assert.Equal(t, token.GrantRefreshToken, next.GrantType)

	_, err = h.Tokens.FindByID(ctx, old.ID)
	assert.ErrorIs(t, err, token.ErrTokenNotFound)

	// Single use.
	_, _, err = h.Refresh.Exchange(ctx, rt.Value, "client")
	assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)
	assert.Equal(t, 403, serrors.StatusOf(err))
}

func TestExchangeRejects(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		_, _, err := h.Refresh.Exchange(ctx, "", "client")
		assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := h.Refresh.Exchange(ctx, "nope", "client")
		assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)
	})

	t.Run("other client", func(t *testing.T) {
		_, rt := issue(t, h, "user")
		_, _, err := h.Refresh.Exchange(ctx, rt.Value, "intruder")
		assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)

		// The owner can still use it.
		_, _, err = h.Refresh.Exchange(ctx, rt.Value, "client")
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		_, rt := issue(t, h, "other-user")
		h.Clock.Advance(h.Policy.AccessTokenTTL)
		_, _, err := h.Refresh.Exchange(ctx, rt.Value, "client")
		assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)
	})
}

func TestConcurrentExchangeHasOneWinner(t *testing.T) {
	h := authtest.New(t)
	_, rt := issue(t, h, "user")
	h.Clock.Advance(time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.Refresh.Exchange(context.Background(), rt.Value, "client")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, serrors.ErrInvalidRefreshToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestDeleteExpired(t *testing.T) {
	h := authtest.New(t)
	issue(t, h, "user")
	h.Clock.Advance(h.Policy.AccessTokenTTL + time.Second)

	n, err := h.Refresh.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
