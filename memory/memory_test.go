package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/auth"
	"go.pilab.hu/authd/oauth"
	"go.pilab.hu/authd/refresh"
	"go.pilab.hu/authd/scope"
	"go.pilab.hu/authd/token"
)

func TestClientStore(t *testing.T) {
	ctx := context.Background()
	s := NewClientStore()

	c := &client.Client{ID: "c1", Secret: "s1", AudienceID: "a1", Name: "one", RedirectURIs: []string{"/cb"}}
	require.NoError(t, s.Insert(ctx, c))

	got, err := s.FindByAudience(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	got.RedirectURIs[0] = "/mutated"
	again, err := s.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/cb"}, again.RedirectURIs)

	err = s.Insert(ctx, &client.Client{ID: "c2", Secret: "s2", AudienceID: "a1"})
	assert.True(t, serrors.IsKind(err, serrors.KindConflict))

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrClientNotFound)

	err = s.Update(ctx, &client.Client{ID: "missing"})
	assert.ErrorIs(t, err, client.ErrClientNotFound)
}

func TestScopeStore(t *testing.T) {
	ctx := context.Background()
	s := NewScopeStore()

	require.NoError(t, s.Insert(ctx, &scope.Scope{ID: "1", AudienceID: "a", Value: "read"}))
	require.NoError(t, s.Insert(ctx, &scope.Scope{ID: "2", AudienceID: "a", Value: "admin"}))
	require.NoError(t, s.Insert(ctx, &scope.Scope{ID: "3", AudienceID: "b", Value: "read"}))

	err := s.Insert(ctx, &scope.Scope{ID: "4", AudienceID: "a", Value: "read"})
	assert.True(t, serrors.IsKind(err, serrors.KindConflict))

	list, err := s.FindByAudience(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "read"}, scope.Values(list))

	deleted, err := s.Delete(ctx, "a", "read")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "a", "read")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.FindByAudienceAndValue(ctx, "a", "read")
	assert.ErrorIs(t, err, scope.ErrScopeNotFound)

	found, err := s.FindByAudienceAndValue(ctx, "b", "read")
	require.NoError(t, err)
	assert.Equal(t, "3", found.ID)
}

func TestTokenStoreFiltersUserTokens(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStore()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "1", ClientID: "c", Audience: "a", Value: "v1", ExpireAt: exp}))
	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "2", ClientID: "c", Audience: "a", UserID: "u", Value: "v2", ExpireAt: exp}))
	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "3", ClientID: "c", Audience: "other", Value: "v3", ExpireAt: exp}))

	found, err := s.FindByClientAudience(ctx, "c", "a")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].ID)

	err = s.Insert(ctx, &token.AccessToken{ID: "4", Value: "v1"})
	assert.True(t, serrors.IsKind(err, serrors.KindConflict))

	require.NoError(t, s.Delete(ctx, "1"))
	_, err = s.FindByValue(ctx, "v1")
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "1"), token.ErrTokenNotFound)
}

func TestTokenStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStore()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "old", Value: "old", ExpireAt: now.Add(-time.Second)}))
	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "edge", Value: "edge", ExpireAt: now}))
	require.NoError(t, s.Insert(ctx, &token.AccessToken{ID: "live", Value: "live", ExpireAt: now.Add(time.Minute)}))

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, s.Len())
}

func TestRefreshStoreDeleteIsSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshStore()
	require.NoError(t, s.Insert(ctx, &refresh.RefreshToken{Value: "r", AccessTokenID: "t", ExpireAt: time.Now().Add(time.Hour)}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleted, err := s.Delete(ctx, "r")
			assert.NoError(t, err)
			if deleted {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	_, err := s.FindByValue(ctx, "r")
	assert.ErrorIs(t, err, refresh.ErrRefreshTokenNotFound)
}

func TestRefreshStoreOneTokenPerAccessToken(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshStore()

	require.NoError(t, s.Insert(ctx, &refresh.RefreshToken{Value: "r1", AccessTokenID: "t"}))
	err := s.Insert(ctx, &refresh.RefreshToken{Value: "r2", AccessTokenID: "t"})
	assert.True(t, serrors.IsKind(err, serrors.KindConflict))
}

func TestCodeStoreConsume(t *testing.T) {
	ctx := context.Background()
	s := NewCodeStore()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, &oauth.AuthCode{Value: "code", ClientID: "c", ExpireAt: now.Add(time.Minute)}))
	require.NoError(t, s.Insert(ctx, &oauth.AuthCode{Value: "stale", ExpireAt: now.Add(-time.Minute)}))

	code, err := s.Consume(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "c", code.ClientID)

	_, err = s.Consume(ctx, "code")
	assert.ErrorIs(t, err, oauth.ErrAuthCodeNotFound)

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	require.NoError(t, s.Insert(ctx, &auth.User{ID: "1", Username: "alice"}))
	err := s.Insert(ctx, &auth.User{ID: "2", Username: "alice"})
	assert.True(t, serrors.IsKind(err, serrors.KindConflict))

	u, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)

	_, err = s.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
