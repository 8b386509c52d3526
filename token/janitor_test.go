package token_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/lock"
	"go.pilab.hu/authd/memory"
	"go.pilab.hu/authd/token"
)

type failingSweeper struct{ calls int }

func (f *failingSweeper) DeleteExpired(context.Context) (int64, error) {
	f.calls++
	return 0, errors.New("store down")
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := memory.NewTokenStore()
	require.NoError(t, repo.Insert(ctx, &token.AccessToken{ID: "1", Value: "1", ExpireAt: now.Add(-time.Minute)}))
	require.NoError(t, repo.Insert(ctx, &token.AccessToken{ID: "2", Value: "2", ExpireAt: now.Add(time.Minute)}))

	store := token.NewStore(repo, lock.NewLocal(), token.Quota{Limit: 1}, token.WithClock(func() time.Time { return now }))
	broken := &failingSweeper{}

	token.Sweep(ctx, map[string]token.Sweeper{"access_token": store, "broken": broken})

	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, 1, broken.calls)
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &failingSweeper{}

	done := make(chan struct{})
	go func() {
		token.RunJanitor(ctx, 5*time.Millisecond, map[string]token.Sweeper{"broken": s})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
