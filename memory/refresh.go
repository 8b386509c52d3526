package memory

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/authd/refresh"
)

// RefreshStore implements refresh.Repository.
type RefreshStore struct {
	mu     sync.Mutex
	tokens map[string]refresh.RefreshToken // by value
}

// NewRefreshStore creates an empty RefreshStore.
func NewRefreshStore() *RefreshStore {
	return &RefreshStore{tokens: make(map[string]refresh.RefreshToken)}
}

func (s *RefreshStore) FindByValue(_ context.Context, value string) (*refresh.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[value]
	if !ok {
		return nil, refresh.ErrRefreshTokenNotFound
	}
	return &rt, nil
}

func (s *RefreshStore) Insert(_ context.Context, rt *refresh.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[rt.Value]; ok {
		return duplicate("value", "...", "RefreshToken")
	}
	for _, other := range s.tokens {
		if other.AccessTokenID == rt.AccessTokenID {
			return duplicate("access_token_id", rt.AccessTokenID, "RefreshToken")
		}
	}
	s.tokens[rt.Value] = *rt
	return nil
}

func (s *RefreshStore) Delete(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[value]; !ok {
		return false, nil
	}
	delete(s.tokens, value)
	return true, nil
}

func (s *RefreshStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for v, rt := range s.tokens {
		if !rt.ExpireAt.After(now) {
			delete(s.tokens, v)
			n++
		}
	}
	return n, nil
}
