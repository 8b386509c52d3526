package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.pilab.hu/authd/token"
)

// TokenStore implements token.Repository.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*token.AccessToken // by id
	values map[string]string             // value -> id
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*token.AccessToken),
		values: make(map[string]string),
	}
}

func cloneToken(t *token.AccessToken) *token.AccessToken {
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	cp.ScopeValues = slices.Clone(t.ScopeValues)
	return &cp
}

func (s *TokenStore) FindByClientAudience(_ context.Context, clientID, audience string) ([]*token.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*token.AccessToken{}
	for _, t := range s.tokens {
		if t.ClientID == clientID && t.Audience == audience && t.UserID == "" {
			out = append(out, cloneToken(t))
		}
	}
	return out, nil
}

func (s *TokenStore) FindByValue(_ context.Context, value string) (*token.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.values[value]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	return cloneToken(s.tokens[id]), nil
}

func (s *TokenStore) FindByID(_ context.Context, id string) (*token.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (s *TokenStore) Insert(_ context.Context, t *token.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[t.Value]; ok {
		return duplicate("value", "...", "AccessToken")
	}
	if _, ok := s.tokens[t.ID]; ok {
		return duplicate("token_id", t.ID, "AccessToken")
	}
	s.tokens[t.ID] = cloneToken(t)
	s.values[t.Value] = t.ID
	return nil
}

func (s *TokenStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return token.ErrTokenNotFound
	}
	delete(s.tokens, id)
	delete(s.values, t.Value)
	return nil
}

func (s *TokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, id)
			delete(s.values, t.Value)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
