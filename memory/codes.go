package memory

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/authd/oauth"
)

// CodeStore implements oauth.CodeRepository.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]oauth.AuthCode
}

// NewCodeStore creates an empty CodeStore.
func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]oauth.AuthCode)}
}

func (s *CodeStore) Insert(_ context.Context, code *oauth.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code.Value]; ok {
		return duplicate("value", "...", "AuthCode")
	}
	s.codes[code.Value] = *code
	return nil
}

func (s *CodeStore) Consume(_ context.Context, value string) (*oauth.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[value]
	if !ok {
		return nil, oauth.ErrAuthCodeNotFound
	}
	delete(s.codes, value)
	return &code, nil
}

func (s *CodeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for v, code := range s.codes {
		if !code.ExpireAt.After(now) {
			delete(s.codes, v)
			n++
		}
	}
	return n, nil
}
