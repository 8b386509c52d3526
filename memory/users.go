package memory

import (
	"context"
	"sync"

	"go.pilab.hu/authd/internal/auth"
)

// UserStore implements auth.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]auth.User // by username
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]auth.User)}
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (s *UserStore) Insert(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Username]; ok {
		return duplicate("username", u.Username, "User")
	}
	s.users[u.Username] = *u
	return nil
}
