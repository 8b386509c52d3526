package memory

import (
	"context"
	"slices"
	"sync"

	"go.pilab.hu/authd/client"
)

// ClientStore implements client.Store.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*client.Client
}

// NewClientStore creates an empty ClientStore.
func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]*client.Client)}
}

func cloneClient(c *client.Client) *client.Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.HostURIs = slices.Clone(c.HostURIs)
	return &cp
}

func (s *ClientStore) FindByID(_ context.Context, id string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, client.ErrClientNotFound
	}
	return cloneClient(c), nil
}

func (s *ClientStore) FindByAudience(_ context.Context, audienceID string) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.AudienceID == audienceID {
			return cloneClient(c), nil
		}
	}
	return nil, client.ErrClientNotFound
}

func (s *ClientStore) Insert(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(c); err != nil {
		return err
	}
	s.clients[c.ID] = cloneClient(c)
	return nil
}

func (s *ClientStore) Update(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.ID]; !ok {
		return client.ErrClientNotFound
	}
	if err := s.checkUnique(c); err != nil {
		return err
	}
	s.clients[c.ID] = cloneClient(c)
	return nil
}

// checkUnique must be called with mu held.
func (s *ClientStore) checkUnique(c *client.Client) error {
	for id, other := range s.clients {
		if id == c.ID {
			continue
		}
		switch {
		case other.Secret == c.Secret:
			return duplicate("client_secret", "...", "Client")
		case other.AudienceID == c.AudienceID:
			return duplicate("audience_id", c.AudienceID, "Client")
		}
	}
	return nil
}
