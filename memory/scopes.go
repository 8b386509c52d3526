package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"go.pilab.hu/authd/scope"
)

// ScopeStore implements scope.Repository.
type ScopeStore struct {
	mu     sync.RWMutex
	scopes map[string]*scope.Scope // by id
}

// NewScopeStore creates an empty ScopeStore.
func NewScopeStore() *ScopeStore {
	return &ScopeStore{scopes: make(map[string]*scope.Scope)}
}

func cloneScope(s *scope.Scope) *scope.Scope {
	cp := *s
	cp.PermittedClients = slices.Clone(s.PermittedClients)
	return &cp
}

func (m *ScopeStore) FindByAudienceAndValue(_ context.Context, audienceID, value string) (*scope.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s := m.find(audienceID, value); s != nil {
		return cloneScope(s), nil
	}
	return nil, scope.ErrScopeNotFound
}

func (m *ScopeStore) FindByID(_ context.Context, id string) (*scope.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scopes[id]
	if !ok {
		return nil, scope.ErrScopeNotFound
	}
	return cloneScope(s), nil
}

func (m *ScopeStore) FindByAudience(_ context.Context, audienceID string) ([]*scope.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*scope.Scope{}
	for _, s := range m.scopes {
		if s.AudienceID == audienceID {
			out = append(out, cloneScope(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (m *ScopeStore) Insert(_ context.Context, s *scope.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(s.AudienceID, s.Value) != nil {
		return duplicate("value", s.Value, "Scope")
	}
	m.scopes[s.ID] = cloneScope(s)
	return nil
}

func (m *ScopeStore) Update(_ context.Context, s *scope.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scopes[s.ID]; !ok {
		return scope.ErrScopeNotFound
	}
	m.scopes[s.ID] = cloneScope(s)
	return nil
}

func (m *ScopeStore) Delete(_ context.Context, audienceID, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.find(audienceID, value)
	if s == nil {
		return false, nil
	}
	delete(m.scopes, s.ID)
	return true, nil
}

// find must be called with mu held.
func (m *ScopeStore) find(audienceID, value string) *scope.Scope {
	for _, s := range m.scopes {
		if s.AudienceID == audienceID && s.Value == value {
			return s
		}
	}
	return nil
}
