package scope

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
)

// Type controls who may request a scope.
type Type string

const (
	// Public scopes can be requested by any client.
	Public Type = "PUBLIC"
	// Private scopes are limited to the owning audience and permitted clients.
	Private Type = "PRIVATE"
)

// Scope is a named capability owned by an audience.
//
//nolint:tagliatelle
type Scope struct {
	ID               string    `bson:"scope_id" json:"id"`
	Value            string    `bson:"value" json:"value"`
	AudienceID       string    `bson:"audience_id" json:"audienceId"`
	Type             Type      `bson:"type" json:"type"`
	PermittedClients []string  `bson:"permitted_clients" json:"permittedClients"`
	Description      string    `bson:"description" json:"description"`
	CreatedAt        time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updatedAt"`
}

// Info is the creation request for a scope.
type Info struct {
	Value            string   `json:"value"`
	AudienceID       string   `json:"audienceId"`
	Type             Type     `json:"type"`
	PermittedClients []string `json:"permittedClients"`
	Description      string   `json:"description"`
}

// Validate checks the request shape.
func (i Info) Validate() error {
	if i.Value == "" {
		return serrors.Validation("The scope value is missing.")
	}
	if strings.ContainsAny(i.Value, " \t\r\n") {
		return serrors.Validation("The scope value must not contain whitespace.")
	}
	if i.AudienceID == "" {
		return serrors.Validation("The scope audience is missing.")
	}
	switch i.Type {
	case Public, Private:
	case "":
		return serrors.Validation("The scope type is missing.")
	default:
		return serrors.Validationf("Unknown scope type: %s", i.Type)
	}
	return nil
}

// Patch is the only mutation allowed on an existing scope.
type Patch struct {
	PermittedClients []string `json:"permittedClients"`
	Description      *string  `json:"description,omitempty"`
}

// ClientFinder is the part of the client directory the graph joins through.
type ClientFinder interface {
	FindByID(ctx context.Context, id string) (*client.Client, error)
	FindByAudience(ctx context.Context, audienceID string) (*client.Client, error)
}

// Graph decides which scopes a client may obtain against an audience.
type Graph struct {
	repo    Repository
	clients ClientFinder
	now     func() time.Time
}

// NewGraph creates a new Graph instance.
func NewGraph(repo Repository, clients ClientFinder) *Graph {
	return &Graph{
		repo:    repo,
		clients: clients,
		now:     time.Now,
	}
}

// Create stores a new scope. The owning audience and every permitted client
// must already be registered.
func (g *Graph) Create(ctx context.Context, info Info) (*Scope, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	if _, err := g.clients.FindByAudience(ctx, info.AudienceID); err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil, serrors.Validationf("Unknown audience: %s", info.AudienceID)
		}
		return nil, err
	}

	permitted, err := g.checkPermittedClients(ctx, info.PermittedClients)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	s := &Scope{
		ID:               uuid.NewString(),
		Value:            info.Value,
		AudienceID:       info.AudienceID,
		Type:             info.Type,
		PermittedClients: permitted,
		Description:      client.Describe(info.Description),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := g.repo.Insert(ctx, s); err != nil {
		return nil, err
	}

	log.Info().Str("audience_id", s.AudienceID).Str("scope", s.Value).Msg("scope created")

	return s, nil
}

// Update replaces the permitted clients and optionally the description.
func (g *Graph) Update(ctx context.Context, audienceID, value string, patch Patch) (*Scope, error) {
	s, err := g.repo.FindByAudienceAndValue(ctx, audienceID, value)
	if err != nil {
		return nil, err
	}

	if patch.PermittedClients != nil {
		permitted, err := g.checkPermittedClients(ctx, patch.PermittedClients)
		if err != nil {
			return nil, err
		}
		s.PermittedClients = permitted
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	s.UpdatedAt = g.now().UTC()

	if err := g.repo.Update(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Delete removes a scope and reports whether it existed.
func (g *Graph) Delete(ctx context.Context, audienceID, value string) (bool, error) {
	return g.repo.Delete(ctx, audienceID, value)
}

// Get returns a scope by id.
func (g *Graph) Get(ctx context.Context, id string) (*Scope, error) {
	return g.repo.FindByID(ctx, id)
}

// ListByAudience returns all scopes owned by an audience.
func (g *Graph) ListByAudience(ctx context.Context, audienceID string) ([]*Scope, error) {
	return g.repo.FindByAudience(ctx, audienceID)
}

// ListByClient returns the scopes owned by the client's own audience.
func (g *Graph) ListByClient(ctx context.Context, clientID string) ([]*Scope, error) {
	c, err := g.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return g.repo.FindByAudience(ctx, c.AudienceID)
}

// ResolveGrantable returns the scopes for values, or InsufficientScope if any
// one of them is unknown or not permitted. There are no partial grants.
func (g *Graph) ResolveGrantable(ctx context.Context, requestingClientID, audienceID string, values []string) ([]*Scope, error) {
	requester, err := g.clients.FindByID(ctx, requestingClientID)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil, serrors.ErrInsufficientScope
		}
		return nil, err
	}
	owner := requester.AudienceID == audienceID

	seen := make(map[string]struct{}, len(values))
	granted := make([]*Scope, 0, len(values))

	for _, value := range values {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}

		s, err := g.repo.FindByAudienceAndValue(ctx, audienceID, value)
		if err != nil {
			if serrors.IsKind(err, serrors.KindNotFound) {
				log.Debug().Str("client_id", requestingClientID).Str("scope", value).Msg("unknown scope requested")
				return nil, serrors.ErrInsufficientScope
			}
			return nil, err
		}

		if !s.Grantable(requestingClientID, owner) {
			log.Debug().Str("client_id", requestingClientID).Str("scope", value).Msg("scope not permitted")
			return nil, serrors.ErrInsufficientScope
		}

		granted = append(granted, s)
	}

	return granted, nil
}

// Grantable reports whether clientID may obtain s.
func (s *Scope) Grantable(clientID string, ownsAudience bool) bool {
	return s.Type == Public || ownsAudience || slices.Contains(s.PermittedClients, clientID)
}

func (g *Graph) checkPermittedClients(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if slices.Contains(out, id) {
			continue
		}
		if _, err := g.clients.FindByID(ctx, id); err != nil {
			if serrors.IsKind(err, serrors.KindNotFound) {
				return nil, serrors.Validationf("Unknown permitted client: %s", id)
			}
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Values returns the scope values in order.
func Values(scopes []*Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = s.Value
	}
	return out
}

// IDs returns the scope ids in order.
func IDs(scopes []*Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = s.ID
	}
	return out
}
