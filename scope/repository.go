package scope

import (
	"context"

	serrors "go.pilab.hu/authd/errors"
)

// ErrScopeNotFound is returned by repositories when no scope matches.
var ErrScopeNotFound = serrors.NotFound("Scope not found.")

// Repository persists scopes. (Value, AudienceID) is unique.
type Repository interface {
	FindByAudienceAndValue(ctx context.Context, audienceID, value string) (*Scope, error)
	FindByID(ctx context.Context, id string) (*Scope, error)
	FindByAudience(ctx context.Context, audienceID string) ([]*Scope, error)
	Insert(ctx context.Context, s *Scope) error
	Update(ctx context.Context, s *Scope) error
	Delete(ctx context.Context, audienceID, value string) (bool, error)
}
