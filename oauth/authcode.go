package oauth

import (
	"context"
	"time"

	serrors "go.pilab.hu/authd/errors"
)

// ErrAuthCodeNotFound is returned by repositories when no code matches.
var ErrAuthCodeNotFound = serrors.NotFound("Authorization code not found.")

// AuthCode is a single-use authorization code.
//
//nolint:tagliatelle
type AuthCode struct {
	Value       string    `bson:"value" json:"value"`
	ClientID    string    `bson:"client_id" json:"clientId"`
	UserID      string    `bson:"user_id" json:"userId"`
	Audience    string    `bson:"audience" json:"audience"`
	RedirectURI string    `bson:"redirect_uri" json:"redirectUri"`
	Scopes      []string  `bson:"scopes" json:"scopes"`
	ScopeValues []string  `bson:"scope_values" json:"scopeValues"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	ExpireAt    time.Time `bson:"expire_at" json:"expireAt"`
}

// CodeRepository persists authorization codes. Consume atomically removes
// and returns a code.
type CodeRepository interface {
	Insert(ctx context.Context, code *AuthCode) error
	Consume(ctx context.Context, value string) (*AuthCode, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CodeSweeper adapts a CodeRepository to the janitor.
type CodeSweeper struct {
	Repo CodeRepository
	Now  func() time.Time
}

func (s CodeSweeper) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Repo.DeleteExpired(ctx, now())
}
