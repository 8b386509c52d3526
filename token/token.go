package token

import (
	"context"
	"time"

	serrors "go.pilab.hu/authd/errors"
)

// GrantType is the OAuth2 flow a token was obtained through.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
)

// ErrTokenNotFound is returned by repositories when no token matches.
var ErrTokenNotFound = serrors.NotFound("Access token not found.")

// AccessToken is an issued, signed access token. It is never mutated after
// insertion.
//
//nolint:tagliatelle
type AccessToken struct {
	ID          string    `bson:"token_id" json:"id"`
	ClientID    string    `bson:"client_id" json:"clientId"`
	UserID      string    `bson:"user_id" json:"userId,omitempty"`
	Audience    string    `bson:"audience" json:"audience"`
	Value       string    `bson:"value" json:"value"`
	Scopes      []string  `bson:"scopes" json:"scopes"`
	ScopeValues []string  `bson:"scope_values" json:"scopeValues"`
	GrantType   GrantType `bson:"grant_type" json:"grantType"`
	IssuedAt    time.Time `bson:"issued_at" json:"issuedAt"`
	ExpireAt    time.Time `bson:"expire_at" json:"expireAt"`
}

// Expired reports whether the token is no longer live at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpireAt.After(now)
}

// Repository persists access tokens.
type Repository interface {
	// FindByClientAudience returns only tokens without a user.
	FindByClientAudience(ctx context.Context, clientID, audience string) ([]*AccessToken, error)
	FindByValue(ctx context.Context, value string) (*AccessToken, error)
	FindByID(ctx context.Context, id string) (*AccessToken, error)
	Insert(ctx context.Context, t *AccessToken) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cache is an optional lookup cache in front of the repository, keyed by token
// value.
type Cache interface {
	Get(ctx context.Context, value string) (*AccessToken, bool)
	Set(ctx context.Context, t *AccessToken)
	Delete(ctx context.Context, value string)
}
