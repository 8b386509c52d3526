package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/config"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/signer"
)

// Grant is everything needed to mint an access token.
type Grant struct {
	ClientID    string
	UserID      string
	Audience    string
	Scopes      []string
	ScopeValues []string
	GrantType   GrantType
}

// Minter signs a grant and admits the result through the Store.
type Minter struct {
	signer signer.Signer
	store  *Store
	issuer string
	ttl    time.Duration
}

// NewMinter creates a new Minter instance.
func NewMinter(sg signer.Signer, store *Store, policy config.Tokens) *Minter {
	return &Minter{
		signer: sg,
		store:  store,
		issuer: policy.Issuer,
		ttl:    policy.AccessTokenTTL,
	}
}

// TTL is the lifetime of minted tokens.
func (m *Minter) TTL() time.Duration {
	return m.ttl
}

// Mint builds the claims for g, signs them and stores the token.
// Issue times have second granularity.
func (m *Minter) Mint(ctx context.Context, g Grant) (*AccessToken, error) {
	issuedAt := m.store.Now().UTC().Truncate(time.Second)
	expireAt := issuedAt.Add(m.ttl)

	subject := g.UserID
	if subject == "" {
		subject = g.ClientID
	}

	scopeValues := g.ScopeValues
	if scopeValues == nil {
		scopeValues = []string{}
	}

	claims := &signer.Claims{
		ClientID: g.ClientID,
		Scope:    scopeValues,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{g.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expireAt),
		},
	}

	value, err := m.signer.Sign(claims)
	if err != nil {
		return nil, serrors.Internal("sign access token", err)
	}

	scopes := g.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	stored, err := m.store.AdmitAndInsert(ctx, &AccessToken{
		ID:          uuid.NewString(),
		ClientID:    g.ClientID,
		UserID:      g.UserID,
		Audience:    g.Audience,
		Value:       value,
		Scopes:      scopes,
		ScopeValues: scopeValues,
		GrantType:   g.GrantType,
		IssuedAt:    issuedAt,
		ExpireAt:    expireAt,
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(g.GrantType)).Inc()
	log.Debug().
		Str("client_id", g.ClientID).
		Str("audience", g.Audience).
		Str("grant_type", string(g.GrantType)).
		Msg("access token issued")

	return stored, nil
}
