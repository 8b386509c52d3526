package introspect

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/signer"
	"go.pilab.hu/authd/token"
)

// Result is the introspection answer. An inactive result carries no claims.
//
//nolint:tagliatelle
type Result struct {
	Active    bool     `json:"active"`
	ClientID  string   `json:"client_id,omitempty"`
	Audience  string   `json:"aud,omitempty"`
	Scope     []string `json:"scope,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
}

var inactive = Result{Active: false}

// Verifier verifies signed access tokens.
type Verifier interface {
	Verify(token string) (*signer.Claims, error)
}

// TokenFinder looks stored access tokens up by value.
type TokenFinder interface {
	FindByValue(ctx context.Context, value string) (*token.AccessToken, error)
}

// ClientFinder looks clients up by id.
type ClientFinder interface {
	FindByID(ctx context.Context, id string) (*client.Client, error)
}

// Service answers introspection queries.
type Service struct {
	verifier Verifier
	tokens   TokenFinder
	clients  ClientFinder
	now      func() time.Time
}

// NewService creates a new Service instance.
func NewService(verifier Verifier, tokens TokenFinder, clients ClientFinder) *Service {
	return &Service{
		verifier: verifier,
		tokens:   tokens,
		clients:  clients,
		now:      time.Now,
	}
}

// WithClock returns a copy of s using now as its clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Introspect reports whether tokenValue is active and, when the requester is
// the owning client or the audience client, its claims. Unknown, expired,
// malformed and foreign tokens are indistinguishable. Only store failures
// return an error.
func (s *Service) Introspect(ctx context.Context, tokenValue, requesterClientID string) (Result, error) {
	res, err := s.introspect(ctx, tokenValue, requesterClientID)
	if err != nil {
		return inactive, err
	}

	metrics.IntrospectionsTotal.WithLabelValues(strconv.FormatBool(res.Active)).Inc()
	return res, nil
}

func (s *Service) introspect(ctx context.Context, tokenValue, requesterClientID string) (Result, error) {
	if tokenValue == "" || requesterClientID == "" {
		return inactive, nil
	}

	claims, err := s.verifier.Verify(tokenValue)
	if err != nil {
		log.Debug().Err(err).Str("requester", requesterClientID).Msg("introspected token failed verification")
		return inactive, nil
	}

	stored, err := s.tokens.FindByValue(ctx, tokenValue)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return inactive, nil
		}
		return inactive, err
	}
	if stored.Expired(s.now()) {
		return inactive, nil
	}

	allowed, err := s.authorized(ctx, stored, requesterClientID)
	if err != nil || !allowed {
		return inactive, err
	}

	res := Result{
		Active:   true,
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
		Subject:  claims.Subject,
		UserID:   stored.UserID,
		Issuer:   claims.Issuer,
	}
	if len(claims.Audience) > 0 {
		res.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		res.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Unix()
	}

	return res, nil
}

// authorized allows the owning client and the client whose audience the token
// was issued for.
func (s *Service) authorized(ctx context.Context, t *token.AccessToken, requesterClientID string) (bool, error) {
	if t.ClientID == requesterClientID {
		return true, nil
	}

	requester, err := s.clients.FindByID(ctx, requesterClientID)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	return requester.AudienceID == t.Audience, nil
}
