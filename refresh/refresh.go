package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/crypto"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/token"
)

// ErrRefreshTokenNotFound is returned by repositories when no token matches.
var ErrRefreshTokenNotFound = serrors.NotFound("Refresh token not found.")

// RefreshToken is the single-use companion of exactly one access token.
//
//nolint:tagliatelle
type RefreshToken struct {
	Value         string    `bson:"value" json:"value"`
	AccessTokenID string    `bson:"access_token_id" json:"accessTokenId"`
	ClientID      string    `bson:"client_id" json:"clientId"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	ExpireAt      time.Time `bson:"expire_at" json:"expireAt"`
}

// Repository persists refresh tokens. Delete must report whether this call
// removed the record, so that only one concurrent exchange can win.
type Repository interface {
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)
	Insert(ctx context.Context, rt *RefreshToken) error
	Delete(ctx context.Context, value string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccessTokens is the part of the token store the manager needs.
type AccessTokens interface {
	FindByID(ctx context.Context, id string) (*token.AccessToken, error)
	Delete(ctx context.Context, t *token.AccessToken) error
}

// Minter re-runs the signing and limiting path.
type Minter interface {
	Mint(ctx context.Context, g token.Grant) (*token.AccessToken, error)
}

// Manager issues and rotates refresh tokens.
type Manager struct {
	repo   Repository
	tokens AccessTokens
	minter Minter
	length int
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new Manager instance.
func NewManager(repo Repository, tokens AccessTokens, minter Minter, length int, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		tokens: tokens,
		minter: minter,
		length: length,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueFor creates the refresh token for at. It lives as long as at.
func (m *Manager) IssueFor(ctx context.Context, at *token.AccessToken) (*RefreshToken, error) {
	value, err := crypto.RandomString(m.length)
	if err != nil {
		return nil, serrors.Internal("generate refresh token", err)
	}

	rt := &RefreshToken{
		Value:         value,
		AccessTokenID: at.ID,
		ClientID:      at.ClientID,
		CreatedAt:     m.now().UTC(),
		ExpireAt:      at.ExpireAt,
	}

	if err := m.repo.Insert(ctx, rt); err != nil {
		return nil, err
	}

	return rt, nil
}

// Exchange consumes value and returns a fresh access and refresh token pair
// carrying the original audience, user, scopes and client. A value can be
// exchanged at most once.
func (m *Manager) Exchange(ctx context.Context, value, clientID string) (*token.AccessToken, *RefreshToken, error) {
	if value == "" {
		return nil, nil, serrors.ErrInvalidRefreshToken
	}

	rt, err := m.repo.FindByValue(ctx, value)
	if err != nil {
		return nil, nil, invalidOr(err)
	}
	if rt.ClientID != clientID || !rt.ExpireAt.After(m.now()) {
		return nil, nil, serrors.ErrInvalidRefreshToken
	}

	at, err := m.tokens.FindByID(ctx, rt.AccessTokenID)
	if err != nil {
		return nil, nil, invalidOr(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, serrors.Internal("request cancelled before exchange", err)
	}

	deleted, err := m.repo.Delete(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if !deleted {
		log.Warn().Str("client_id", clientID).Msg("refresh token already exchanged")
		return nil, nil, serrors.ErrInvalidRefreshToken
	}

	if err := m.tokens.Delete(ctx, at); err != nil && !serrors.IsKind(err, serrors.KindNotFound) {
		return nil, nil, err
	}

	next, err := m.minter.Mint(ctx, token.Grant{
		ClientID:    at.ClientID,
		UserID:      at.UserID,
		Audience:    at.Audience,
		Scopes:      at.Scopes,
		ScopeValues: at.ScopeValues,
		GrantType:   token.GrantRefreshToken,
	})
	if err != nil {
		return nil, nil, err
	}

	nextRT, err := m.IssueFor(ctx, next)
	if err != nil {
		return nil, nil, err
	}

	metrics.TokensRefreshedTotal.Inc()

	return next, nextRT, nil
}

// DeleteExpired removes refresh tokens whose access token has expired.
func (m *Manager) DeleteExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}

func invalidOr(err error) error {
	if serrors.IsKind(err, serrors.KindNotFound) {
		return serrors.ErrInvalidRefreshToken
	}
	return err
}
