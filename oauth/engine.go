package oauth

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/client"
	"go.pilab.hu/authd/config"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/crypto"
	"go.pilab.hu/authd/refresh"
	"go.pilab.hu/authd/scope"
	"go.pilab.hu/authd/token"
)

var (
	errMissingCredentials  = serrors.Validation("The username and password parameters are required.")
	errMissingRefreshToken = serrors.Validation("The refresh_token parameter is missing.")
	errMissingCode         = serrors.Validation("The code parameter is missing.")
	errMissingRedirectURI  = serrors.Validation("The redirect_uri parameter is missing.")
	errInvalidCode         = serrors.New(serrors.KindInvalidGrant, "Invalid authorization code.")
	errInvalidRedirectURI  = serrors.Validation("The redirect URI is not registered for this client.")
	errLoginRequired       = serrors.New(serrors.KindAuthentication, "User authentication is required.")
	errUnsupportedResponse = serrors.New(serrors.KindNotImplemented, "The response type is not implemented.")
)

// Directory resolves audiences to clients.
type Directory interface {
	FindByAudience(ctx context.Context, audienceID string) (*client.Client, error)
}

// ScopeResolver decides which scopes a client may obtain.
type ScopeResolver interface {
	ResolveGrantable(ctx context.Context, requestingClientID, audienceID string, values []string) ([]*scope.Scope, error)
}

// Minter signs and admits access tokens.
type Minter interface {
	Mint(ctx context.Context, g token.Grant) (*token.AccessToken, error)
}

// RefreshManager issues and rotates refresh tokens.
type RefreshManager interface {
	IssueFor(ctx context.Context, at *token.AccessToken) (*refresh.RefreshToken, error)
	Exchange(ctx context.Context, value, clientID string) (*token.AccessToken, *refresh.RefreshToken, error)
}

// UserAuthenticator verifies resource owner credentials.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// Engine runs the grant type state machine.
type Engine struct {
	clients Directory
	scopes  ScopeResolver
	minter  Minter
	refresh RefreshManager
	users   UserAuthenticator
	codes   CodeRepository
	policy  config.Tokens
	now     func() time.Time
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Clients Directory
	Scopes  ScopeResolver
	Minter  Minter
	Refresh RefreshManager
	Users   UserAuthenticator
	Codes   CodeRepository
}

// NewEngine creates a new Engine instance.
func NewEngine(deps Deps, policy config.Tokens) *Engine {
	return &Engine{
		clients: deps.Clients,
		scopes:  deps.Scopes,
		minter:  deps.Minter,
		refresh: deps.Refresh,
		users:   deps.Users,
		codes:   deps.Codes,
		policy:  policy,
		now:     time.Now,
	}
}

// WithClock returns a copy of e using now as its clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// requiresAudience reports whether the request itself must name an audience.
// Code and refresh grants take it from the stored record.
func requiresAudience(gt token.GrantType) bool {
	return gt != token.GrantAuthorizationCode && gt != token.GrantRefreshToken
}

// Token handles a token endpoint request. cli is the already authenticated
// client, or nil.
func (e *Engine) Token(ctx context.Context, cli *client.Client, req TokenRequest) (*TokenResponse, error) {
	if cli == nil {
		return nil, serrors.ErrUnauthorized
	}

	gt := token.GrantType(req.GrantType)
	if requiresAudience(gt) && req.Audience == "" {
		return nil, serrors.ErrMissingAudience
	}

	switch gt {
	case token.GrantClientCredentials:
		return e.clientCredentials(ctx, cli, req)
	case token.GrantPassword:
		return e.password(ctx, cli, req)
	case token.GrantAuthorizationCode:
		return e.authorizationCode(ctx, cli, req)
	case token.GrantRefreshToken:
		return e.refreshToken(ctx, cli, req)
	default:
		log.Debug().Str("client_id", cli.ID).Str("grant_type", req.GrantType).Msg("unsupported grant type")
		return nil, serrors.ErrNotImplemented
	}
}

func (e *Engine) clientCredentials(ctx context.Context, cli *client.Client, req TokenRequest) (*TokenResponse, error) {
	scopes, err := e.resolve(ctx, cli, req.Audience, req.Scopes())
	if err != nil {
		return nil, err
	}

	at, err := e.minter.Mint(ctx, grantOf(cli.ID, "", req.Audience, scopes, token.GrantClientCredentials))
	if err != nil {
		return nil, err
	}

	return e.respond(at, nil), nil
}

func (e *Engine) password(ctx context.Context, cli *client.Client, req TokenRequest) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errMissingCredentials
	}

	userID, err := e.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	scopes, err := e.resolve(ctx, cli, req.Audience, req.Scopes())
	if err != nil {
		return nil, err
	}

	return e.issueWithRefresh(ctx, grantOf(cli.ID, userID, req.Audience, scopes, token.GrantPassword))
}

func (e *Engine) authorizationCode(ctx context.Context, cli *client.Client, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, errMissingCode
	}
	if req.RedirectURI == "" {
		return nil, errMissingRedirectURI
	}

	// The code is burned even when the checks below fail.
	code, err := e.codes.Consume(ctx, req.Code)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil, errInvalidCode
		}
		return nil, err
	}

	if code.ClientID != cli.ID || !code.ExpireAt.After(e.now()) || code.RedirectURI != req.RedirectURI {
		log.Warn().Str("client_id", cli.ID).Msg("authorization code rejected")
		return nil, errInvalidCode
	}

	return e.issueWithRefresh(ctx, token.Grant{
		ClientID:    cli.ID,
		UserID:      code.UserID,
		Audience:    code.Audience,
		Scopes:      code.Scopes,
		ScopeValues: code.ScopeValues,
		GrantType:   token.GrantAuthorizationCode,
	})
}

func (e *Engine) refreshToken(ctx context.Context, cli *client.Client, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, errMissingRefreshToken
	}

	at, rt, err := e.refresh.Exchange(ctx, req.RefreshToken, cli.ID)
	if err != nil {
		return nil, err
	}

	return e.respond(at, rt), nil
}

// Authorize handles the authorization endpoint once the user session has been
// established. userID is the authenticated resource owner.
func (e *Engine) Authorize(ctx context.Context, cli *client.Client, userID string, req AuthorizeRequest) (*AuthorizeResponse, error) {
	if cli == nil {
		return nil, serrors.ErrUnauthorized
	}
	if userID == "" {
		return nil, errLoginRequired
	}
	if !client.IsValidRedirectURI(cli, req.RedirectURI) {
		return nil, errInvalidRedirectURI
	}
	if req.Audience == "" {
		return nil, serrors.ErrMissingAudience
	}

	rt := ResponseType(req.ResponseType)
	if rt != ResponseTypeCode && rt != ResponseTypeToken {
		return nil, errUnsupportedResponse
	}

	scopes, err := e.resolve(ctx, cli, req.Audience, req.Scopes())
	if err != nil {
		return nil, err
	}

	if rt == ResponseTypeToken {
		return e.implicit(ctx, cli, userID, req, scopes)
	}

	value, err := crypto.RandomString(e.policy.AuthCodeLength)
	if err != nil {
		return nil, serrors.Internal("generate authorization code", err)
	}

	now := e.now().UTC()
	code := &AuthCode{
		Value:       value,
		ClientID:    cli.ID,
		UserID:      userID,
		Audience:    req.Audience,
		RedirectURI: req.RedirectURI,
		Scopes:      scope.IDs(scopes),
		ScopeValues: scope.Values(scopes),
		CreatedAt:   now,
		ExpireAt:    now.Add(e.policy.AuthCodeTTL),
	}
	if err := e.codes.Insert(ctx, code); err != nil {
		return nil, err
	}

	params := url.Values{"code": {code.Value}}
	if req.State != "" {
		params.Set("state", req.State)
	}

	return &AuthorizeResponse{RedirectURL: withQuery(req.RedirectURI, params)}, nil
}

func (e *Engine) implicit(ctx context.Context, cli *client.Client, userID string, req AuthorizeRequest, scopes []*scope.Scope) (*AuthorizeResponse, error) {
	at, err := e.minter.Mint(ctx, grantOf(cli.ID, userID, req.Audience, scopes, token.GrantImplicit))
	if err != nil {
		return nil, err
	}

	resp := e.respond(at, nil)
	params := url.Values{
		"access_token": {resp.AccessToken},
		"token_type":   {resp.TokenType},
		"expires_in":   {strconv.FormatInt(resp.ExpiresIn, 10)},
	}
	if req.State != "" {
		params.Set("state", req.State)
	}

	return &AuthorizeResponse{RedirectURL: withFragment(req.RedirectURI, params)}, nil
}

// resolve checks the audience exists and resolves the requested scopes.
func (e *Engine) resolve(ctx context.Context, cli *client.Client, audience string, values []string) ([]*scope.Scope, error) {
	if _, err := e.clients.FindByAudience(ctx, audience); err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil, serrors.ErrInvalidAudience
		}
		return nil, err
	}

	return e.scopes.ResolveGrantable(ctx, cli.ID, audience, values)
}

func (e *Engine) issueWithRefresh(ctx context.Context, g token.Grant) (*TokenResponse, error) {
	at, err := e.minter.Mint(ctx, g)
	if err != nil {
		return nil, err
	}

	rt, err := e.refresh.IssueFor(ctx, at)
	if err != nil {
		return nil, err
	}

	return e.respond(at, rt), nil
}

func (e *Engine) respond(at *token.AccessToken, rt *refresh.RefreshToken) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: at.Value,
		ExpiresIn:   int64(at.ExpireAt.Sub(at.IssuedAt) / time.Second),
		TokenType:   bearerType,
	}
	if rt != nil {
		resp.RefreshToken = rt.Value
	}
	return resp
}

func grantOf(clientID, userID, audience string, scopes []*scope.Scope, gt token.GrantType) token.Grant {
	return token.Grant{
		ClientID:    clientID,
		UserID:      userID,
		Audience:    audience,
		Scopes:      scope.IDs(scopes),
		ScopeValues: scope.Values(scopes),
		GrantType:   gt,
	}
}

func withQuery(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func withFragment(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String() + "#" + params.Encode()
}
