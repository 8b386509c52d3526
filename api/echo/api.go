//nolint:varnamelen
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/audit"
	"go.pilab.hu/authd/internal/auth"
	"go.pilab.hu/authd/internal/auth/rbac"
	"go.pilab.hu/authd/introspect"
	"go.pilab.hu/authd/oauth"
	"go.pilab.hu/authd/scope"
	"go.pilab.hu/authd/signer"
)

// KeySet publishes the verification keys.
type KeySet interface {
	JWKS() signer.JSONWebKeySet
}

// UserAuthenticator verifies resource owner credentials on the authorize
// endpoint.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// OAuth2APIOptions groups the dependencies of OAuth2API.
type OAuth2APIOptions struct {
	Engine            *oauth.Engine
	Introspection     *introspect.Service
	Clients           *client.Directory
	Scopes            *scope.Graph
	Users             UserAuthenticator
	Keys              KeySet
	// Access grants management roles to clients. Nil denies every client.
	Access *rbac.Policy
	// Audit receives management actions. Nil discards them.
	Audit *audit.Logger
}

// OAuth2API serves the token, introspection, authorization and management
// endpoints.
type OAuth2API struct {
	engine     *oauth.Engine
	introspect *introspect.Service
	clients    *client.Directory
	scopes     *scope.Graph
	clientAuth *auth.ClientAuthenticator
	users      UserAuthenticator
	keys       KeySet
	access     *rbac.Policy
	audit      *audit.Logger
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(opts OAuth2APIOptions) *OAuth2API {
	return &OAuth2API{
		engine:     opts.Engine,
		introspect: opts.Introspection,
		clients:    opts.Clients,
		scopes:     opts.Scopes,
		clientAuth: auth.NewClientAuthenticator(opts.Clients),
		users:      opts.Users,
		keys:       opts.Keys,
		access:     opts.Access,
		audit:      opts.Audit,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/oauth2")

	g.POST("/token", oa.TokenHandler)
	g.POST("/tokeninfo", oa.TokenInfoHandler)
	g.GET("/authorize", oa.AuthorizeHandler)
	g.GET("/.well-known/jwks.json", oa.JWKSHandler)

	m := g.Group("/management")
	m.POST("/client", oa.RegisterClientHandler, oa.require(rbac.PermClientsCreate))
	m.GET("/client/:id", oa.GetClientHandler, oa.require(rbac.PermClientsRead))
	m.PUT("/client/:id", oa.UpdateClientHandler, oa.require(rbac.PermClientsUpdate))
	m.POST("/scope", oa.CreateScopeHandler, oa.require(rbac.PermScopesCreate))
	m.GET("/scope", oa.ListScopesHandler, oa.require(rbac.PermScopesRead))
	m.GET("/scope/:id", oa.GetScopeHandler, oa.require(rbac.PermScopesRead))
	m.PUT("/scope/:audienceId/:value", oa.UpdateScopeHandler, oa.require(rbac.PermScopesUpdate))
	m.DELETE("/scope/:audienceId/:value", oa.DeleteScopeHandler, oa.require(rbac.PermScopesDelete))
}

// fail renders err in the OAuth2 error shape. Internal errors are logged with
// their cause and rendered without it.
func fail(c echo.Context, err error) error {
	status := serrors.StatusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", c.Path()).Msg("request rejected")
	}

	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="oauth2"`)
	}

	return c.JSON(status, serrors.ToOAuth2(err))
}

// require lets through authenticated clients whose roles grant permission.
func (oa *OAuth2API) require(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cli, err := oa.clientAuth.AuthenticateRequest(c.Request())
			if err != nil {
				return fail(c, err)
			}

			if oa.access == nil || !oa.access.Allows(cli.ID, permission) {
				log.Warn().Str("client_id", cli.ID).Str("permission", permission).Msg("management access denied")
				return c.JSON(http.StatusForbidden, serrors.NewAccessDenied("The client is not allowed to manage this server."))
			}

			c.Set("client", cli)
			return next(c)
		}
	}
}
