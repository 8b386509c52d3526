package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/oauth"
)

// TokenHandler handles OAuth2 token requests. The client authenticates with
// basic auth or with client_id and client_secret in the form body.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	var req oauth.TokenRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, serrors.Validation("Malformed token request."))
	}
	if err := req.Validate(); err != nil {
		return fail(c, err)
	}

	cli, err := oa.clientAuth.AuthenticateRequest(c.Request())
	if err != nil {
		return fail(c, err)
	}

	resp, err := oa.engine.Token(c.Request().Context(), cli, req)
	if err != nil {
		return fail(c, err)
	}

	log.Info().
		Str("client_id", cli.ID).
		Str("grant_type", req.GrantType).
		Int64("expires_in", resp.ExpiresIn).
		Msg("Token generated")

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, resp)
}

// TokenInfoHandler answers introspection requests. The answer is always 200
// unless the store failed.
func (oa *OAuth2API) TokenInfoHandler(c echo.Context) error {
	cli, err := oa.clientAuth.AuthenticateRequest(c.Request())
	if err != nil {
		return fail(c, err)
	}

	value := c.FormValue("token")
	if len(value) > maxTokenLength {
		value = ""
	}

	res, err := oa.introspect.Introspect(c.Request().Context(), value, cli.ID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, res)
}

const maxTokenLength = 8192
