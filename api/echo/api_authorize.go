package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/oauth"
)

// AuthorizeHandler handles the authorization endpoint. The resource owner is
// identified by basic auth, which stands in for a login session.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	var req oauth.AuthorizeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, serrors.Validation("Malformed authorization request."))
	}
	if err := req.Validate(); err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()

	cli, err := oa.clients.FindByID(ctx, req.ClientID)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return fail(c, serrors.Validation("Unknown client_id."))
		}
		return fail(c, err)
	}

	var userID string
	if username, password, ok := c.Request().BasicAuth(); ok {
		if userID, err = oa.users.Authenticate(ctx, username, password); err != nil {
			return fail(c, err)
		}
	}

	resp, err := oa.engine.Authorize(ctx, cli, userID, req)
	if err != nil {
		return fail(c, err)
	}

	log.Info().
		Str("client_id", cli.ID).
		Str("response_type", req.ResponseType).
		Msg("Authorization granted")

	return c.Redirect(http.StatusFound, resp.RedirectURL)
}

// JWKSHandler publishes the RSA verification keys.
func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.keys.JWKS())
}
