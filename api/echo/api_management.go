package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/audit"
	"go.pilab.hu/authd/scope"
)

// RegisterClientHandler registers a client and returns its credentials once.
func (oa *OAuth2API) RegisterClientHandler(c echo.Context) error {
	var info client.Info
	if err := c.Bind(&info); err != nil {
		return fail(c, serrors.Validation("Malformed client registration."))
	}

	cli, err := oa.clients.Register(c.Request().Context(), info)
	oa.record(c, "client.register", info.Name, err)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, cli)
}

// GetClientHandler returns a client without its credentials.
func (oa *OAuth2API) GetClientHandler(c echo.Context) error {
	cli, err := oa.clients.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, withoutCredentials(cli))
}

// UpdateClientHandler applies a partial update to the client's basic
// information. Credentials and the audience never change.
func (oa *OAuth2API) UpdateClientHandler(c echo.Context) error {
	var patch client.Patch
	if err := c.Bind(&patch); err != nil {
		return fail(c, serrors.Validation("Malformed client information."))
	}

	cli, err := oa.clients.Update(c.Request().Context(), c.Param("id"), patch)
	oa.record(c, "client.update", c.Param("id"), err)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, withoutCredentials(cli))
}

func withoutCredentials(cli *client.Client) *client.Client {
	view := *cli
	view.Secret = ""
	view.RegistrationAccessToken = ""
	return &view
}

func (oa *OAuth2API) CreateScopeHandler(c echo.Context) error {
	var info scope.Info
	if err := c.Bind(&info); err != nil {
		return fail(c, serrors.Validation("Malformed scope."))
	}

	s, err := oa.scopes.Create(c.Request().Context(), info)
	oa.record(c, "scope.create", info.AudienceID+"/"+info.Value, err)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, s)
}

func (oa *OAuth2API) GetScopeHandler(c echo.Context) error {
	s, err := oa.scopes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// ListScopesHandler lists by audienceId or by clientId.
func (oa *OAuth2API) ListScopesHandler(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		scopes []*scope.Scope
		err    error
	)
	switch {
	case c.QueryParam("audienceId") != "":
		scopes, err = oa.scopes.ListByAudience(ctx, c.QueryParam("audienceId"))
	case c.QueryParam("clientId") != "":
		scopes, err = oa.scopes.ListByClient(ctx, c.QueryParam("clientId"))
	default:
		err = serrors.Validation("Either audienceId or clientId is required.")
	}
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, scopes)
}

func (oa *OAuth2API) UpdateScopeHandler(c echo.Context) error {
	var patch scope.Patch
	if err := c.Bind(&patch); err != nil {
		return fail(c, serrors.Validation("Malformed scope update."))
	}

	s, err := oa.scopes.Update(c.Request().Context(), c.Param("audienceId"), c.Param("value"), patch)
	oa.record(c, "scope.update", c.Param("audienceId")+"/"+c.Param("value"), err)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, s)
}

func (oa *OAuth2API) DeleteScopeHandler(c echo.Context) error {
	audienceID, value := c.Param("audienceId"), c.Param("value")

	deleted, err := oa.scopes.Delete(c.Request().Context(), audienceID, value)
	if err == nil && !deleted {
		err = scope.ErrScopeNotFound
	}
	oa.record(c, "scope.delete", audienceID+"/"+value, err)
	if err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// record audits a management action taken by the authenticated caller.
func (oa *OAuth2API) record(c echo.Context, action, target string, err error) {
	var actor string
	if cli, ok := c.Get("client").(*client.Client); ok {
		actor = cli.ID
	}
	oa.audit.Record(audit.Event{Action: action, Actor: actor, Target: target, Err: err})
}
