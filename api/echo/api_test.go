package echo_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	echoapi "go.pilab.hu/authd/api/echo"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/audit"
	"go.pilab.hu/authd/internal/auth/rbac"
	"go.pilab.hu/authd/internal/authtest"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/introspect"
	"go.pilab.hu/authd/oauth"
	"go.pilab.hu/authd/scope"
)

type testServer struct {
	h     *authtest.Harness
	e     *echo.Echo
	admin *client.Client
	api   *client.Client
	app   *client.Client
	audit bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	h := authtest.New(t)
	s := &testServer{
		h:     h,
		admin: h.RegisterClient(t, "admin"),
		api:   h.RegisterClient(t, "api"),
		app:   h.RegisterClient(t, "app", "/callback"),
	}
	h.CreateScope(t, s.api.AudienceID, "read", scope.Public)
	h.CreateUser(t, "alice", "wonderland")

	reg := prometheus.NewRegistry()
	metrics.InitCustomMetrics(reg)

	api := echoapi.NewOAuth2API(echoapi.OAuth2APIOptions{
		Engine:            h.Engine,
		Introspection:     h.Introspect,
		Clients:           h.Clients,
		Scopes:            h.Scopes,
		Users:             h.Users,
		Keys:              h.Signer,
		Access:            rbac.NewPolicy([]string{s.admin.ID}, []string{s.api.ID}),
		Audit:             audit.New(&s.audit),
	})
	s.e = echoapi.NewServer(api, echoapi.ServerOptions{Gatherer: reg})
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func formRequest(path string, form url.Values, cli *client.Client) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if cli != nil {
		req.SetBasicAuth(cli.ID, cli.Secret)
	}
	return req
}

func jsonRequest(method, path, body string, cli *client.Client) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if cli != nil {
		req.SetBasicAuth(cli.ID, cli.Secret)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestTokenEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"audience":   {s.api.AudienceID},
		"scope":      {"read"},
	}, s.app))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))

	resp := decode[oauth.TokenResponse](t, rec)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)

	// Credentials in the body work as well.
	rec = s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"audience":      {s.api.AudienceID},
		"client_id":     {s.admin.ID},
		"client_secret": {s.admin.Secret},
	}, nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenEndpointErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, formRequest("/oauth2/token", url.Values{"grant_type": {"client_credentials"}, "audience": {s.api.AudienceID}}, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.Equal(t, serrors.InvalidClient, decode[serrors.OAuth2Error](t, rec).Code)

	rec = s.do(t, formRequest("/oauth2/token", url.Values{"grant_type": {"client_credentials"}}, s.app))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, serrors.MsgMissingAudience, decode[serrors.OAuth2Error](t, rec).Description)

	rec = s.do(t, formRequest("/oauth2/token", url.Values{"grant_type": {"urn:ietf:params:oauth:grant-type:device_code"}, "audience": {s.api.AudienceID}}, s.app))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"audience":   {s.api.AudienceID},
		"scope":      {"write"},
	}, s.app))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, serrors.InvalidScope, decode[serrors.OAuth2Error](t, rec).Code)

	rec = s.do(t, formRequest("/oauth2/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"bogus"}}, s.app))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, serrors.MsgInvalidRefreshToken, decode[serrors.OAuth2Error](t, rec).Description)
}

func TestTokenInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"audience":   {s.api.AudienceID},
	}, s.app))
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[oauth.TokenResponse](t, rec).AccessToken

	rec = s.do(t, formRequest("/oauth2/tokeninfo", url.Values{"token": {tok}}, s.api))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[introspect.Result](t, rec)
	assert.True(t, res.Active)
	assert.Equal(t, s.app.ID, res.ClientID)

	rec = s.do(t, formRequest("/oauth2/tokeninfo", url.Values{"token": {tok}}, s.admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())

	rec = s.do(t, formRequest("/oauth2/tokeninfo", url.Values{"token": {tok}}, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeEndpoint(t *testing.T) {
	s := newTestServer(t)

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {s.app.ID},
		"redirect_uri":  {"https://app.example.com/callback"},
		"audience":      {s.api.AudienceID},
		"scope":         {"read"},
		"state":         {"abc"},
	}

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+query.Encode(), nil)
	rec := s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+query.Encode(), nil)
	req.SetBasicAuth("alice", "wrong")
	rec = s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+query.Encode(), nil)
	req.SetBasicAuth("alice", "wonderland")
	rec = s.do(t, req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "abc", loc.Query().Get("state"))

	rec = s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {loc.Query().Get("code")},
		"redirect_uri": {"https://app.example.com/callback"},
	}, s.app))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[oauth.TokenResponse](t, rec).RefreshToken)
}

func TestManagementEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, jsonRequest(http.MethodPost, "/oauth2/management/scope", `{"value":"x"}`, s.app))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPost, "/oauth2/management/scope", `{"value":"x"}`, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := `{"value":"write","audienceId":"` + s.api.AudienceID + `","type":"PRIVATE","permittedClients":["` + s.app.ID + `"]}`
	rec = s.do(t, jsonRequest(http.MethodPost, "/oauth2/management/scope", body, s.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[scope.Scope](t, rec)
	assert.Equal(t, []string{s.app.ID}, created.PermittedClients)

	rec = s.do(t, jsonRequest(http.MethodPost, "/oauth2/management/scope", body, s.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodGet, "/oauth2/management/scope/"+created.ID, "", s.admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "write", decode[scope.Scope](t, rec).Value)

	rec = s.do(t, jsonRequest(http.MethodGet, "/oauth2/management/scope?audienceId="+s.api.AudienceID, "", s.admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]scope.Scope](t, rec), 2)

	rec = s.do(t, jsonRequest(http.MethodGet, "/oauth2/management/scope", "", s.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The api client is an auditor: it may read but not change scopes.
	rec = s.do(t, jsonRequest(http.MethodGet, "/oauth2/management/scope?audienceId="+s.api.AudienceID, "", s.api))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, jsonRequest(http.MethodDelete, "/oauth2/management/scope/"+s.api.AudienceID+"/write", "", s.api))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPut, "/oauth2/management/scope/"+s.api.AudienceID+"/write", `{"permittedClients":[]}`, s.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[scope.Scope](t, rec).PermittedClients)

	rec = s.do(t, jsonRequest(http.MethodDelete, "/oauth2/management/scope/"+s.api.AudienceID+"/write", "", s.admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodDelete, "/oauth2/management/scope/"+s.api.AudienceID+"/write", "", s.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPost, "/oauth2/management/client", `{"name":"new","redirectUris":["/cb"],"hostUris":["https://new.example.com"]}`, s.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[client.Client](t, rec)
	assert.NotEmpty(t, registered.Secret)
	assert.Equal(t, []string{"https://new.example.com:443"}, registered.HostURIs)

	trail := s.audit.String()
	assert.Contains(t, trail, `"action":"scope.create"`)
	assert.Contains(t, trail, `"action":"client.register"`)
	assert.Contains(t, trail, `"actor":"`+s.admin.ID+`"`)
	assert.Contains(t, trail, `"success":false`)
}

func TestClientManagementEndpoints(t *testing.T) {
	s := newTestServer(t)
	path := "/oauth2/management/client/" + s.app.ID

	rec := s.do(t, jsonRequest(http.MethodGet, path, "", s.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	read := decode[client.Client](t, rec)
	assert.Equal(t, s.app.ID, read.ID)
	assert.Equal(t, s.app.AudienceID, read.AudienceID)
	assert.Empty(t, read.Secret)
	assert.NotContains(t, rec.Body.String(), s.app.Secret)

	rec = s.do(t, jsonRequest(http.MethodGet, "/oauth2/management/client/missing", "", s.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Auditors may read clients but not change them.
	rec = s.do(t, jsonRequest(http.MethodGet, path, "", s.api))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, jsonRequest(http.MethodPut, path, `{"name":"renamed"}`, s.api))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPut, path, `{"name":"renamed","redirectUris":["/Other"]}`, s.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[client.Client](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, []string{"/other"}, updated.RedirectURIs)
	assert.Equal(t, s.app.HostURIs, updated.HostURIs)
	assert.Empty(t, updated.Secret)

	// The stored secret still authenticates the client.
	rec = s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"audience":   {s.api.AudienceID},
	}, s.app))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPut, path, `{"hostUris":["https://app.example.com/path"]}`, s.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, jsonRequest(http.MethodPut, "/oauth2/management/client/missing", `{"name":"x"}`, s.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	trail := s.audit.String()
	assert.Contains(t, trail, `"action":"client.update"`)
	assert.Contains(t, trail, `"target":"`+s.app.ID+`"`)
}

func TestJWKSHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/oauth2/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":[]}`, rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, formRequest("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"audience":   {s.api.AudienceID},
	}, s.app))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authd_tokens_issued_total")
}
