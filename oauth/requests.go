package oauth

import (
	"strings"

	serrors "go.pilab.hu/authd/errors"
)

const (
	maxParamLength = 4096
	bearerType     = "bearer"
)

// TokenRequest carries the token endpoint form parameters.
type TokenRequest struct {
	GrantType    string `form:"grant_type"`
	Audience     string `form:"audience"`
	Scope        string `form:"scope"`
	Username     string `form:"username"`
	Password     string `form:"password"`
	RefreshToken string `form:"refresh_token"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
}

// Scopes splits the space-delimited scope parameter.
func (r TokenRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

// Validate rejects oversized parameters before they reach the engine.
func (r TokenRequest) Validate() error {
	return checkLengths(map[string]string{
		"grant_type":    r.GrantType,
		"audience":      r.Audience,
		"scope":         r.Scope,
		"username":      r.Username,
		"password":      r.Password,
		"refresh_token": r.RefreshToken,
		"code":          r.Code,
		"redirect_uri":  r.RedirectURI,
	})
}

// TokenResponse is the successful token endpoint body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ResponseType selects the authorization endpoint flow.
type ResponseType string

const (
	ResponseTypeCode  ResponseType = "code"
	ResponseTypeToken ResponseType = "token"
)

// AuthorizeRequest carries the authorization endpoint query parameters.
type AuthorizeRequest struct {
	ResponseType string `query:"response_type"`
	ClientID     string `query:"client_id"`
	RedirectURI  string `query:"redirect_uri"`
	Audience     string `query:"audience"`
	Scope        string `query:"scope"`
	State        string `query:"state"`
}

// Scopes splits the space-delimited scope parameter.
func (r AuthorizeRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

// Validate checks the request shape.
func (r AuthorizeRequest) Validate() error {
	if r.ClientID == "" {
		return serrors.Validation("The client_id parameter is missing.")
	}
	if r.RedirectURI == "" {
		return serrors.Validation("The redirect_uri parameter is missing.")
	}
	return checkLengths(map[string]string{
		"response_type": r.ResponseType,
		"client_id":     r.ClientID,
		"redirect_uri":  r.RedirectURI,
		"audience":      r.Audience,
		"scope":         r.Scope,
		"state":         r.State,
	})
}

// AuthorizeResponse is where the user agent is sent next.
type AuthorizeResponse struct {
	RedirectURL string
}

func checkLengths(params map[string]string) error {
	for name, v := range params {
		if len(v) > maxParamLength {
			return serrors.Validationf("The %s parameter is too long.", name)
		}
	}
	return nil
}
