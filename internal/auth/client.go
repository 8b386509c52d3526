package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/client"
	serrors "go.pilab.hu/authd/errors"
)

// ClientFinder looks clients up by id.
type ClientFinder interface {
	FindByID(ctx context.Context, id string) (*client.Client, error)
}

// ClientAuthenticator verifies client credentials against the directory.
type ClientAuthenticator struct {
	clients ClientFinder
}

// NewClientAuthenticator creates a new ClientAuthenticator.
func NewClientAuthenticator(clients ClientFinder) *ClientAuthenticator {
	return &ClientAuthenticator{clients: clients}
}

// Credentials extracts client credentials from the basic auth header, falling
// back to the client_id and client_secret form fields.
func Credentials(r *http.Request) (id, secret string, ok bool) {
	if id, secret, ok = r.BasicAuth(); ok && id != "" {
		return id, secret, true
	}

	id = r.PostFormValue("client_id")
	secret = r.PostFormValue("client_secret")
	return id, secret, id != "" && secret != ""
}

// Authenticate returns the client when secret matches.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, id, secret string) (*client.Client, error) {
	if id == "" || secret == "" {
		return nil, serrors.ErrUnauthorized
	}

	c, err := a.clients.FindByID(ctx, id)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil, serrors.ErrUnauthorized
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) != 1 {
		log.Debug().Str("client_id", id).Msg("client secret mismatch")
		return nil, serrors.ErrUnauthorized
	}

	return c, nil
}

// AuthenticateRequest resolves the client of an HTTP request.
func (a *ClientAuthenticator) AuthenticateRequest(r *http.Request) (*client.Client, error) {
	id, secret, ok := Credentials(r)
	if !ok {
		return nil, serrors.ErrUnauthorized
	}
	return a.Authenticate(r.Context(), id, secret)
}
