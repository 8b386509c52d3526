package client

import (
	"context"

	serrors "go.pilab.hu/authd/errors"
)

// ErrClientNotFound is returned by stores when no client matches.
var ErrClientNotFound = serrors.NotFound("Client not found.")

// Store persists clients. Implementations translate their own errors into
// the errors package taxonomy.
type Store interface {
	FindByID(ctx context.Context, id string) (*Client, error)
	FindByAudience(ctx context.Context, audienceID string) (*Client, error)
	Insert(ctx context.Context, client *Client) error
	Update(ctx context.Context, client *Client) error
}
