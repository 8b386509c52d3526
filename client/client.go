package client

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/config"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/crypto"
)

const defaultPort = "443"

// DefaultDescription is stored for clients and scopes registered without one.
const DefaultDescription = "No description provided"

// Describe returns description, or DefaultDescription when it is blank.
func Describe(description string) string {
	if strings.TrimSpace(description) == "" {
		return DefaultDescription
	}
	return description
}

// Client represents a registered OAuth2 client application.
//
//nolint:tagliatelle
type Client struct {
	ID                      string    `bson:"client_id" json:"id"`
	Secret                  string    `bson:"client_secret" json:"secret,omitempty"`
	AudienceID              string    `bson:"audience_id" json:"audienceId"`
	Name                    string    `bson:"client_name" json:"name"`
	Description             string    `bson:"description,omitempty" json:"description,omitempty"`
	RedirectURIs            []string  `bson:"redirect_uris" json:"redirectUris"`
	HostURIs                []string  `bson:"host_uris" json:"hostUris"`
	RegistrationAccessToken string    `bson:"registration_access_token,omitempty" json:"registrationAccessToken,omitempty"`
	CreatedAt               time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt               time.Time `bson:"updated_at" json:"updatedAt"`
}

// Info is the registration request for a new client.
type Info struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	RedirectURIs []string `json:"redirectUris"`
	HostURIs     []string `json:"hostUris"`
}

// Validate checks the request shape before it reaches the directory.
func (i Info) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return serrors.Validation("The client name is missing.")
	}
	if len(i.RedirectURIs) > 0 && len(i.HostURIs) == 0 {
		return serrors.Validation("Redirect URIs require at least one host URI.")
	}
	return nil
}

// Patch describes an explicit client update. Nil fields are left unchanged.
type Patch struct {
	Name         *string  `json:"name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	RedirectURIs []string `json:"redirectUris,omitempty"`
	HostURIs     []string `json:"hostUris,omitempty"`
}

// Directory resolves clients and guards every write with NormalizeAndValidate.
type Directory struct {
	store   Store
	lengths config.Lengths
	now     func() time.Time
}

// NewDirectory creates a new Directory instance.
func NewDirectory(store Store, lengths config.Lengths) *Directory {
	return &Directory{
		store:   store,
		lengths: lengths,
		now:     time.Now,
	}
}

// FindByID returns the client with the given id.
func (d *Directory) FindByID(ctx context.Context, id string) (*Client, error) {
	if id == "" {
		return nil, ErrClientNotFound
	}
	return d.store.FindByID(ctx, id)
}

// FindByAudience returns the client owning the given audience id.
func (d *Directory) FindByAudience(ctx context.Context, audienceID string) (*Client, error) {
	if audienceID == "" {
		return nil, ErrClientNotFound
	}
	return d.store.FindByAudience(ctx, audienceID)
}

// Register creates a client with freshly generated credentials.
func (d *Directory) Register(ctx context.Context, info Info) (*Client, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		Name:         info.Name,
		Description:  Describe(info.Description),
		RedirectURIs: info.RedirectURIs,
		HostURIs:     info.HostURIs,
	}

	var err error
	if c.ID, err = crypto.RandomString(d.lengths.ClientID); err != nil {
		return nil, serrors.Internal("generate client id", err)
	}
	if c.Secret, err = crypto.RandomString(d.lengths.ClientSecret); err != nil {
		return nil, serrors.Internal("generate client secret", err)
	}
	if c.AudienceID, err = crypto.RandomString(d.lengths.AudienceID); err != nil {
		return nil, serrors.Internal("generate audience id", err)
	}
	if c.RegistrationAccessToken, err = crypto.RandomString(d.lengths.RegistrationAccessToken); err != nil {
		return nil, serrors.Internal("generate registration token", err)
	}

	return d.Insert(ctx, c)
}

// Insert validates and stores a client.
func (d *Directory) Insert(ctx context.Context, c *Client) (*Client, error) {
	normalized, err := NormalizeAndValidate(c)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now

	if err := d.store.Insert(ctx, normalized); err != nil {
		return nil, err
	}

	log.Info().Str("client_id", normalized.ID).Str("name", normalized.Name).Msg("client registered")

	return normalized, nil
}

// Update applies patch to the client and stores the validated result.
func (d *Directory) Update(ctx context.Context, id string, patch Patch) (*Client, error) {
	current, err := d.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.RedirectURIs != nil {
		next.RedirectURIs = patch.RedirectURIs
	}
	if patch.HostURIs != nil {
		next.HostURIs = patch.HostURIs
	}

	normalized, err := NormalizeAndValidate(&next)
	if err != nil {
		return nil, err
	}
	normalized.UpdatedAt = d.now().UTC()

	if err := d.store.Update(ctx, normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}

// NormalizeAndValidate returns a normalized copy of c. Redirect URIs are
// lowercased and host URIs must be bare origins; a missing port becomes 443.
func NormalizeAndValidate(c *Client) (*Client, error) {
	out := *c

	out.RedirectURIs = make([]string, 0, len(c.RedirectURIs))
	for _, uri := range c.RedirectURIs {
		lowered := strings.ToLower(uri)
		if !slices.Contains(out.RedirectURIs, lowered) {
			out.RedirectURIs = append(out.RedirectURIs, lowered)
		}
	}

	out.HostURIs = make([]string, 0, len(c.HostURIs))
	for _, raw := range c.HostURIs {
		origin, err := normalizeHostURI(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out.HostURIs, origin) {
			out.HostURIs = append(out.HostURIs, origin)
		}
	}

	return &out, nil
}

func normalizeHostURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "", serrors.Validationf("Invalid host URI: %s", raw)
	}

	origin := u.Scheme + "://" + u.Host
	if !strings.EqualFold(origin, strings.TrimSuffix(raw, "/")) {
		return "", serrors.Validationf("Host URI must be an origin: %s", raw)
	}

	return originOf(u), nil
}

// originOf renders scheme://host:port in lower case with the port defaulted.
func originOf(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return strings.ToLower(fmt.Sprintf("%s://%s:%s", u.Scheme, host, port))
}

// pathQueryOf returns everything after the origin.
func pathQueryOf(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		path += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		path += "#" + u.EscapedFragment()
	}
	return path
}

// IsValidRedirectURI reports whether candidate points at one of the client's
// hosts and one of its registered paths. It never fails on malformed input.
func IsValidRedirectURI(c *Client, candidate string) bool {
	if c == nil {
		return false
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Scheme == "" || u.Hostname() == "" || u.User != nil {
		return false
	}

	origin := originOf(u)
	hostOK := slices.ContainsFunc(c.HostURIs, func(h string) bool {
		return strings.EqualFold(h, origin)
	})
	if !hostOK {
		return false
	}

	path := pathQueryOf(u)
	return slices.ContainsFunc(c.RedirectURIs, func(r string) bool {
		return strings.EqualFold(r, path)
	})
}
