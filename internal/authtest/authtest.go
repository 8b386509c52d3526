// Package authtest wires the token service on in-memory stores for tests.
package authtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.pilab.hu/authd/client"
	"go.pilab.hu/authd/config"
	"go.pilab.hu/authd/internal/auth"
	"go.pilab.hu/authd/introspect"
	"go.pilab.hu/authd/lock"
	"go.pilab.hu/authd/memory"
	"go.pilab.hu/authd/oauth"
	"go.pilab.hu/authd/refresh"
	"go.pilab.hu/authd/scope"
	"go.pilab.hu/authd/signer"
	"go.pilab.hu/authd/token"
)

const Issuer = "https://auth.test"

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the current second.
func NewClock() *Clock {
	return &Clock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Policy is the token policy used unless a test overrides it.
func Policy() config.Tokens {
	return config.Tokens{
		Issuer:             Issuer,
		AccessTokenTTL:     time.Hour,
		AuthCodeTTL:        time.Minute,
		CountLimit:         3,
		AuthCodeLength:     32,
		RefreshTokenLength: 48,
	}
}

// Lengths are small credential lengths for tests.
func Lengths() config.Lengths {
	return config.Lengths{
		ClientID:                16,
		ClientSecret:            32,
		AudienceID:              16,
		RegistrationAccessToken: 32,
	}
}

// Harness is a fully wired service.
type Harness struct {
	Clock       *Clock
	Policy      config.Tokens
	Signer      *signer.TokenSigner
	ClientStore *memory.ClientStore
	Clients     *client.Directory
	Scopes      *scope.Graph
	TokenRepo   *memory.TokenStore
	Tokens      *token.Store
	Minter      *token.Minter
	RefreshRepo *memory.RefreshStore
	Refresh     *refresh.Manager
	Codes       *memory.CodeStore
	Users       *auth.UserAuthenticator
	Engine      *oauth.Engine
	Introspect  *introspect.Service
}

// New builds a Harness. modify may adjust the policy before wiring.
func New(t *testing.T, modify ...func(*config.Tokens)) *Harness {
	t.Helper()

	policy := Policy()
	for _, m := range modify {
		m(&policy)
	}

	h := &Harness{
		Clock:       NewClock(),
		Policy:      policy,
		Signer:      signer.NewTokenSigner(policy.Issuer),
		ClientStore: memory.NewClientStore(),
		TokenRepo:   memory.NewTokenStore(),
		RefreshRepo: memory.NewRefreshStore(),
		Codes:       memory.NewCodeStore(),
	}
	h.Signer.SetClock(h.Clock.Now)
	h.Signer.AddHMACKey("test", []byte("0123456789abcdef0123456789abcdef"))

	h.Clients = client.NewDirectory(h.ClientStore, Lengths())
	h.Scopes = scope.NewGraph(memory.NewScopeStore(), h.Clients)
	h.Tokens = token.NewStore(h.TokenRepo, lock.NewLocal(), token.Quota{
		Limit:     policy.CountLimit,
		Whitelist: policy.LimitWhitelist,
	}, token.WithClock(h.Clock.Now))
	h.Minter = token.NewMinter(h.Signer, h.Tokens, policy)
	h.Refresh = refresh.NewManager(h.RefreshRepo, h.Tokens, h.Minter, policy.RefreshTokenLength, refresh.WithClock(h.Clock.Now))
	h.Users = auth.NewUserAuthenticator(memory.NewUserStore(), auth.NewBcryptPasswordHasher(4))

	h.Engine = oauth.NewEngine(oauth.Deps{
		Clients: h.Clients,
		Scopes:  h.Scopes,
		Minter:  h.Minter,
		Refresh: h.Refresh,
		Users:   h.Users,
		Codes:   h.Codes,
	}, policy).WithClock(h.Clock.Now)
	h.Introspect = introspect.NewService(h.Signer, h.Tokens, h.Clients).WithClock(h.Clock.Now)

	return h
}

// RegisterClient registers a client with one host and the given redirect paths.
func (h *Harness) RegisterClient(t *testing.T, name string, redirects ...string) *client.Client {
	t.Helper()

	info := client.Info{Name: name, RedirectURIs: redirects}
	if len(redirects) > 0 {
		info.HostURIs = []string{"https://" + name + ".example.com"}
	}

	c, err := h.Clients.Register(context.Background(), info)
	require.NoError(t, err)
	return c
}

// CreateScope creates a scope on audience.
func (h *Harness) CreateScope(t *testing.T, audience, value string, typ scope.Type, permitted ...string) *scope.Scope {
	t.Helper()

	s, err := h.Scopes.Create(context.Background(), scope.Info{
		Value:            value,
		AudienceID:       audience,
		Type:             typ,
		PermittedClients: permitted,
	})
	require.NoError(t, err)
	return s
}

// CreateUser stores a resource owner and returns its id.
func (h *Harness) CreateUser(t *testing.T, username, password string) string {
	t.Helper()

	u, err := h.Users.CreateUser(context.Background(), username, password)
	require.NoError(t, err)
	return u.ID
}
