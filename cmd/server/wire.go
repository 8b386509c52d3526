package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/authd/cache"
	cacheredis "go.pilab.hu/authd/cache/redis"
	"go.pilab.hu/authd/client"
	"go.pilab.hu/authd/config"
	"go.pilab.hu/authd/internal/auth"
	"go.pilab.hu/authd/internal/crypto"
	"go.pilab.hu/authd/introspect"
	"go.pilab.hu/authd/lock"
	"go.pilab.hu/authd/memory"
	"go.pilab.hu/authd/mongodb"
	"go.pilab.hu/authd/oauth"
	"go.pilab.hu/authd/refresh"
	"go.pilab.hu/authd/scope"
	"go.pilab.hu/authd/signer"
	"go.pilab.hu/authd/token"

	echoapi "go.pilab.hu/authd/api/echo"
)

const memoryCacheCapacity = 100_000

// repositories is the storage backend selected by STORAGE_BACKEND.
type repositories struct {
	clients client.Store
	scopes  scope.Repository
	tokens  token.Repository
	refresh refresh.Repository
	codes   oauth.CodeRepository
	users   auth.UserStore
}

// app holds the wired components. close releases backing connections.
type app struct {
	clients    *client.Directory
	scopes     *scope.Graph
	users      *auth.UserAuthenticator
	tokens     *token.Store
	refresh    *refresh.Manager
	codes      oauth.CodeRepository
	engine     *oauth.Engine
	introspect *introspect.Service
	signer     *signer.TokenSigner
	health     map[string]echoapi.HealthCheck
	closers    []func(context.Context)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func newApp(ctx context.Context, cfg *config.ServerConfig) (*app, error) {
	a := &app{health: map[string]echoapi.HealthCheck{}}

	repos, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	if cfg.LockBackend == "redis" || cfg.TokenCache == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		a.closers = append(a.closers, func(context.Context) { _ = rdb.Close() })
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.LockBackend == "redis" {
		locker = lock.NewRedis(rdb, cfg.RedisKeyPrefix, cfg.LockLease)
	}

	var storeOpts []token.Option
	switch cfg.TokenCache {
	case "memory":
		mc := cache.NewMemoryTokenCache(memoryCacheCapacity)
		a.closers = append(a.closers, func(context.Context) { _ = mc.Close() })
		storeOpts = append(storeOpts, token.WithCache(mc))
	case "redis":
		storeOpts = append(storeOpts, token.WithCache(cacheredis.NewTokenCache(rdb, cfg.RedisKeyPrefix)))
	}

	a.signer, err = newSigner(cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	policy := cfg.Tokens()

	a.clients = client.NewDirectory(repos.clients, cfg.Lengths())
	a.scopes = scope.NewGraph(repos.scopes, a.clients)
	a.users = auth.NewUserAuthenticator(repos.users, auth.NewBcryptPasswordHasher(0))
	a.tokens = token.NewStore(repos.tokens, locker, token.Quota{
		Limit:     policy.CountLimit,
		Whitelist: policy.LimitWhitelist,
	}, storeOpts...)

	minter := token.NewMinter(a.signer, a.tokens, policy)
	a.refresh = refresh.NewManager(repos.refresh, a.tokens, minter, policy.RefreshTokenLength)
	a.codes = repos.codes

	a.engine = oauth.NewEngine(oauth.Deps{
		Clients: a.clients,
		Scopes:  a.scopes,
		Minter:  minter,
		Refresh: a.refresh,
		Users:   a.users,
		Codes:   repos.codes,
	}, policy)
	a.introspect = introspect.NewService(a.signer, a.tokens, a.clients)

	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.ServerConfig) (*repositories, error) {
	if cfg.StorageBackend == "memory" {
		return &repositories{
			clients: memory.NewClientStore(),
			scopes:  memory.NewScopeStore(),
			tokens:  memory.NewTokenStore(),
			refresh: memory.NewRefreshStore(),
			codes:   memory.NewCodeStore(),
			users:   memory.NewUserStore(),
		}, nil
	}

	db, err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	a.health["mongodb"] = mongodb.Ping
	a.closers = append(a.closers, mongodb.CloseMongoDB)

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		a.close(ctx)
		return nil, err
	}

	return &repositories{
		clients: mongodb.NewClientRepository(db),
		scopes:  mongodb.NewScopeRepository(db),
		tokens:  mongodb.NewTokenRepository(db),
		refresh: mongodb.NewRefreshTokenRepository(db),
		codes:   mongodb.NewAuthCodeRepository(db),
		users:   mongodb.NewUserRepository(db),
	}, nil
}

// newSigner loads the RS256 key from JWT_PRIVATE_KEY_PATH, or generates an
// ephemeral one, or uses the HS256 secret.
func newSigner(cfg *config.ServerConfig) (*signer.TokenSigner, error) {
	s := signer.NewTokenSigner(cfg.Issuer)

	if cfg.JWTAlgorithm == "HS256" {
		s.AddHMACKey(cfg.JWTKeyID, []byte(cfg.JWTSecretKey))
		return s, nil
	}

	if cfg.JWTPrivateKeyPath == "" {
		key, err := crypto.GenerateRSAKey()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		appLogger.Warn(context.Background(), "JWT_PRIVATE_KEY_PATH not set, using an ephemeral signing key")
		s.AddRSAKey(cfg.JWTKeyID, key)
		return s, nil
	}

	key, err := crypto.LoadRSAPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	s.AddRSAKey(cfg.JWTKeyID, key)
	return s, nil
}

// sweepers lists the janitor targets by metric label.
func (a *app) sweepers() map[string]token.Sweeper {
	return map[string]token.Sweeper{
		"access_token":  a.tokens,
		"refresh_token": a.refresh,
		"auth_code":     oauth.CodeSweeper{Repo: a.codes},
	}
}
