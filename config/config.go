package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// It is loaded once at startup and treated as read-only afterwards.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	StorageBackend  string `mapstructure:"STORAGE_BACKEND"` // mongo | memory
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string        `mapstructure:"REDIS_KEY_PREFIX"`
	LockBackend    string        `mapstructure:"LOCK_BACKEND"` // local | redis
	LockLease      time.Duration `mapstructure:"LOCK_LEASE"`
	TokenCache     string        `mapstructure:"TOKEN_CACHE"` // none | memory | redis

	Issuer            string `mapstructure:"ISSUER"`
	JWTAlgorithm      string `mapstructure:"JWT_ALGORITHM"` // RS256 | HS256
	JWTPrivateKeyPath string `mapstructure:"JWT_PRIVATE_KEY_PATH"`
	JWTKeyID          string `mapstructure:"JWT_KEY_ID"`
	JWTSecretKey      string `mapstructure:"JWT_SECRET_KEY"`

	AccessTokenTTL            time.Duration `mapstructure:"ACCESS_TOKEN_EXPIRATION_TIME"`
	AuthCodeTTL               time.Duration `mapstructure:"AUTH_CODE_EXPIRATION_TIME"`
	AccessTokenCountLimit     int           `mapstructure:"ACCESS_TOKEN_COUNT_LIMIT"`
	AccessTokenLimitWhitelist []string      `mapstructure:"ACCESS_TOKEN_LIMIT_WHITELIST"`
	ManagementClients         []string      `mapstructure:"MANAGEMENT_CLIENTS"`
	AuditorClients            []string      `mapstructure:"AUDITOR_CLIENTS"`
	CleanupInterval           time.Duration `mapstructure:"CLEANUP_INTERVAL"`

	AuthCodeLength                int `mapstructure:"AUTH_CODE_LENGTH"`
	RefreshTokenLength            int `mapstructure:"REFRESH_TOKEN_LENGTH"`
	ClientIDLength                int `mapstructure:"CLIENT_ID_LENGTH"`
	ClientSecretLength            int `mapstructure:"CLIENT_SECRET_LENGTH"`
	AudienceIDLength              int `mapstructure:"AUDIENCE_ID_LENGTH"`
	RegistrationAccessTokenLength int `mapstructure:"REGISTRATION_ACCESS_TOKEN_LENGTH"`
}

// Tokens is the token lifecycle policy handed to the token components.
type Tokens struct {
	Issuer             string
	AccessTokenTTL     time.Duration
	AuthCodeTTL        time.Duration
	CountLimit         int
	LimitWhitelist     []string
	AuthCodeLength     int
	RefreshTokenLength int
}

// Lengths holds the sizes of generated client credentials.
type Lengths struct {
	ClientID                int
	ClientSecret            int
	AudienceID              int
	RegistrationAccessToken int
}

// Tokens returns a copy of the token policy.
func (c *ServerConfig) Tokens() Tokens {
	return Tokens{
		Issuer:             c.Issuer,
		AccessTokenTTL:     c.AccessTokenTTL,
		AuthCodeTTL:        c.AuthCodeTTL,
		CountLimit:         c.AccessTokenCountLimit,
		LimitWhitelist:     append([]string(nil), c.AccessTokenLimitWhitelist...),
		AuthCodeLength:     c.AuthCodeLength,
		RefreshTokenLength: c.RefreshTokenLength,
	}
}

// Lengths returns a copy of the credential lengths.
func (c *ServerConfig) Lengths() Lengths {
	return Lengths{
		ClientID:                c.ClientIDLength,
		ClientSecret:            c.ClientSecretLength,
		AudienceID:              c.AudienceIDLength,
		RegistrationAccessToken: c.RegistrationAccessTokenLength,
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *ServerConfig) Validate() error {
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRATION_TIME must be positive")
	}
	if c.AuthCodeTTL <= 0 {
		return errors.New("AUTH_CODE_EXPIRATION_TIME must be positive")
	}
	if c.AccessTokenCountLimit < 1 {
		return errors.New("ACCESS_TOKEN_COUNT_LIMIT must be at least 1")
	}
	switch c.StorageBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	switch c.TokenCache {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown TOKEN_CACHE %q", c.TokenCache)
	}
	// Revocation on one instance cannot evict another instance's memory cache.
	if c.TokenCache == "memory" && c.LockBackend == "redis" {
		return errors.New("TOKEN_CACHE=memory is per-instance; use redis or none with LOCK_BACKEND=redis")
	}
	switch c.JWTAlgorithm {
	case "RS256":
	case "HS256":
		if c.JWTSecretKey == "" {
			return errors.New("JWT_SECRET_KEY is required for HS256")
		}
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORAGE_BACKEND", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "authd")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authd")
	v.SetDefault("TRACING_ENABLED", false)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "authd")
	v.SetDefault("LOCK_BACKEND", "local")
	v.SetDefault("LOCK_LEASE", 5*time.Second)
	v.SetDefault("TOKEN_CACHE", "none")

	v.SetDefault("ISSUER", "authd")
	v.SetDefault("JWT_ALGORITHM", "RS256")
	v.SetDefault("JWT_PRIVATE_KEY_PATH", "")
	v.SetDefault("JWT_KEY_ID", "default")
	v.SetDefault("JWT_SECRET_KEY", "")

	v.SetDefault("ACCESS_TOKEN_EXPIRATION_TIME", 180*time.Second)
	v.SetDefault("AUTH_CODE_EXPIRATION_TIME", 120*time.Second)
	v.SetDefault("ACCESS_TOKEN_COUNT_LIMIT", 10)
	v.SetDefault("ACCESS_TOKEN_LIMIT_WHITELIST", []string{})
	v.SetDefault("MANAGEMENT_CLIENTS", []string{})
	v.SetDefault("AUDITOR_CLIENTS", []string{})
	v.SetDefault("CLEANUP_INTERVAL", time.Minute)

	v.SetDefault("AUTH_CODE_LENGTH", 50)
	v.SetDefault("REFRESH_TOKEN_LENGTH", 50)
	v.SetDefault("CLIENT_ID_LENGTH", 40)
	v.SetDefault("CLIENT_SECRET_LENGTH", 100)
	v.SetDefault("AUDIENCE_ID_LENGTH", 30)
	v.SetDefault("REGISTRATION_ACCESS_TOKEN_LENGTH", 50)
}

// LoadConfig reads configuration from file, environment variables, and defaults.
// An empty configFile searches the default locations for config.yaml.
func LoadConfig(configFile string) (*ServerConfig, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/authd/")
		v.AddConfigPath("$HOME/.authd")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Running on defaults and env vars alone is fine.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
