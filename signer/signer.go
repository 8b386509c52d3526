package signer

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidKeyID = errors.New("invalid key id")
	ErrNoSigningKey = errors.New("no signing key configured")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the access token claim set.
type Claims struct {
	ClientID string   `json:"clientId"`
	Scope    []string `json:"scope"`
	jwt.RegisteredClaims
}

// Signer signs and verifies access token claims.
type Signer interface {
	Sign(claims *Claims) (string, error)
	Verify(token string) (*Claims, error)
}

type signingKey struct {
	method jwt.SigningMethod
	sign   any
	verify any
}

// TokenSigner holds a set of keys addressed by key id. The most recently added
// key signs; every known key verifies.
type TokenSigner struct {
	mu      sync.RWMutex
	keys    map[string]signingKey
	current string
	issuer  string
	now     func() time.Time
}

// NewTokenSigner creates a new TokenSigner. A non-empty issuer is enforced on
// verification.
func NewTokenSigner(issuer string) *TokenSigner {
	return &TokenSigner{
		keys:   make(map[string]signingKey),
		issuer: issuer,
		now:    time.Now,
	}
}

// SetClock replaces the clock used for expiry checks.
func (s *TokenSigner) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddRSAKey registers an RS256 key and makes it the signing key.
func (s *TokenSigner) AddRSAKey(keyID string, key *rsa.PrivateKey) {
	s.add(keyID, signingKey{method: jwt.SigningMethodRS256, sign: key, verify: &key.PublicKey})
}

// AddHMACKey registers an HS256 secret and makes it the signing key.
func (s *TokenSigner) AddHMACKey(keyID string, secret []byte) {
	s.add(keyID, signingKey{method: jwt.SigningMethodHS256, sign: secret, verify: secret})
}

func (s *TokenSigner) add(keyID string, k signingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[keyID] = k
	s.current = keyID
}

// Sign encodes claims with the current key.
func (s *TokenSigner) Sign(claims *Claims) (string, error) {
	s.mu.RLock()
	kid := s.current
	k, ok := s.keys[kid]
	s.mu.RUnlock()

	if !ok {
		return "", ErrNoSigningKey
	}

	token := jwt.NewWithClaims(k.method, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(k.sign)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature, the algorithm, the expiry and the issuer.
func (s *TokenSigner) Verify(tokenString string) (*Claims, error) {
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()

	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithIssuedAt(), jwt.WithTimeFunc(now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenSigner) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)

	s.mu.RLock()
	k, ok := s.keys[kid]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKeyID
	}
	if token.Method.Alg() != k.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	return k.verify, nil
}

// JSONWebKey is the public half of an RSA signing key.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is served from the well-known JWKS endpoint.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JWKS publishes the RSA verification keys. HMAC secrets are never exposed.
func (s *TokenSigner) JWKS() JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]JSONWebKey, 0, len(s.keys))
	for kid, k := range s.keys {
		pub, ok := k.verify.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys = append(keys, JSONWebKey{
			Kid: kid,
			Kty: "RSA",
			Alg: k.method.Alg(),
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Kid < keys[j].Kid })

	return JSONWebKeySet{Keys: keys}
}
