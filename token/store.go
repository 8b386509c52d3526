package token

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	serrors "go.pilab.hu/authd/errors"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/lock"
)

// Quota bounds the live no-user tokens per (client, audience).
type Quota struct {
	Limit     int
	Whitelist []string
}

// Store persists access tokens and enforces the per-client quota.
type Store struct {
	repo      Repository
	locker    lock.Locker
	cache     Cache
	limit     int
	whitelist map[string]struct{}
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCache puts c in front of value lookups.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new Store instance.
func NewStore(repo Repository, locker lock.Locker, quota Quota, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		locker:    locker,
		limit:     quota.Limit,
		whitelist: make(map[string]struct{}, len(quota.Whitelist)),
		now:       time.Now,
	}
	for _, id := range quota.Whitelist {
		s.whitelist[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func limitKey(clientID, audience string) string {
	return clientID + "|" + audience
}

// CountActive counts the live no-user tokens of (clientID, audience).
func (s *Store) CountActive(ctx context.Context, clientID, audience string) (int, error) {
	tokens, err := s.repo.FindByClientAudience(ctx, clientID, audience)
	if err != nil {
		return 0, err
	}

	now := s.now()
	n := 0
	for _, t := range tokens {
		if !t.Expired(now) {
			n++
		}
	}
	return n, nil
}

// AdmitAndInsert stores candidate unless it would push its (client, audience)
// pair over the quota. Tokens bound to a user and tokens of whitelisted clients
// are not counted. Expired tokens and tokens with the candidate's value are
// deleted before counting.
func (s *Store) AdmitAndInsert(ctx context.Context, candidate *AccessToken) (*AccessToken, error) {
	if candidate.UserID != "" || s.whitelisted(candidate.ClientID) {
		if err := s.pruneCollision(ctx, candidate); err != nil {
			return nil, err
		}
		return s.insert(ctx, candidate)
	}

	unlock, err := s.locker.Lock(ctx, limitKey(candidate.ClientID, candidate.Audience))
	if err != nil {
		return nil, serrors.Internal("acquire token limit lock", err)
	}
	defer unlock()

	existing, err := s.repo.FindByClientAudience(ctx, candidate.ClientID, candidate.Audience)
	if err != nil {
		return nil, err
	}

	now := s.now()
	live := len(existing)
	for _, t := range existing {
		if !t.Expired(now) && t.Value != candidate.Value {
			continue
		}
		if err := s.delete(ctx, t); err != nil && !serrors.IsKind(err, serrors.KindNotFound) {
			return nil, err
		}
		metrics.TokensPrunedTotal.Inc()
		live--
	}

	if live >= s.limit {
		metrics.TokenLimitRejectionsTotal.Inc()
		log.Warn().
			Str("client_id", candidate.ClientID).
			Str("audience", candidate.Audience).
			Int("live", live).
			Int("limit", s.limit).
			Msg("access token limit reached")
		return nil, limitExceeded(candidate)
	}

	return s.insert(ctx, candidate)
}

// pruneCollision removes a stored token carrying the candidate's value. Two
// identical grants in the same second sign to the same value.
func (s *Store) pruneCollision(ctx context.Context, candidate *AccessToken) error {
	existing, err := s.repo.FindByValue(ctx, candidate.Value)
	if err != nil {
		if serrors.IsKind(err, serrors.KindNotFound) {
			return nil
		}
		return err
	}

	if err := s.delete(ctx, existing); err != nil && !serrors.IsKind(err, serrors.KindNotFound) {
		return err
	}
	metrics.TokensPrunedTotal.Inc()
	return nil
}

func limitExceeded(t *AccessToken) error {
	if t.UserID != "" {
		return serrors.ErrLimitWithUser
	}
	return serrors.ErrLimitWithoutUser
}

func (s *Store) whitelisted(clientID string) bool {
	_, ok := s.whitelist[clientID]
	return ok
}

func (s *Store) insert(ctx context.Context, t *AccessToken) (*AccessToken, error) {
	// Pruning may already have happened; an abandoned request must not insert.
	if err := ctx.Err(); err != nil {
		return nil, serrors.Internal("request cancelled before insert", err)
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, t)
	}

	return t, nil
}

// FindByValue returns the stored token with the given value.
func (s *Store) FindByValue(ctx context.Context, value string) (*AccessToken, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(ctx, value); ok {
			return t, nil
		}
	}

	t, err := s.repo.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && !t.Expired(s.now()) {
		s.cache.Set(ctx, t)
	}

	return t, nil
}

// FindByID returns the stored token with the given id.
func (s *Store) FindByID(ctx context.Context, id string) (*AccessToken, error) {
	return s.repo.FindByID(ctx, id)
}

// Delete removes t from the repository and the cache.
func (s *Store) Delete(ctx context.Context, t *AccessToken) error {
	return s.delete(ctx, t)
}

func (s *Store) delete(ctx context.Context, t *AccessToken) error {
	if s.cache != nil {
		s.cache.Delete(ctx, t.Value)
	}
	return s.repo.Delete(ctx, t.ID)
}

// DeleteExpired removes every token whose expiry has passed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}
