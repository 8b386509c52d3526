package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultRetryInterval = 20 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every server instance. A held key expires after
// the lease so a crashed holder cannot block the key forever.
type Redis struct {
	client redis.UniversalClient
	prefix string
	lease  time.Duration
	retry  time.Duration
}

// NewRedis creates a new Redis locker.
func NewRedis(client redis.UniversalClient, prefix string, lease time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		lease:  lease,
		retry:  defaultRetryInterval,
	}
}

func (r *Redis) redisKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", r.prefix, key)
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	rkey := r.redisKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, rkey, token, r.lease).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// The caller's ctx may already be cancelled; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, r.client, []string{rkey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
		}
	}, nil
}
