package token

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/authd/internal/metrics"
)

// Sweeper removes expired records.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RunJanitor calls every sweeper on each tick until ctx is done. The map key
// names the sweeper in logs and metrics.
func RunJanitor(ctx context.Context, interval time.Duration, sweepers map[string]Sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Sweep(ctx, sweepers)
		}
	}
}

// Sweep runs every sweeper once.
func Sweep(ctx context.Context, sweepers map[string]Sweeper) {
	for kind, s := range sweepers {
		n, err := s.DeleteExpired(ctx)
		if err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("failed to delete expired records")
			continue
		}
		if n > 0 {
			metrics.ExpiredDeletedTotal.WithLabelValues(kind).Add(float64(n))
			log.Debug().Str("kind", kind).Int64("deleted", n).Msg("expired records deleted")
		}
	}
}
