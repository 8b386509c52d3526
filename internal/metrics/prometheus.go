package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_tokens_issued_total",
		Help: "Total number of access tokens issued, by grant type.",
	}, []string{"grant_type"})

	TokenLimitRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_token_limit_rejections_total",
		Help: "Total number of token requests rejected by the per-client limit.",
	})

	TokensPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_pruned_total",
		Help: "Total number of stale or colliding tokens pruned by the limiter.",
	})

	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_refreshed_total",
		Help: "Total number of successful refresh token exchanges.",
	})

	IntrospectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_introspections_total",
		Help: "Total number of introspection requests, by result.",
	}, []string{"active"})

	ExpiredDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_expired_deleted_total",
		Help: "Total number of expired records removed by the janitor.",
	}, []string{"kind"})
)

// InitCustomMetrics registers the custom metrics with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}

	collectors := map[string]prometheus.Collector{
		"TokensIssuedTotal":         TokensIssuedTotal,
		"TokenLimitRejectionsTotal": TokenLimitRejectionsTotal,
		"TokensPrunedTotal":         TokensPrunedTotal,
		"TokensRefreshedTotal":      TokensRefreshedTotal,
		"IntrospectionsTotal":       IntrospectionsTotal,
		"ExpiredDeletedTotal":       ExpiredDeletedTotal,
	}

	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}

	log.Info().Msg("Custom Prometheus metrics initialized and registered.")
}
