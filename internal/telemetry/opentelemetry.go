package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

// RequestDurationMetric is the histogram the HTTP server records per request.
const RequestDurationMetric = "authd.http.server.duration"

// RequestDurationBuckets are sized for token endpoint latencies: hashing a
// password sits around 50-250ms, cached introspection well under 5ms.
var RequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// InitMeterProvider registers a global MeterProvider whose instruments are
// exported through reg, next to the prometheus counters. Series carry a
// target_info naming serviceName.
func InitMeterProvider(reg prometheus.Registerer, serviceName string) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	durations := metric.NewView(
		metric.Instrument{Name: RequestDurationMetric},
		metric.Stream{Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: RequestDurationBuckets}},
	)

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
		metric.WithView(durations),
	)
	otel.SetMeterProvider(mp)
	log.Info().Str("service", serviceName).Msg("meter provider exporting to prometheus registry")
	return mp, nil
}

// Shutdown flushes and stops the providers. Either may be nil.
func Shutdown(ctx context.Context, tp *trace.TracerProvider, mp *metric.MeterProvider) {
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("tracer provider shutdown failed")
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("meter provider shutdown failed")
		}
	}
}
