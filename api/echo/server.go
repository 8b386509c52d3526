package echo

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.pilab.hu/authd/log"
)

const (
	instrumentationName = "go.pilab.hu/authd/api/echo"
	defaultServiceName  = "authd"
)

func serviceName(name string) string {
	if name == "" {
		return defaultServiceName
	}
	return name
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// ServerOptions configures NewServer.
type ServerOptions struct {
	// ServiceName names the server in spans, "authd" when empty.
	ServiceName string
	Logger      log.Logger
	Gatherer    prometheus.Gatherer
	Health      map[string]HealthCheck
}

// NewServer builds the echo instance with middleware, the OAuth2 routes, the
// health check and the metrics endpoint.
func NewServer(api *OAuth2API, opts ServerOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(otelecho.Middleware(serviceName(opts.ServiceName)))
	e.Use(metricsMiddleware())
	if opts.Logger != nil {
		e.Use(loggingMiddleware(opts.Logger))
	}

	api.RegisterRoutes(e)

	e.GET("/health", healthHandler(opts.Health))
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})))
	}

	return e
}

// loggingMiddleware logs every request through the application logger.
func loggingMiddleware(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := map[string]any{
				"method":     req.Method,
				"path":       c.Path(),
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
			}
			if err != nil {
				appLogger.Error(req.Context(), "HTTP Request", err, fields)
			} else {
				appLogger.Info(req.Context(), "HTTP Request", fields)
			}

			return nil
		}
	}
}

// metricsMiddleware records request durations on the global meter, labelled
// by route and status.
func metricsMiddleware() echo.MiddlewareFunc {
	duration, _ := otel.Meter(instrumentationName).Float64Histogram(
		"authd.http.server.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of HTTP requests."),
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			if duration != nil {
				duration.Record(c.Request().Context(), time.Since(start).Seconds(), metric.WithAttributes(
					attribute.String("http.request.method", c.Request().Method),
					attribute.String("http.route", c.Path()),
					attribute.Int("http.response.status_code", c.Response().Status),
				))
			}

			return nil
		}
	}
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := map[string]string{}
		code := http.StatusOK

		for name, check := range checks {
			if err := check(c.Request().Context()); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}

		return c.JSON(code, map[string]any{"status": http.StatusText(code), "checks": status})
	}
}
