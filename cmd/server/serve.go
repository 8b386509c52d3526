package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	echoapi "go.pilab.hu/authd/api/echo"
	"go.pilab.hu/authd/internal/audit"
	"go.pilab.hu/authd/internal/auth/rbac"
	"go.pilab.hu/authd/internal/metrics"
	"go.pilab.hu/authd/internal/telemetry"
	"go.pilab.hu/authd/token"
	"go.pilab.hu/authd/tracing"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	appLogger.Info(ctx, "Starting authd", map[string]any{
		"http_port":       cfg.HTTPPort,
		"storage_backend": cfg.StorageBackend,
		"lock_backend":    cfg.LockBackend,
		"token_cache":     cfg.TokenCache,
		"jwt_algorithm":   cfg.JWTAlgorithm,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(reg)

	mp, err := telemetry.InitMeterProvider(reg, cfg.OtelServiceName)
	if err != nil {
		return err
	}

	var tp *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		if tp, err = tracing.InitTracerProvider(tracing.Options{
			ServiceName: cfg.OtelServiceName,
			Pretty:      cfg.LogPretty,
		}); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	api := echoapi.NewOAuth2API(echoapi.OAuth2APIOptions{
		Engine:            a.engine,
		Introspection:     a.introspect,
		Clients:           a.clients,
		Scopes:            a.scopes,
		Users:             a.users,
		Keys:              a.signer,
		Access:            rbac.NewPolicy(cfg.ManagementClients, cfg.AuditorClients),
		Audit:             audit.New(nil),
	})
	e := echoapi.NewServer(api, echoapi.ServerOptions{
		ServiceName: cfg.OtelServiceName,
		Logger:      appLogger,
		Gatherer:    reg,
		Health:      a.health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info(gctx, "HTTP server listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		token.RunJanitor(gctx, cfg.CleanupInterval, a.sweepers())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info(context.Background(), "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		telemetry.Shutdown(shutdownCtx, tp, mp)
		return err
	})

	return g.Wait()
}
