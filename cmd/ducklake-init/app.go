package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Semprini/data-products/ducklake-init/internal/api"
	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
	"github.com/Semprini/data-products/ducklake-init/internal/clients"
	"github.com/Semprini/data-products/ducklake-init/internal/config"
	"github.com/Semprini/data-products/ducklake-init/internal/lake"
	"github.com/Semprini/data-products/ducklake-init/internal/sessionrc"
	"github.com/Semprini/data-products/ducklake-init/internal/telemetry"
)

// AppContext holds everything the bootstrap command wires together.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	lake         *lake.Bootstrapper
	driver       *bootstrap.Driver
	// router is nil when the status API is disabled.
	router *api.Router
}

// buildAppContext constructs every collaborator from cfg. It makes no
// network calls.
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// Telemetry is optional; a collector that is missing or misconfigured
	// never stops the bootstrap.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx,
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
			slog.SetDefault(slog.New(telemetry.NewTeeHandler(
				slog.Default().Handler(),
				tp.LogHandler,
			)))
		}
	}

	renderer, err := sessionrc.NewRenderer(cfg)
	if err != nil {
		return nil, fmt.Errorf("building rc renderer: %w", err)
	}

	// One breaker per dependency so that each trips independently.
	pg := clients.NewPostgresClient(cfg.Postgres, cfg.Readiness.AttemptTimeout, clients.NewCircuitBreaker("postgres"))
	store := clients.NewObjectStoreClient(cfg.ObjectStore, cfg.Readiness.AttemptTimeout, clients.NewCircuitBreaker("objectstore"))

	buckets, err := clients.NewBucketProvisioner(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("building bucket provisioner: %w", err)
	}

	settings, err := lake.SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("deriving lake settings: %w", err)
	}
	app.lake = lake.New(settings, cfg.Lake.DuckDBPath)

	app.driver = bootstrap.New(bootstrap.Deps{
		Renderer: renderer,
		Postgres: pg,
		Storage:  store,
		Buckets:  buckets,
		Bucket:   cfg.ObjectStore.Bucket,
		Lake:     app.lake,
		Readiness: bootstrap.ReadinessOptions{
			Interval: cfg.Readiness.Interval,
			Timeout:  cfg.Readiness.Timeout,
		},
	})

	if cfg.Status.Addr != "" {
		app.router = api.NewRouter(app.driver, cfg.Telemetry.ServiceName)
	}

	return app, nil
}

// Close releases the engine session and flushes telemetry.
func (a *AppContext) Close(ctx context.Context) {
	if err := a.lake.Close(); err != nil {
		slog.Warn("closing lake session", "err", err)
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
}
