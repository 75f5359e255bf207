package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/tensrai/dashboard-api/config"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/observability/telemetry"
)

// APIConfig contains the dependencies for running the API process.
type APIConfig struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// RunAPI serves the dashboard API until SIGINT/SIGTERM or a fatal server error.
func RunAPI(ctx context.Context, cfg *APIConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("api config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: appCfg.Observability.ServiceName,
		Endpoint:    appCfg.Observability.OTLPEndpoint,
		Insecure:    appCfg.Observability.OTLPInsecure,
		Enabled:     appCfg.Observability.TracingActive(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdownTracing(context.WithoutCancel(ctx)); serr != nil {
			logger.Error("tracing shutdown failed", "error", serr)
		}
	}()

	var prom *metrics.Prom
	var m metrics.Metrics = metrics.Noop{}
	if appCfg.Observability.MetricsEnabled {
		prom = metrics.NewProm("dashboard")
		m = prom
	}

	identity, err := BuildIdentity(ctx, IdentityDeps{
		Config:  appCfg,
		DB:      cfg.DB,
		Redis:   cfg.Redis,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		identity.ListenInvalidations(serviceCtx, logger)
	}()

	handler := BuildHTTPHandler(HTTPHandlerConfig{
		Config:   appCfg,
		Identity: identity,
		Redis:    cfg.Redis,
		Metrics:  prom,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	server := StartHTTPServer(logger, appCfg.HTTP, handler, errCh)

	err = waitForShutdown(serviceCtx, errCh, logger)
	cancel()
	if serr := ShutdownHTTPServer(context.WithoutCancel(ctx), server, appCfg.HTTP.ShutdownTimeout, logger); serr != nil {
		err = errors.Join(err, serr)
	}
	wg.Wait()
	return err
}

// waitForShutdown waits for a shutdown signal, context cancellation or a server error.
func waitForShutdown(ctx context.Context, errCh <-chan error, logger *slog.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		logger.Error("service error", "error", err)
		return err
	}
}
