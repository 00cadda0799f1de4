package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/health"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/retry"
	"github.com/vyrodovalexey/vaultbackend/internal/scheduler"
	"github.com/vyrodovalexey/vaultbackend/internal/server"
	"github.com/vyrodovalexey/vaultbackend/internal/vault"
	"github.com/vyrodovalexey/vaultbackend/internal/vaultbackend"
)

const (
	// vaultHealthCacheTTL bounds how often readiness probes reach Vault.
	vaultHealthCacheTTL = 5 * time.Second

	// retiredClientDelay keeps a replaced client open for requests that
	// started before a reload.
	retiredClientDelay = 30 * time.Second
)

// application holds all application components.
type application struct {
	logger       observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	scheduler    *scheduler.Scheduler
	vaultMetrics *vault.Metrics
	reload       *reloadMetrics
	server       *server.Server

	mu      sync.Mutex
	config  *config.Config
	current *generation
}

// generation is the backend built from one configuration.
type generation struct {
	builder *vaultbackend.Builder
	cancel  context.CancelFunc
}

// newApplication wires the components for cfg and builds the Vault routes.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(observability.DefaultMetricsNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	reg := metrics.Registry()

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, err
	}

	app := &application{
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		scheduler:    scheduler.New(logger, scheduler.WithMetrics(scheduler.NewMetrics(reg))),
		vaultMetrics: vault.NewMetrics(reg),
		reload:       newReloadMetrics(reg),
	}

	probes := health.NewHandler(logger, health.WithMetrics(health.NewMetrics(reg)))
	probes.AddCheck(health.NewCachedHealthCheck(health.VaultCheck(app.vaultHealth), vaultHealthCacheTTL))

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithHealth(probes),
		server.WithTracerProvider(tracer.Provider()),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metrics, cfg.Metrics.Path))
	}
	app.server = server.New(cfg.Server, opts...)

	if err := app.activate(ctx, cfg); err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}
	return app, nil
}

// activate builds the backend for cfg, enables token renewal and swaps the
// routes in. The previous backend keeps serving when this fails.
func (a *application) activate(ctx context.Context, cfg *config.Config) error {
	genCtx, cancel := context.WithCancel(ctx)

	builder := vaultbackend.NewBuilder(vaultbackend.Env{
		Config:       cfg,
		Logger:       a.logger,
		Scheduler:    a.scheduler,
		VaultMetrics: a.vaultMetrics,
		Tracer:       a.tracer.Tracer(),
		LoginRetry:   retry.DefaultConfig(),
	})

	router, err := builder.Build(genCtx)
	if err != nil {
		cancel()
		return err
	}
	if err := builder.EnableTokenRenew(genCtx, nil); err != nil {
		cancel()
		_ = builder.Close()
		return err
	}

	a.server.SetBackend(router)

	a.mu.Lock()
	previous := a.current
	a.current = &generation{builder: builder, cancel: cancel}
	a.config = cfg
	a.mu.Unlock()

	if previous != nil {
		// The new registration already replaced the renewal task.
		previous.cancel()
		time.AfterFunc(retiredClientDelay, func() { _ = previous.builder.Close() })
	}
	return nil
}

// vaultHealth returns the health checker of the current client, or nil when
// Vault is not configured.
func (a *application) vaultHealth() vault.HealthChecker {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil {
		return nil
	}

	checker, ok := current.builder.Client().(vault.HealthChecker)
	if !ok {
		return nil
	}
	return checker
}

// currentConfig returns the active configuration.
func (a *application) currentConfig() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// run serves until ctx is done or the server fails, then shuts down.
func (a *application) run(ctx context.Context, configPath string) error {
	watcher := startConfigWatcher(ctx, a, configPath)

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case err := <-errCh:
		runErr = err
	}

	if watcher != nil {
		_ = watcher.Stop()
		a.reload.setWatcherRunning(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.currentConfig().Server.ShutdownTimeout))
	defer cancel()

	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

// shutdown stops the server, then the scheduler, then the Vault client and the
// tracer.
func (a *application) shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Stop(ctx); err != nil {
		a.logger.Error("failed to stop server gracefully", observability.Error(err))
		errs = append(errs, err)
	}

	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.Error("failed to stop scheduler", observability.Error(err))
		errs = append(errs, err)
	}

	a.mu.Lock()
	current := a.current
	a.current = nil
	a.mu.Unlock()
	if current != nil {
		current.cancel()
		if err := current.builder.Close(); err != nil {
			a.logger.Error("failed to close vault client", observability.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}

	a.logger.Info("vault-backend stopped")
	return errors.Join(errs...)
}
