package main

import (
	"context"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reloads.
type reloadMetrics struct {
	reloadTotal       *prometheus.CounterVec
	reloadDuration    prometheus.Histogram
	reloadLastSuccess prometheus.Gauge
	watcherRunning    prometheus.Gauge
}

// newReloadMetrics creates the reload metrics on reg. A nil reg leaves them
// unregistered.
func newReloadMetrics(reg prometheus.Registerer) *reloadMetrics {
	factory := promauto.With(reg)

	return &reloadMetrics{
		reloadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vault_backend",
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		reloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vault_backend",
				Name:      "config_reload_duration_seconds",
				Help:      "Duration of configuration reloads",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		reloadLastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vault_backend",
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of the last successful configuration reload",
			},
		),
		watcherRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vault_backend",
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
	}
}

func (m *reloadMetrics) record(result string, duration time.Duration) {
	m.reloadTotal.WithLabelValues(result).Inc()
	m.reloadDuration.Observe(duration.Seconds())
	if result == "success" {
		m.reloadLastSuccess.SetToCurrentTime()
	}
}

func (m *reloadMetrics) setWatcherRunning(running bool) {
	if running {
		m.watcherRunning.Set(1)
		return
	}
	m.watcherRunning.Set(0)
}

// startConfigWatcher reloads the backend whenever the configuration file
// changes. It returns nil when the file cannot be watched.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	logger := app.logger

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		app.applyConfig(ctx, newCfg)
	},
		config.WithWatcherLogger(logger),
		config.WithErrorHandler(func(error) {
			app.reload.record("error", 0)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	app.reload.setWatcherRunning(true)
	return watcher
}

// applyConfig rebuilds the backend from newCfg. Server, metrics and tracing
// settings only take effect on restart.
func (a *application) applyConfig(ctx context.Context, newCfg *config.Config) {
	start := time.Now()
	a.logger.Info("configuration changed, reloading vault backend")

	old := a.currentConfig()
	if old != nil && (!reflect.DeepEqual(old.Server, newCfg.Server) ||
		!reflect.DeepEqual(old.Metrics, newCfg.Metrics) ||
		!reflect.DeepEqual(old.Tracing, newCfg.Tracing)) {
		a.logger.Warn("server, metrics and tracing changes require a restart")
	}

	if err := a.activate(ctx, newCfg); err != nil {
		a.reload.record("error", time.Since(start))
		a.logger.Error("failed to reload vault backend, keeping the previous one", observability.Error(err))
		return
	}

	a.reload.record("success", time.Since(start))
	a.logger.Info("vault backend reloaded", observability.Duration("duration", time.Since(start)))
}
