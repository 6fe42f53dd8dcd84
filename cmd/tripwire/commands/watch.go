package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moolen/tripwire/internal/config"
	"github.com/moolen/tripwire/internal/lifecycle"
	"github.com/moolen/tripwire/internal/logging"
	"github.com/moolen/tripwire/internal/metrics"
	"github.com/moolen/tripwire/internal/pipeline"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run detection periodically",
	Long: `Run detection every watch.interval, expose Prometheus metrics and reload the
config file when it changes. Stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("watch")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close incident store: %v", err)
		}
	}()

	loop, err := pipeline.NewLoop(a.pipeline, cfg.Watch.Interval)
	if err != nil {
		return err
	}
	loop.OnOutcome = func(o *pipeline.Outcome) {
		if o.Healthy() {
			return
		}
		for _, r := range o.Incident.Anomalies {
			logger.WarnWithFields("Anomaly detected",
				logging.Field("incident_id", o.Incident.ID),
				logging.Field("metric", r.MetricName),
				logging.Field("value", r.Value),
				logging.Field("threshold", r.Threshold),
			)
		}
	}

	manager := lifecycle.NewManager()
	if err := manager.Register(a.tracing); err != nil {
		return err
	}

	var deps []lifecycle.Component
	if cfg.Watch.MetricsAddr != "" {
		server := metrics.NewServer(cfg.Watch.MetricsAddr, a.registry)
		if err := manager.Register(server); err != nil {
			return err
		}
		deps = append(deps, server)
	}
	if err := manager.Register(loop, append(deps, a.tracing)...); err != nil {
		return err
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: configPath}, func(next *config.Config) error {
			return applyReload(a, loop, next)
		})
		if err != nil {
			return err
		}
		if err := manager.Register(watcher, loop); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		return err
	}
	logger.Info("Watching %d metrics every %v", len(cfg.Metrics), cfg.Watch.Interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// applyReload swaps in a trigger and an evidence collector built from next.
// Settings that need new resources (store path, output, upload, tracing)
// take effect on restart.
func applyReload(a *app, loop *pipeline.Loop, next *config.Config) error {
	trig, err := newTrigger(next, a.metrics)
	if err != nil {
		return err
	}
	collector, err := newCollector(next)
	if err != nil {
		return err
	}
	a.pipeline.SetTrigger(trig)
	a.pipeline.SetCollector(collector)
	loop.SetInterval(next.Watch.Interval)
	return nil
}
