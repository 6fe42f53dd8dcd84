package commands

import (
	"context"
	"fmt"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/artifact"
	"github.com/moolen/tripwire/internal/config"
	"github.com/moolen/tripwire/internal/evidence"
	"github.com/moolen/tripwire/internal/metrics"
	"github.com/moolen/tripwire/internal/pipeline"
	"github.com/moolen/tripwire/internal/store"
	"github.com/moolen/tripwire/internal/timeseries"
	"github.com/moolen/tripwire/internal/tracing"
	"github.com/moolen/tripwire/internal/trigger"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds the components built from one config.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	tracing   *tracing.Provider
	store     *store.Store
	collector *evidence.Collector
	pipeline  *pipeline.Pipeline
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newApp builds the pipeline and its collaborators. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.metrics = metrics.NewMetrics(a.registry)

	var err error
	a.tracing, err = tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	trig, err := newTrigger(cfg, a.metrics)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.collector, err = newCollector(cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	format, err := artifact.ParseFormat(cfg.Output.Format)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	uploader, err := newUploader(ctx, cfg.Upload)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.store, err = store.Open(cfg.Store.Path)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to open incident store: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Trigger:   trig,
		Collector: a.collector,
		Writer:    &artifact.Writer{Dir: cfg.Output.Dir, Format: format},
		Store:     a.store,
		Uploader:  uploader,
		Metrics:   a.metrics,
		Lookback:  cfg.Incident.Lookback,
		Tracer:    a.tracing.Tracer("tripwire/pipeline"),
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.tracing != nil {
		_ = a.tracing.Stop(ctx)
	}
}

// newTrigger builds the detector and the synthetic source described by cfg.
func newTrigger(cfg *config.Config, m *metrics.Metrics) (*trigger.Trigger, error) {
	detector, err := anomaly.New(cfg.Detector.Anomaly())
	if err != nil {
		return nil, err
	}
	source, err := timeseries.NewGenerator(timeseries.GeneratorConfig{
		Seed:     cfg.Source.Seed,
		Points:   cfg.Source.Points,
		Interval: cfg.Source.Interval,
		Profiles: cfg.Source.Profiles,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}
	return trigger.New(detector, source, cfg.Metrics,
		trigger.WithConcurrency(cfg.Detector.Concurrency),
		trigger.WithMetrics(m),
	)
}

func newCollector(cfg *config.Config) (*evidence.Collector, error) {
	return evidence.NewCollector(evidence.CollectorConfig{
		Seed:     cfg.Source.Seed,
		Profiles: cfg.Source.Profiles,
	})
}

func newUploader(ctx context.Context, cfg config.UploadConfig) (artifact.Uploader, error) {
	if !cfg.Enabled() {
		return artifact.NopUploader{}, nil
	}
	u, err := artifact.NewS3Uploader(ctx, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to configure artifact upload: %w", err)
	}
	return u, nil
}

func s3Config(cfg config.UploadConfig) artifact.S3Config {
	return artifact.S3Config{
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		UsePathStyle:    cfg.PathStyle,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	}
}
