// Package trigger runs the anomaly detector over a set of metrics and
// reports which of them breached their thresholds.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/logging"
	"github.com/moolen/tripwire/internal/metrics"
	"github.com/moolen/tripwire/internal/timeseries"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Option configures a Trigger.
type Option func(*Trigger)

// WithConcurrency bounds the number of metrics evaluated at once.
func WithConcurrency(n int) Option {
	return func(t *Trigger) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Trigger) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// WithMetrics records every run in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trigger) {
		t.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		if now != nil {
			t.now = now
		}
	}
}

// Outcome is the detection result for one metric.
type Outcome struct {
	Metric    string           `json:"metric" yaml:"metric"`
	Points    int              `json:"points" yaml:"points"`
	Stats     anomaly.Stats    `json:"stats" yaml:"stats"`
	Anomalies []anomaly.Record `json:"anomalies" yaml:"anomalies"`
}

// Result collects the outcomes of one run.
type Result struct {
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
	Outcomes   []Outcome        `json:"outcomes" yaml:"outcomes"`
	Anomalies  []anomaly.Record `json:"anomalies" yaml:"anomalies"`
}

// Healthy reports whether no metric produced an anomaly.
func (r *Result) Healthy() bool {
	return len(r.Anomalies) == 0
}

// AnomalyCounts returns the number of anomalies per evaluated metric.
func (r *Result) AnomalyCounts() map[string]int {
	counts := make(map[string]int, len(r.Outcomes))
	for _, o := range r.Outcomes {
		counts[o.Metric] += len(o.Anomalies)
	}
	return counts
}

// Trigger evaluates a fixed list of metrics with one detector.
type Trigger struct {
	detector    *anomaly.Detector
	source      timeseries.Source
	metricNames []string
	concurrency int
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *logging.Logger
}

// New creates a Trigger. metricNames must not be empty or contain duplicates.
func New(detector *anomaly.Detector, source timeseries.Source, metricNames []string, opts ...Option) (*Trigger, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if len(metricNames) == 0 {
		return nil, fmt.Errorf("at least one metric is required")
	}
	seen := make(map[string]bool, len(metricNames))
	for _, name := range metricNames {
		if name == "" {
			return nil, fmt.Errorf("metric names must not be empty")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate metric %q", name)
		}
		seen[name] = true
	}

	t := &Trigger{
		detector:    detector,
		source:      source,
		metricNames: append([]string(nil), metricNames...),
		concurrency: defaultConcurrency,
		tracer:      otel.Tracer("tripwire/trigger"),
		now:         time.Now,
		logger:      logging.GetLogger("trigger"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Detector returns the detector used by Run.
func (t *Trigger) Detector() *anomaly.Detector {
	return t.detector
}

// Metrics returns the evaluated metric names in configuration order.
func (t *Trigger) Metrics() []string {
	return append([]string(nil), t.metricNames...)
}

// Run evaluates every metric concurrently. Outcomes and anomalies keep the
// configured metric order regardless of completion order. The first source
// error cancels the remaining work.
func (t *Trigger) Run(ctx context.Context) (*Result, error) {
	ctx, span := t.tracer.Start(ctx, "trigger.Run",
		trace.WithAttributes(attribute.Int("metrics", len(t.metricNames))))
	defer span.End()

	started := t.now()
	outcomes := make([]Outcome, len(t.metricNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, name := range t.metricNames {
		g.Go(func() error {
			outcome, err := t.evaluate(gctx, name)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &Result{
		StartedAt:  started,
		FinishedAt: t.now(),
		Outcomes:   outcomes,
		Anomalies:  []anomaly.Record{},
	}
	for _, o := range outcomes {
		result.Anomalies = append(result.Anomalies, o.Anomalies...)
	}

	t.metrics.ObserveRun(result.StartedAt, result.FinishedAt, result.AnomalyCounts())
	span.SetAttributes(attribute.Int("anomalies", len(result.Anomalies)))

	t.logger.WithContext(ctx).InfoWithFields("Detection run finished",
		logging.Field("metrics", len(outcomes)),
		logging.Field("anomalies", len(result.Anomalies)),
		logging.Field("duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds()),
	)
	return result, nil
}

func (t *Trigger) evaluate(ctx context.Context, name string) (Outcome, error) {
	ctx, span := t.tracer.Start(ctx, "trigger.evaluate",
		trace.WithAttributes(attribute.String("metric", name)))
	defer span.End()

	series, err := t.source.Series(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, fmt.Errorf("failed to fetch series for %s: %w", name, err)
	}

	stats, _ := t.detector.Stats(series)
	records := t.detector.Detect(name, series)

	span.SetAttributes(
		attribute.Int("points", len(series)),
		attribute.Int("anomalies", len(records)),
		attribute.Float64("threshold", stats.Threshold),
	)
	t.logger.DebugWithFields("Evaluated metric",
		logging.Field("metric", name),
		logging.Field("points", len(series)),
		logging.Field("mean", stats.Mean),
		logging.Field("std_dev", stats.StdDev),
		logging.Field("threshold", stats.Threshold),
		logging.Field("anomalies", len(records)),
	)

	return Outcome{
		Metric:    name,
		Points:    len(series),
		Stats:     stats,
		Anomalies: records,
	}, nil
}
